package template

import (
	"regexp"
	"strings"
)

// placeholderRe matches well-formed {{identifier}} tokens. Anything else,
// including unmatched braces, is treated as literal text.
var placeholderRe = regexp.MustCompile(`\{\{([A-Za-z0-9_]+)\}\}`)

// Recipient carries the fields the engine derives variables from.
// It is a narrow view so the engine stays free of store dependencies.
type Recipient struct {
	Handle string
	Name   string
}

// Extract returns the distinct placeholder keys found in tpl, in order
// of first occurrence. It never fails; malformed syntax is skipped.
func Extract(tpl string) []string {
	matches := placeholderRe.FindAllStringSubmatch(tpl, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		key := m[1]
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

// Build expands tpl for one recipient. Recipient-derived values are
// computed first, then custom variables are merged on top, so a custom
// variable with a colliding key (e.g. "handle") wins. Placeholders with
// no resolution are left verbatim.
//
// Pure: same inputs always yield the same output.
func Build(tpl string, rec Recipient, custom map[string]string) string {
	vars := map[string]string{
		"first_name": firstName(rec.Name),
		"full_name":  rec.Name,
		"handle":     strings.TrimPrefix(rec.Handle, "@"),
	}
	for k, v := range custom {
		vars[k] = v
	}

	return placeholderRe.ReplaceAllStringFunc(tpl, func(tok string) string {
		key := tok[2 : len(tok)-2]
		if v, ok := vars[key]; ok {
			return v
		}
		return tok
	})
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
