package template

import (
	"reflect"
	"testing"
)

func TestBuildRecipientDerived(t *testing.T) {
	t.Parallel()
	rec := Recipient{Handle: "creatorlife", Name: "Jamie Rivera"}

	tests := []struct {
		name   string
		tpl    string
		custom map[string]string
		want   string
	}{
		{name: "first name", tpl: "Hey {{first_name}}", want: "Hey Jamie"},
		{name: "full name", tpl: "{{full_name}}", want: "Jamie Rivera"},
		{name: "handle", tpl: "{{handle}}", want: "creatorlife"},
		{name: "custom overrides derived", tpl: "{{handle}}", custom: map[string]string{"handle": "override"}, want: "override"},
		{name: "unknown key passes through", tpl: "{{unknown_key}}", want: "{{unknown_key}}"},
		{name: "custom value", tpl: "about {{topic}}", custom: map[string]string{"topic": "skincare"}, want: "about skincare"},
		{name: "repeated placeholder", tpl: "{{first_name}} {{first_name}}", want: "Jamie Jamie"},
		{name: "unmatched braces literal", tpl: "{{oops and {{first_name}}", want: "{{oops and Jamie"},
		{name: "empty template", tpl: "", want: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := Build(tt.tpl, rec, tt.custom); got != tt.want {
				t.Fatalf("Build(%q) = %q, want %q", tt.tpl, got, tt.want)
			}
		})
	}
}

func TestBuildHandleStripsAt(t *testing.T) {
	t.Parallel()
	got := Build("{{handle}}", Recipient{Handle: "@creator", Name: "A"}, nil)
	if got != "creator" {
		t.Fatalf("Build = %q, want %q", got, "creator")
	}
}

func TestBuildEmptyName(t *testing.T) {
	t.Parallel()
	got := Build("Hey {{first_name}}!", Recipient{Handle: "x", Name: "   "}, nil)
	if got != "Hey !" {
		t.Fatalf("Build = %q, want %q", got, "Hey !")
	}
}

func TestBuildDeterministic(t *testing.T) {
	t.Parallel()
	rec := Recipient{Handle: "h", Name: "First Last"}
	custom := map[string]string{"topic": "travel"}
	tpl := "{{first_name}} {{topic}} {{missing}}"
	a := Build(tpl, rec, custom)
	b := Build(tpl, rec, custom)
	if a != b {
		t.Fatalf("Build not deterministic: %q vs %q", a, b)
	}
}

func TestExtract(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		tpl  string
		want []string
	}{
		{name: "dedup keeps first occurrence order", tpl: "Hi {{a}} and {{a}} and {{b}}", want: []string{"a", "b"}},
		{name: "no placeholders", tpl: "plain text", want: nil},
		{name: "unmatched braces ignored", tpl: "{{broken and {{ok}}", want: []string{"ok"}},
		{name: "underscored keys", tpl: "{{first_name}} {{brand_values}}", want: []string{"first_name", "brand_values"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.tpl)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Extract(%q) = %v, want %v", tt.tpl, got, tt.want)
			}
		})
	}
}

func TestCatalogCoversDerivedKeys(t *testing.T) {
	t.Parallel()
	keys := map[string]bool{}
	for _, v := range Catalog() {
		keys[v.Key] = true
	}
	for _, k := range []string{"first_name", "full_name", "handle"} {
		if !keys[k] {
			t.Fatalf("catalog missing derived key %q", k)
		}
	}
	for _, k := range Extract(DefaultTemplate) {
		if !keys[k] {
			t.Fatalf("default template uses %q which is not in the catalog", k)
		}
	}
}
