package automation

import (
	"context"
	"encoding/json"

	"dmflow/internal/outreach"
	"dmflow/pkg/logx"
)

func marshal(v any) ([]byte, error) { return json.Marshal(v) }

// load restores persisted workspace state. Absent keys fall back to
// defaults; corrupt blobs are logged and skipped so a bad file never
// prevents startup.
func (s *Service) load() {
	if s.store == nil {
		return
	}
	ctx := context.Background()

	if b, ok := s.get(ctx, keyTemplate); ok {
		var tpl string
		if err := json.Unmarshal(b, &tpl); err != nil {
			s.log.Warn("persisted template unreadable, using default", logx.Err(err))
		} else {
			s.template = tpl
		}
	}

	if b, ok := s.get(ctx, keyVariables); ok {
		var vars map[string]string
		if err := json.Unmarshal(b, &vars); err != nil {
			s.log.Warn("persisted variables unreadable, using defaults", logx.Err(err))
		} else if vars != nil {
			s.variables = vars
		}
	}

	if b, ok := s.get(ctx, keyRecipients); ok {
		var recipients []outreach.Recipient
		if err := json.Unmarshal(b, &recipients); err != nil {
			s.log.Warn("persisted recipients unreadable, starting empty", logx.Err(err))
		} else {
			s.roster.Replace(recipients)
			s.log.Info("recipients restored", logx.Int("count", len(recipients)))
		}
	}

	if b, ok := s.get(ctx, keyTimeline); ok {
		var entries []outreach.Entry
		if err := json.Unmarshal(b, &entries); err != nil {
			s.log.Warn("persisted activity log unreadable, starting empty", logx.Err(err))
		} else {
			s.timeline.Replace(entries)
		}
	}
}

func (s *Service) get(ctx context.Context, key string) ([]byte, bool) {
	b, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.log.Warn("state read failed", logx.String("key", key), logx.Err(err))
		return nil, false
	}
	return b, ok
}
