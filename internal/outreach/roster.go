package outreach

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"dmflow/pkg/logx"
)

// Roster holds the ordered recipient collection, newest first.
//
// It is safe for concurrent use; the scheduler promotes tasks from its
// tick goroutine while the API mutates recipients.
type Roster struct {
	mu         sync.Mutex
	recipients []Recipient

	log logx.Logger

	// onChange receives a snapshot after every mutation. Used by the
	// automation service to persist the collection.
	onChange func([]Recipient)
}

func NewRoster(log logx.Logger) *Roster {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Roster{log: log}
}

// SetOnChange installs the persistence hook. Call before concurrent use.
func (r *Roster) SetOnChange(fn func([]Recipient)) { r.onChange = fn }

// Replace swaps the full collection, used when loading persisted state.
func (r *Roster) Replace(recipients []Recipient) {
	r.mu.Lock()
	r.recipients = append([]Recipient(nil), recipients...)
	r.mu.Unlock()
}

// Add validates the input and inserts the new recipient at the front.
func (r *Roster) Add(in NewRecipient) (Recipient, error) {
	handle := strings.TrimPrefix(strings.TrimSpace(in.Handle), "@")
	userID := strings.TrimSpace(in.ProviderUserID)
	name := strings.TrimSpace(in.Name)

	switch {
	case handle == "":
		return Recipient{}, &ValidationError{Field: "handle", Reason: "must not be empty"}
	case userID == "":
		return Recipient{}, &ValidationError{Field: "provider_user_id", Reason: "must not be empty"}
	case name == "":
		return Recipient{}, &ValidationError{Field: "name", Reason: "must not be empty"}
	}

	rec := Recipient{
		ID:             uuid.NewString(),
		Handle:         handle,
		ProviderUserID: userID,
		Name:           name,
		Tags:           dedupTags(in.Tags),
		Status:         StatusIdle,
		CreatedAt:      time.Now(),
	}

	r.mu.Lock()
	r.recipients = append([]Recipient{rec}, r.recipients...)
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.log.Debug("recipient added", logx.String("id", rec.ID), logx.String("handle", rec.Handle))
	r.changed(snap)
	return rec, nil
}

// Remove deletes the recipient. Callers must also drop the id from any
// selection and cancel pending scheduled tasks referencing it.
func (r *Roster) Remove(id string) bool {
	r.mu.Lock()
	idx := r.indexLocked(id)
	if idx < 0 {
		r.mu.Unlock()
		return false
	}
	r.recipients = append(r.recipients[:idx], r.recipients[idx+1:]...)
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.log.Debug("recipient removed", logx.String("id", id))
	r.changed(snap)
	return true
}

func (r *Roster) Get(id string) (Recipient, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexLocked(id)
	if idx < 0 {
		return Recipient{}, false
	}
	return cloneRecipient(r.recipients[idx]), true
}

// List returns a copy in display order (newest first).
func (r *Roster) List() []Recipient {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// SetStatus updates a recipient's delivery state. Missing ids are a
// silent no-op: deletion races with in-flight dispatches are expected.
//
// scheduledAt is only retained for StatusScheduled; every other status
// clears it, which keeps the pairing invariant by construction. An
// empty preview leaves the stored preview untouched.
func (r *Roster) SetStatus(id string, status Status, scheduledAt *time.Time, preview string) {
	r.mu.Lock()
	idx := r.indexLocked(id)
	if idx < 0 {
		r.mu.Unlock()
		return
	}
	rec := &r.recipients[idx]
	rec.Status = status
	if status == StatusScheduled && scheduledAt != nil {
		at := *scheduledAt
		rec.ScheduledAt = &at
	} else {
		rec.ScheduledAt = nil
	}
	if preview != "" {
		rec.LastMessagePreview = preview
	}
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.changed(snap)
}

// Stats are the counters shown on the operator dashboard.
type Stats struct {
	Scheduled int `json:"scheduled"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

func (r *Roster) Counts() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s Stats
	for _, rec := range r.recipients {
		switch rec.Status {
		case StatusScheduled:
			s.Scheduled++
		case StatusSent:
			s.Sent++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

func (r *Roster) indexLocked(id string) int {
	for i := range r.recipients {
		if r.recipients[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *Roster) snapshotLocked() []Recipient {
	out := make([]Recipient, len(r.recipients))
	for i := range r.recipients {
		out[i] = cloneRecipient(r.recipients[i])
	}
	return out
}

func (r *Roster) changed(snap []Recipient) {
	if r.onChange != nil {
		r.onChange(snap)
	}
}

func cloneRecipient(rec Recipient) Recipient {
	cp := rec
	if rec.ScheduledAt != nil {
		at := *rec.ScheduledAt
		cp.ScheduledAt = &at
	}
	cp.Tags = append([]string(nil), rec.Tags...)
	return cp
}

func dedupTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := map[string]struct{}{}
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
