package outreach

import (
	"sync"
	"time"
)

// DefaultRetention bounds the timeline; the oldest entries past this
// count are discarded on append.
const DefaultRetention = 200

// Timeline is the bounded, append-only activity log. New entries go to
// the head (most recent first). An entry's fields advance in place via
// Update; its position never changes after append.
type Timeline struct {
	mu        sync.Mutex
	entries   []Entry
	retention int

	onChange func([]Entry)
}

func NewTimeline(retention int) *Timeline {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Timeline{retention: retention}
}

// SetOnChange installs the persistence hook. Call before concurrent use.
func (t *Timeline) SetOnChange(fn func([]Entry)) { t.onChange = fn }

// Replace swaps the full log, used when loading persisted state.
// The retention bound is applied to the loaded data as well.
func (t *Timeline) Replace(entries []Entry) {
	t.mu.Lock()
	t.entries = append([]Entry(nil), entries...)
	if len(t.entries) > t.retention {
		t.entries = t.entries[:t.retention]
	}
	t.mu.Unlock()
}

// Append inserts at the head and truncates to the retention bound.
func (t *Timeline) Append(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	t.mu.Lock()
	t.entries = append([]Entry{e}, t.entries...)
	if len(t.entries) > t.retention {
		t.entries = t.entries[:t.retention]
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.changed(snap)
}

// Update advances the entry matching id in place: status, timestamp and
// detail are replaced, message and position stay. Missing ids are a
// silent no-op (the entry may have aged out of retention).
func (t *Timeline) Update(id string, status EntryStatus, at time.Time, detail string) {
	t.mu.Lock()
	found := false
	for i := range t.entries {
		if t.entries[i].ID == id {
			t.entries[i].Status = status
			t.entries[i].Timestamp = at
			t.entries[i].Detail = detail
			found = true
			break
		}
	}
	if !found {
		t.mu.Unlock()
		return
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.changed(snap)
}

// Entries returns a copy, most recent append first.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Timeline) snapshotLocked() []Entry {
	return append([]Entry(nil), t.entries...)
}

func (t *Timeline) changed(snap []Entry) {
	if t.onChange != nil {
		t.onChange(snap)
	}
}
