package outreach

import (
	"errors"
	"testing"
	"time"

	"dmflow/pkg/logx"
)

func TestRosterAddValidation(t *testing.T) {
	t.Parallel()
	r := NewRoster(logx.Nop())

	tests := []struct {
		name string
		in   NewRecipient
	}{
		{name: "empty handle", in: NewRecipient{Handle: "  ", ProviderUserID: "1", Name: "A"}},
		{name: "handle only at-sign", in: NewRecipient{Handle: "@", ProviderUserID: "1", Name: "A"}},
		{name: "empty provider id", in: NewRecipient{Handle: "h", ProviderUserID: " ", Name: "A"}},
		{name: "empty name", in: NewRecipient{Handle: "h", ProviderUserID: "1", Name: ""}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Add(tt.in)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Add(%+v) error = %v, want ValidationError", tt.in, err)
			}
		})
	}
	if got := len(r.List()); got != 0 {
		t.Fatalf("roster has %d recipients after rejected adds, want 0", got)
	}
}

func TestRosterAddFrontInsert(t *testing.T) {
	t.Parallel()
	r := NewRoster(logx.Nop())

	first, err := r.Add(NewRecipient{Handle: "@one", ProviderUserID: "1", Name: "One Person"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	second, err := r.Add(NewRecipient{Handle: "two", ProviderUserID: "2", Name: "Two Person", Tags: []string{"vip", "vip", " ", "beta"}})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("len(List) = %d, want 2", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("newest-first order violated: %v", []string{list[0].Handle, list[1].Handle})
	}
	if list[1].Handle != "one" {
		t.Fatalf("handle = %q, want leading @ stripped", list[1].Handle)
	}
	if len(list[0].Tags) != 2 || list[0].Tags[0] != "vip" || list[0].Tags[1] != "beta" {
		t.Fatalf("tags = %v, want deduped [vip beta]", list[0].Tags)
	}
	if list[0].Status != StatusIdle {
		t.Fatalf("status = %q, want idle", list[0].Status)
	}
	if first.ID == second.ID {
		t.Fatal("ids must be unique")
	}
}

func TestRosterSetStatusPairsScheduledAt(t *testing.T) {
	t.Parallel()
	r := NewRoster(logx.Nop())
	rec, err := r.Add(NewRecipient{Handle: "h", ProviderUserID: "1", Name: "A B"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	at := time.Now().Add(time.Hour)
	r.SetStatus(rec.ID, StatusScheduled, &at, "hello")

	got, ok := r.Get(rec.ID)
	if !ok {
		t.Fatal("recipient missing")
	}
	if got.Status != StatusScheduled || got.ScheduledAt == nil || !got.ScheduledAt.Equal(at) {
		t.Fatalf("scheduled state = %q/%v, want scheduled/%v", got.Status, got.ScheduledAt, at)
	}
	if got.LastMessagePreview != "hello" {
		t.Fatalf("preview = %q, want %q", got.LastMessagePreview, "hello")
	}

	// Any non-scheduled status clears the timestamp.
	r.SetStatus(rec.ID, StatusSending, nil, "")
	got, _ = r.Get(rec.ID)
	if got.Status != StatusSending || got.ScheduledAt != nil {
		t.Fatalf("after sending: status=%q scheduledAt=%v, want sending/nil", got.Status, got.ScheduledAt)
	}
	// Empty preview keeps the previous one.
	if got.LastMessagePreview != "hello" {
		t.Fatalf("preview = %q, want retained %q", got.LastMessagePreview, "hello")
	}
}

func TestRosterSetStatusMissingIDIsNoop(t *testing.T) {
	t.Parallel()
	r := NewRoster(logx.Nop())
	// Must not panic and must not create anything.
	r.SetStatus("nope", StatusSent, nil, "m")
	if got := len(r.List()); got != 0 {
		t.Fatalf("len = %d, want 0", got)
	}
}

func TestRosterRemove(t *testing.T) {
	t.Parallel()
	r := NewRoster(logx.Nop())
	rec, _ := r.Add(NewRecipient{Handle: "h", ProviderUserID: "1", Name: "A"})

	if !r.Remove(rec.ID) {
		t.Fatal("Remove returned false for existing id")
	}
	if r.Remove(rec.ID) {
		t.Fatal("Remove returned true for missing id")
	}
	if _, ok := r.Get(rec.ID); ok {
		t.Fatal("recipient still present after Remove")
	}
}

func TestRosterCounts(t *testing.T) {
	t.Parallel()
	r := NewRoster(logx.Nop())
	a, _ := r.Add(NewRecipient{Handle: "a", ProviderUserID: "1", Name: "A"})
	b, _ := r.Add(NewRecipient{Handle: "b", ProviderUserID: "2", Name: "B"})
	c, _ := r.Add(NewRecipient{Handle: "c", ProviderUserID: "3", Name: "C"})
	d, _ := r.Add(NewRecipient{Handle: "d", ProviderUserID: "4", Name: "D"})

	at := time.Now().Add(time.Minute)
	r.SetStatus(a.ID, StatusScheduled, &at, "")
	r.SetStatus(b.ID, StatusSent, nil, "")
	r.SetStatus(c.ID, StatusFailed, nil, "")
	_ = d

	got := r.Counts()
	want := Stats{Scheduled: 1, Sent: 1, Failed: 1}
	if got != want {
		t.Fatalf("Counts = %+v, want %+v", got, want)
	}
}

func TestRosterOnChangeFires(t *testing.T) {
	t.Parallel()
	r := NewRoster(logx.Nop())
	var calls int
	r.SetOnChange(func(snap []Recipient) { calls++ })

	rec, _ := r.Add(NewRecipient{Handle: "h", ProviderUserID: "1", Name: "A"})
	r.SetStatus(rec.ID, StatusSent, nil, "m")
	r.Remove(rec.ID)

	if calls != 3 {
		t.Fatalf("onChange fired %d times, want 3", calls)
	}
}
