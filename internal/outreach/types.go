package outreach

import (
	"fmt"
	"time"
)

// Status is a recipient's delivery state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusScheduled Status = "scheduled"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
)

// Recipient is one messaging target.
//
// ScheduledAt is non-nil iff Status is StatusScheduled; SetStatus is the
// only mutation path and keeps the pair consistent.
type Recipient struct {
	ID                 string     `json:"id"`
	Handle             string     `json:"handle"`
	ProviderUserID     string     `json:"provider_user_id"`
	Name               string     `json:"name"`
	Tags               []string   `json:"tags"`
	Status             Status     `json:"status"`
	ScheduledAt        *time.Time `json:"scheduled_at,omitempty"`
	LastMessagePreview string     `json:"last_message_preview,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// NewRecipient is the operator-supplied input for Roster.Add.
type NewRecipient struct {
	Handle         string   `json:"handle"`
	ProviderUserID string   `json:"provider_user_id"`
	Name           string   `json:"name"`
	Tags           []string `json:"tags"`
}

// EntryStatus is a timeline entry's lifecycle state. "queued" means
// scheduled for later; there is no idle state on the timeline.
type EntryStatus string

const (
	EntryQueued  EntryStatus = "queued"
	EntrySending EntryStatus = "sending"
	EntrySent    EntryStatus = "sent"
	EntryFailed  EntryStatus = "failed"
)

// Entry is one audit record of a send attempt's lifecycle.
// RecipientHandle is a snapshot taken at append time so the timeline
// stays historically accurate after renames or deletions.
type Entry struct {
	ID              string      `json:"id"`
	RecipientID     string      `json:"recipient_id"`
	RecipientHandle string      `json:"recipient_handle"`
	Status          EntryStatus `json:"status"`
	Timestamp       time.Time   `json:"timestamp"`
	Message         string      `json:"message"`
	Detail          string      `json:"detail,omitempty"`
}

// ValidationError reports malformed operator input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
