package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"dmflow/internal/eventbus"
	"dmflow/internal/outreach"
	"dmflow/pkg/logx"
)

// SendRequest is the payload handed to the external send boundary.
type SendRequest struct {
	RecipientUserID string
	Message         string
	Tag             string
	Metadata        map[string]string
}

// SendResult reports a successful delivery. MessageID is the
// provider-assigned identifier when the provider returns one.
type SendResult struct {
	MessageID string
}

// Sender is the external send boundary. Implementations must report
// provider-side failures (including malformed provider responses) as an
// error so the failure branch is reachable uniformly.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}

// Dispatcher performs one send attempt end to end: it records the
// attempt on the timeline, flips recipient state, calls the boundary
// and reconciles the terminal outcome. Failures are terminal per
// attempt; Dispatch never returns an error and never retries.
type Dispatcher struct {
	roster   *outreach.Roster
	timeline *outreach.Timeline
	sender   Sender
	bus      eventbus.Bus
	log      logx.Logger
}

func New(roster *outreach.Roster, timeline *outreach.Timeline, sender Sender, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		roster:   roster,
		timeline: timeline,
		sender:   sender,
		bus:      bus,
		log:      log,
	}
}

// Dispatch blocks until the attempt reaches a terminal state. Callers
// that want fire-and-forget semantics run it in a goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, rec outreach.Recipient, message string) {
	logID := uuid.NewString()
	d.timeline.Append(outreach.Entry{
		ID:              logID,
		RecipientID:     rec.ID,
		RecipientHandle: rec.Handle,
		Status:          outreach.EntrySending,
		Timestamp:       time.Now(),
		Message:         message,
	})
	d.roster.SetStatus(rec.ID, outreach.StatusSending, nil, message)
	d.publish(eventbus.TypeSendSending, rec, "")

	res, err := d.sender.Send(ctx, SendRequest{
		RecipientUserID: rec.ProviderUserID,
		Message:         message,
	})
	if err != nil {
		detail := strings.TrimSpace(err.Error())
		if detail == "" {
			detail = "failed to send message"
		}
		d.roster.SetStatus(rec.ID, outreach.StatusFailed, nil, message)
		d.timeline.Update(logID, outreach.EntryFailed, time.Now(), detail)
		d.publish(eventbus.TypeSendFailed, rec, detail)
		d.log.Warn("dispatch failed",
			logx.String("recipient", rec.ID),
			logx.String("handle", rec.Handle),
			logx.Err(err),
		)
		return
	}

	detail := ""
	if res.MessageID != "" {
		detail = "Message id: " + res.MessageID
	}
	d.roster.SetStatus(rec.ID, outreach.StatusSent, nil, message)
	d.timeline.Update(logID, outreach.EntrySent, time.Now(), detail)
	d.publish(eventbus.TypeSendSent, rec, detail)
	d.log.Info("dispatch sent",
		logx.String("recipient", rec.ID),
		logx.String("handle", rec.Handle),
		logx.String("message_id", res.MessageID),
	)
}

func (d *Dispatcher) publish(typ string, rec outreach.Recipient, detail string) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{
		Type:            typ,
		RecipientID:     rec.ID,
		RecipientHandle: rec.Handle,
		Detail:          detail,
	})
}
