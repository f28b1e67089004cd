package automation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"dmflow/internal/dispatch"
	"dmflow/internal/eventbus"
	"dmflow/internal/outreach"
	"dmflow/internal/schedule"
	"dmflow/internal/storage"
	"dmflow/internal/template"
	"dmflow/pkg/logx"
)

// Storage keys. Each slice of workspace state is an independent blob.
const (
	keyTemplate   = "template"
	keyVariables  = "custom_variables"
	keyRecipients = "recipients"
	keyTimeline   = "activity_log"
)

// Service is the operator-facing workspace: it owns the message
// template, custom variables, the selection, and the in-flight flag for
// send-now batches, and wires the roster, timeline, scheduler and
// dispatcher together.
type Service struct {
	mu        sync.Mutex
	template  string
	variables map[string]string
	selection []string
	sending   bool

	roster     *outreach.Roster
	timeline   *outreach.Timeline
	sched      *schedule.Service
	dispatcher *dispatch.Dispatcher
	store      storage.Store
	bus        eventbus.Bus
	log        logx.Logger
}

func New(roster *outreach.Roster, timeline *outreach.Timeline, sched *schedule.Service, dispatcher *dispatch.Dispatcher, store storage.Store, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		template:   template.DefaultTemplate,
		variables:  template.DefaultVariables(),
		roster:     roster,
		timeline:   timeline,
		sched:      sched,
		dispatcher: dispatcher,
		store:      store,
		bus:        bus,
		log:        log,
	}
	s.load()

	// Persist the collections on every mutation, including the ones
	// performed by the dispatcher and the scheduler.
	roster.SetOnChange(func(snap []outreach.Recipient) { s.persist(keyRecipients, snap) })
	timeline.SetOnChange(func(snap []outreach.Entry) { s.persist(keyTimeline, snap) })
	return s
}

// ---- Recipients ----

// AddRecipient inserts a validated recipient and records the addition
// on the timeline.
func (s *Service) AddRecipient(in outreach.NewRecipient) (outreach.Recipient, error) {
	rec, err := s.roster.Add(in)
	if err != nil {
		return outreach.Recipient{}, err
	}
	s.timeline.Append(outreach.Entry{
		ID:              uuid.NewString(),
		RecipientID:     rec.ID,
		RecipientHandle: rec.Handle,
		Status:          outreach.EntryQueued,
		Timestamp:       time.Now(),
		Message:         "Recipient added to workspace",
	})
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type:            eventbus.TypeRecipientAdded,
			RecipientID:     rec.ID,
			RecipientHandle: rec.Handle,
		})
	}
	return rec, nil
}

// RemoveRecipient deletes the recipient and purges every reference to
// it: the current selection and any pending scheduled tasks.
func (s *Service) RemoveRecipient(id string) bool {
	if !s.roster.Remove(id) {
		return false
	}

	s.mu.Lock()
	kept := s.selection[:0]
	for _, sel := range s.selection {
		if sel != id {
			kept = append(kept, sel)
		}
	}
	s.selection = kept
	s.mu.Unlock()

	if n := s.sched.CancelFor(id); n > 0 {
		s.log.Debug("cancelled pending sends for removed recipient",
			logx.String("recipient", id), logx.Int("count", n))
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeRecipientRemoved, RecipientID: id})
	}
	return true
}

func (s *Service) Recipients() []outreach.Recipient { return s.roster.List() }

func (s *Service) Timeline() []outreach.Entry { return s.timeline.Entries() }

func (s *Service) Stats() outreach.Stats { return s.roster.Counts() }

// ---- Selection ----

// ToggleSelect flips the recipient in or out of the selection,
// preserving toggle order for the ones that stay.
func (s *Service) ToggleSelect(id string) (selected bool, ok bool) {
	if _, exists := s.roster.Get(id); !exists {
		return false, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sel := range s.selection {
		if sel == id {
			s.selection = append(s.selection[:i], s.selection[i+1:]...)
			return false, true
		}
	}
	s.selection = append(s.selection, id)
	return true, true
}

func (s *Service) Selection() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.selection...)
}

// ---- Template & variables ----

func (s *Service) Template() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.template
}

func (s *Service) SetTemplate(tpl string) {
	s.mu.Lock()
	s.template = tpl
	s.mu.Unlock()
	s.persist(keyTemplate, tpl)
}

func (s *Service) Variables() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneVars(s.variables)
}

func (s *Service) SetVariable(key, value string) {
	s.mu.Lock()
	s.variables[key] = value
	snap := cloneVars(s.variables)
	s.mu.Unlock()
	s.persist(keyVariables, snap)
}

// Preview renders the current template for one recipient.
func (s *Service) Preview(recipientID string) (string, bool) {
	rec, ok := s.roster.Get(recipientID)
	if !ok {
		return "", false
	}
	return s.buildMessage(rec), true
}

// buildMessage expands the template with the state current at call
// time. Used per recipient so mid-batch edits take effect.
func (s *Service) buildMessage(rec outreach.Recipient) string {
	s.mu.Lock()
	tpl := s.template
	vars := cloneVars(s.variables)
	s.mu.Unlock()
	return template.Build(tpl, template.Recipient{Handle: rec.Handle, Name: rec.Name}, vars)
}

func (s *Service) persist(key string, v any) {
	if s.store == nil {
		return
	}
	b, err := marshal(v)
	if err != nil {
		s.log.Warn("state marshal failed", logx.String("key", key), logx.Err(err))
		return
	}
	if err := s.store.Put(context.Background(), key, b); err != nil {
		s.log.Warn("state write failed", logx.String("key", key), logx.Err(err))
	}
}

func cloneVars(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
