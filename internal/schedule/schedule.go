package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"dmflow/internal/eventbus"
	"dmflow/internal/outreach"
	"dmflow/pkg/logx"
)

// ErrPastRunTime rejects schedule requests that are not strictly in the
// future. Callers degrade those to an immediate send instead.
var ErrPastRunTime = errors.New("run time must be in the future")

// Task is one deferred dispatch. The message is precomputed at
// scheduling time; later template edits do not affect pending tasks.
// Tasks are volatile: they live only for the process lifetime.
type Task struct {
	ID          string
	RecipientID string
	RunAt       time.Time
	Message     string
}

type Config struct {
	// Tick is the promotion check period. Defaults to 1s.
	Tick time.Duration
}

// DispatchFunc hands a due task to the dispatch pipeline.
type DispatchFunc func(ctx context.Context, rec outreach.Recipient, message string)

// Service owns the pending task set and a periodic promotion pass.
// The tick trigger only runs while tasks are pending: it starts on the
// first Schedule and stops when the set drains, avoiding idle wakeups.
type Service struct {
	mu      sync.Mutex
	pending []Task
	ticking bool

	roster   *outreach.Roster
	timeline *outreach.Timeline
	dispatch DispatchFunc
	bus      eventbus.Bus
	log      logx.Logger

	c      *cron.Cron
	runCtx context.Context

	// inflight tracks promoted dispatch goroutines so tests and Stop
	// can wait for them.
	inflight sync.WaitGroup
}

func New(cfg Config, roster *outreach.Roster, timeline *outreach.Timeline, dispatch DispatchFunc, bus eventbus.Bus, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	tick := cfg.Tick
	if tick <= 0 {
		tick = time.Second
	}

	s := &Service{
		roster:   roster,
		timeline: timeline,
		dispatch: dispatch,
		bus:      bus,
		log:      log,
		runCtx:   context.Background(),
		c:        cron.New(),
	}
	if _, err := s.c.AddFunc(fmt.Sprintf("@every %s", tick), s.tick); err != nil {
		return nil, fmt.Errorf("register tick: %w", err)
	}
	return s, nil
}

// Start records the context handed to promoted dispatches.
// The tick trigger itself starts lazily on the first Schedule.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()
}

// Stop halts the tick trigger and waits for promoted dispatches until
// ctx expires. In-flight sends are never cancelled.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	s.stopTickingLocked()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Schedule creates one pending task for the recipient. The recipient is
// marked scheduled and a queued timeline entry is written. A missing
// recipient id is a silent no-op (stale selections are expected).
func (s *Service) Schedule(recipientID string, runAt time.Time, message string) error {
	if !runAt.After(time.Now()) {
		return ErrPastRunTime
	}
	rec, ok := s.roster.Get(recipientID)
	if !ok {
		return nil
	}

	task := Task{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		RunAt:       runAt,
		Message:     message,
	}

	s.mu.Lock()
	s.pending = append(s.pending, task)
	s.ensureTickingLocked()
	s.mu.Unlock()

	detail := "Scheduled for " + runAt.Format("Jan 2, 15:04")
	s.roster.SetStatus(recipientID, outreach.StatusScheduled, &runAt, message)
	s.timeline.Append(outreach.Entry{
		ID:              uuid.NewString(),
		RecipientID:     recipientID,
		RecipientHandle: rec.Handle,
		Status:          outreach.EntryQueued,
		Timestamp:       time.Now(),
		Message:         message,
		Detail:          detail,
	})
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type:            eventbus.TypeSendQueued,
			RecipientID:     recipientID,
			RecipientHandle: rec.Handle,
			Detail:          detail,
		})
	}

	s.log.Info("send scheduled",
		logx.String("recipient", recipientID),
		logx.String("handle", rec.Handle),
		logx.Time("run_at", runAt),
	)
	return nil
}

// CancelFor drops all pending tasks for the recipient, typically after
// the recipient was deleted. Returns the number of cancelled tasks.
func (s *Service) CancelFor(recipientID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.pending[:0]
	cancelled := 0
	for _, t := range s.pending {
		if t.RecipientID == recipientID {
			cancelled++
			continue
		}
		kept = append(kept, t)
	}
	s.pending = kept
	if len(s.pending) == 0 {
		s.stopTickingLocked()
	}
	if cancelled > 0 {
		s.log.Debug("pending tasks cancelled",
			logx.String("recipient", recipientID),
			logx.Int("count", cancelled),
		)
	}
	return cancelled
}

func (s *Service) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Service) tick() {
	s.promoteDue(time.Now())
}

// promoteDue removes every due task from the pending set and hands it
// to the dispatch pipeline. Removal happens before the dispatch starts,
// so a task is promoted at most once even if ticks pile up. Due tasks
// whose recipient no longer exists are dropped silently.
func (s *Service) promoteDue(now time.Time) {
	s.mu.Lock()
	var due []Task
	rest := s.pending[:0]
	for _, t := range s.pending {
		if !t.RunAt.After(now) {
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	s.pending = rest
	if len(s.pending) == 0 {
		s.stopTickingLocked()
	}
	ctx := s.runCtx
	s.mu.Unlock()

	for _, t := range due {
		rec, ok := s.roster.Get(t.RecipientID)
		if !ok {
			s.log.Debug("dropping task for deleted recipient",
				logx.String("task", t.ID),
				logx.String("recipient", t.RecipientID),
			)
			continue
		}
		t := t
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			s.dispatch(ctx, rec, t.Message)
		}()
	}
}

func (s *Service) ensureTickingLocked() {
	if s.ticking {
		return
	}
	s.c.Start()
	s.ticking = true
	s.log.Debug("tick trigger started")
}

func (s *Service) stopTickingLocked() {
	if !s.ticking {
		return
	}
	// Stop() is safe from within a tick: it does not wait for running
	// jobs, it only halts the trigger loop.
	s.c.Stop()
	s.ticking = false
	s.log.Debug("tick trigger stopped")
}
