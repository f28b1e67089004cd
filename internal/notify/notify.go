// Package notify turns send.failed events into operator-facing alert
// log lines, throttled so a burst of provider failures does not flood
// the sink.
package notify

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"dmflow/internal/eventbus"
	"dmflow/pkg/logx"
)

type Config struct {
	// RatePerSec caps alert lines per second. Burst equals the rate so
	// short spikes pass through before throttling kicks in.
	RatePerSec int
	// Buffer sizes the bus subscription channel.
	Buffer int
}

type Service struct {
	mu  sync.Mutex
	cfg Config
	bus eventbus.Bus
	log logx.Logger

	limiter *rate.Limiter
	dropped atomic.Uint64

	unsub    func()
	stopDone chan struct{}
}

func New(cfg Config, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{bus: bus, log: log.With(logx.String("svc", "notify"))}
	s.applyLocked(cfg)
	return s
}

// Apply updates the throttle settings at runtime.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(cfg)
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Dropped reports how many failure events were suppressed by the
// throttle since start.
func (s *Service) Dropped() uint64 { return s.dropped.Load() }

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.unsub != nil || s.bus == nil {
		s.mu.Unlock()
		return
	}
	ch, unsub := s.bus.Subscribe(s.cfg.Buffer)
	s.unsub = unsub
	done := make(chan struct{})
	s.stopDone = done
	s.mu.Unlock()

	go s.run(ch, done)
	s.log.Debug("notify service started", logx.Int("rate_per_sec", s.cfg.RatePerSec))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	unsub := s.unsub
	done := s.stopDone
	s.unsub = nil
	s.stopDone = nil
	s.mu.Unlock()

	if unsub == nil {
		return
	}
	unsub()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Service) run(ch <-chan eventbus.Event, done chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("notify worker panicked", logx.Any("panic", r))
		}
		close(done)
	}()

	for ev := range ch {
		if ev.Type != eventbus.TypeSendFailed {
			continue
		}
		s.mu.Lock()
		lim := s.limiter
		s.mu.Unlock()
		if !lim.Allow() {
			s.dropped.Add(1)
			continue
		}
		s.log.Warn("send failed",
			logx.String("recipient", ev.RecipientID),
			logx.String("handle", ev.RecipientHandle),
			logx.String("reason", ev.Detail),
			logx.Time("at", ev.Time))
	}
}
