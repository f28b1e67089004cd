package automation

import (
	"context"
	"errors"
	"time"

	"dmflow/internal/schedule"
	"dmflow/pkg/logx"
)

// SendNow dispatches the current selection serially, one recipient at a
// time, and returns the number of attempts made. It is a no-op when the
// selection is empty or another batch is already in flight: a second
// call while one is running is ignored, not queued. The strict
// serialization bounds load on the send boundary to one in-flight
// request from this path.
func (s *Service) SendNow(ctx context.Context) int {
	s.mu.Lock()
	if s.sending || len(s.selection) == 0 {
		s.mu.Unlock()
		return 0
	}
	s.sending = true
	ids := append([]string(nil), s.selection...)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sending = false
		s.mu.Unlock()
	}()

	n := 0
	for _, id := range ids {
		rec, ok := s.roster.Get(id)
		if !ok {
			// Stale selection entry; skip silently.
			continue
		}
		msg := s.buildMessage(rec)
		s.dispatcher.Dispatch(ctx, rec, msg)
		n++
	}
	s.log.Info("send-now batch finished", logx.Int("attempted", n))
	return n
}

// ScheduleSend queues one task per selected recipient for runAt. Each
// message is finalized now; template edits after this call do not
// change what a pending task will send. A run time at or before now
// degrades to an immediate send rather than an error, so operator
// intent is never silently dropped.
func (s *Service) ScheduleSend(ctx context.Context, runAt time.Time) (scheduled int, immediate bool) {
	s.mu.Lock()
	ids := append([]string(nil), s.selection...)
	s.mu.Unlock()
	if len(ids) == 0 {
		return 0, false
	}

	if !runAt.After(time.Now()) {
		return s.SendNow(ctx), true
	}

	for _, id := range ids {
		rec, ok := s.roster.Get(id)
		if !ok {
			continue
		}
		msg := s.buildMessage(rec)
		if err := s.sched.Schedule(id, runAt, msg); err != nil {
			if errors.Is(err, schedule.ErrPastRunTime) {
				// The deadline slipped past while we were queueing;
				// honor the degrade-to-immediate policy per recipient.
				s.dispatcher.Dispatch(ctx, rec, msg)
				scheduled++
				continue
			}
			s.log.Warn("schedule failed", logx.String("recipient", id), logx.Err(err))
			continue
		}
		scheduled++
	}
	return scheduled, false
}
