// Package schedule owns the single delayed dispatch job. At most one job is
// armed at any time; arming while armed replaces the previous job, and the
// replacement fully cancels the old timer before the new one exists, so a
// replaced job can never fire late.
package schedule

import (
	"errors"
	"sync"
	"time"

	logx "outreachbot/pkg/logx"
)

var ErrScheduleInPast = errors.New("schedule time is not in the future")

// Service is a one-shot scheduler with states Idle and Armed. It is the
// sole owner of the underlying timer handle.
type Service struct {
	mu    sync.Mutex
	log   logx.Logger
	timer *time.Timer
	at    time.Time

	// ver invalidates callbacks from timers that were cancelled or
	// replaced after their AfterFunc already started racing the lock.
	ver uint64
}

func New(log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log}
}

// Arm schedules job to run once at the given time. The time must be
// strictly in the future. If a job is already armed it is cancelled first;
// the scheduler state is unchanged when Arm returns an error.
//
// job runs on the timer goroutine after the scheduler has already
// transitioned back to Idle, so the job may re-arm if it wants to.
func (s *Service) Arm(at time.Time, job func()) error {
	now := time.Now()
	if !at.After(now) {
		return ErrScheduleInPast
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// cancel-before-arm: the old timer must be dead before the new job
	// exists, otherwise a late fire could race the replacement
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.ver++
	ver := s.ver
	s.at = at

	s.timer = time.AfterFunc(at.Sub(now), func() {
		s.mu.Lock()
		if s.ver != ver {
			// cancelled or replaced after the timer fired
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.at = time.Time{}
		s.mu.Unlock()

		job()
	})

	s.log.Info("dispatch scheduled", logx.Time("fire_at", at))
	return nil
}

// Cancel disarms the pending job if any. Cancelling an idle scheduler is a
// no-op. Returns whether a job was actually disarmed.
func (s *Service) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer == nil {
		return false
	}
	s.timer.Stop()
	s.timer = nil
	s.at = time.Time{}
	s.ver++
	s.log.Info("scheduled dispatch cancelled")
	return true
}

// Armed reports the pending fire time, if any.
func (s *Service) Armed() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer == nil {
		return time.Time{}, false
	}
	return s.at, true
}
