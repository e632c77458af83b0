package dispatch

import (
	"context"
	"runtime/debug"
	"time"

	"outreachbot/internal/eventbus"
	"outreachbot/internal/roster"
	"outreachbot/internal/transport"
	logx "outreachbot/pkg/logx"
	"outreachbot/pkg/metrics"
)

func New(cfg Config, ros *roster.Roster, adapter transport.Adapter, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		ros:     ros,
		adapter: adapter,
		bus:     bus,
		log:     log,
	}
}

const defaultPace = time.Second

// Apply updates the pacing config. Takes effect on the next run.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	// Unbuffered by design: a send succeeds only while the worker is idle
	// and waiting, which is exactly the "no run in flight" condition.
	s.queue = make(chan Request)
	s.runCtx, s.runCancel = context.WithCancel(ctx)

	stopCh := s.stopCh
	queue := s.queue
	runCtx := s.runCtx

	s.workerWG.Add(1)
	go func() {
		defer s.workerWG.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in dispatch worker", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		s.worker(runCtx, stopCh, queue)
	}()
	s.log.Info("dispatcher started", logx.Duration("pace", s.paceLocked()))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	cancel := s.runCancel
	s.stopCh = nil
	s.queue = nil
	s.runCtx = nil
	s.runCancel = nil
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("dispatcher stopped")
	case <-ctx.Done():
		// stop continues in background
	}
}

// TryRun hands the request to the worker. It never blocks: if a run is in
// flight the request is rejected with ErrBusy.
func (s *Service) TryRun(req Request) error {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return ErrNotRunning
	}
	select {
	case q <- req:
		return nil
	default:
		metrics.DispatchBusyTotal.Inc()
		return ErrBusy
	}
}

// Last returns the most recent completed run summary.
func (s *Service) Last() (Summary, bool) {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	if s.last == nil {
		return Summary{}, false
	}
	return *s.last, true
}

func (s *Service) paceLocked() time.Duration {
	if s.cfg.Pace <= 0 {
		return defaultPace
	}
	return s.cfg.Pace
}

func (s *Service) storeLast(sum Summary) {
	s.lastMu.Lock()
	s.last = &sum
	s.lastMu.Unlock()
}
