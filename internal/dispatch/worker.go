package dispatch

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"outreachbot/internal/eventbus"
	"outreachbot/internal/message"
	logx "outreachbot/pkg/logx"
	"outreachbot/pkg/metrics"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan Request) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case req := <-queue:
			s.execRun(ctx, req)
		}
	}
}

func (s *Service) execRun(ctx context.Context, req Request) {
	start := time.Now()

	s.mu.Lock()
	pace := s.paceLocked()
	s.mu.Unlock()
	// Burst 1: the first attempt goes out immediately, every later attempt
	// waits out the pacing interval, failures included.
	limiter := rate.NewLimiter(rate.Every(pace), 1)

	all := s.ros.All()
	planned := len(all)
	if req.Filter != nil {
		planned = len(req.Filter)
	}
	s.log.Info("dispatch run started",
		logx.String("origin", string(req.Origin)),
		logx.Int("planned", planned))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: EventRunStarted, Data: RunStarted{Origin: req.Origin, Planned: planned}})
	}

	sum := Summary{Origin: req.Origin, StartedAt: start}

runLoop:
	for _, rc := range all {
		if req.Filter != nil {
			if _, ok := req.Filter[rc.ID]; !ok {
				continue
			}
		}
		if !rc.HasAddress() {
			sum.Outcomes = append(sum.Outcomes, Outcome{RecipientID: rc.ID, Status: StatusSkipped, Detail: "no delivery address"})
			sum.Skipped++
			metrics.MessagesSkippedTotal.Inc()
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			// process shutdown mid-run; the run cannot be cancelled any
			// other way once it has started
			sum.Outcomes = append(sum.Outcomes, Outcome{RecipientID: rc.ID, Status: StatusFailed, Detail: "run aborted: " + err.Error()})
			sum.Failed++
			sum.Aborted = true
			break runLoop
		}

		text := message.Render(req.Template, rc.Name, rc.Company)
		if err := s.adapter.SendText(ctx, rc.Address, text); err != nil {
			sum.Outcomes = append(sum.Outcomes, Outcome{RecipientID: rc.ID, Status: StatusFailed, Detail: err.Error()})
			sum.Failed++
			metrics.MessagesFailedTotal.Inc()
			s.log.Warn("delivery failed",
				logx.String("recipient", rc.ID),
				logx.String("name", rc.Name),
				logx.Err(err))
			continue
		}
		sum.Outcomes = append(sum.Outcomes, Outcome{RecipientID: rc.ID, Status: StatusSent})
		sum.Sent++
		metrics.MessagesSentTotal.Inc()
	}

	sum.Duration = time.Since(start)
	metrics.DispatchRunsTotal.WithLabelValues(string(req.Origin)).Inc()
	metrics.DispatchRunDuration.Observe(sum.Duration.Seconds())
	s.storeLast(sum)

	fields := []logx.Field{
		logx.String("origin", string(req.Origin)),
		logx.Int("sent", sum.Sent),
		logx.Int("skipped", sum.Skipped),
		logx.Int("failed", sum.Failed),
		logx.Duration("dur", sum.Duration),
	}
	if sum.Failed > 0 {
		s.log.Warn("dispatch run finished with failures", fields...)
	} else {
		s.log.Info("dispatch run finished", fields...)
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: EventRunFinished, Data: sum})
	}
	if req.OnDone != nil {
		req.OnDone(sum)
	}
}
