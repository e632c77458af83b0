// Package analytics persists dispatch run results and prunes old records
// on a retention schedule. It is entirely optional: with no store configured
// the recorder is a no-op.
package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"outreachbot/internal/dispatch"
	"outreachbot/internal/eventbus"
	"outreachbot/internal/storage"
	logx "outreachbot/pkg/logx"
)

const (
	defaultPruneSpec = "0 4 * * *"
	defaultRetention = 90 * 24 * time.Hour
	eventBuffer      = 16
)

type Config struct {
	// PruneSpec is a cron expression for the retention sweep.
	PruneSpec string
	// Retention is how long run records are kept.
	Retention time.Duration
}

// Recorder subscribes to dispatch events and writes run summaries to the
// configured store.
type Recorder struct {
	mu  sync.Mutex
	cfg Config

	store storage.Store
	bus   eventbus.Bus
	log   logx.Logger

	cron     *cron.Cron
	unsub    func()
	stopCh   chan struct{}
	stopDone chan struct{}
}

func New(cfg Config, store storage.Store, bus eventbus.Bus, log logx.Logger) *Recorder {
	if cfg.PruneSpec == "" {
		cfg.PruneSpec = defaultPruneSpec
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	return &Recorder{cfg: cfg, store: store, bus: bus, log: log}
}

// Start begins consuming dispatch events. It is a no-op without a store.
func (r *Recorder) Start(ctx context.Context) error {
	if r.store == nil {
		r.log.Debug("analytics disabled, no store configured")
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopCh != nil {
		return nil
	}

	events, unsub := r.bus.Subscribe(eventBuffer)
	r.unsub = unsub
	r.stopCh = make(chan struct{})
	r.stopDone = make(chan struct{})

	c := cron.New()
	if _, err := c.AddFunc(r.cfg.PruneSpec, r.prune); err != nil {
		unsub()
		r.unsub = nil
		r.stopCh = nil
		r.stopDone = nil
		return err
	}
	c.Start()
	r.cron = c

	go r.loop(events, r.stopCh, r.stopDone)
	r.log.Info("analytics recorder started",
		logx.String("prune_spec", r.cfg.PruneSpec),
		logx.Duration("retention", r.cfg.Retention))
	return nil
}

// Stop halts the consumer and the retention cron. Safe to call twice.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopCh == nil {
		r.mu.Unlock()
		return nil
	}
	stopCh, stopDone := r.stopCh, r.stopDone
	unsub, c := r.unsub, r.cron
	r.stopCh, r.stopDone, r.unsub, r.cron = nil, nil, nil, nil
	r.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	unsub()
	close(stopCh)
	select {
	case <-stopDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (r *Recorder) loop(events <-chan eventbus.Event, stopCh <-chan struct{}, stopDone chan<- struct{}) {
	defer close(stopDone)
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			if e.Type != dispatch.EventRunFinished {
				continue
			}
			sum, ok := e.Data.(dispatch.Summary)
			if !ok {
				continue
			}
			r.record(sum)
		case <-stopCh:
			return
		}
	}
}

func (r *Recorder) record(sum dispatch.Summary) {
	run := storage.RunRecord{
		StartedAt:  sum.StartedAt,
		Origin:     string(sum.Origin),
		Sent:       sum.Sent,
		Skipped:    sum.Skipped,
		Failed:     sum.Failed,
		DurationMS: sum.Duration.Milliseconds(),
		Aborted:    sum.Aborted,
	}
	var failures []storage.FailureRecord
	for _, o := range sum.Outcomes {
		if o.Status != dispatch.StatusFailed {
			continue
		}
		failures = append(failures, storage.FailureRecord{
			RecipientID: o.RecipientID,
			Detail:      o.Detail,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	id, err := r.store.RecordRun(ctx, run, failures)
	if err != nil {
		r.log.Error("record run", logx.Err(err))
		return
	}
	r.log.Debug("run recorded", logx.Int64("run_id", id), logx.Int("failures", len(failures)))
}

func (r *Recorder) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	cutoff := time.Now().Add(-r.cfg.Retention)
	n, err := r.store.PruneRunsBefore(ctx, cutoff)
	if err != nil {
		r.log.Error("prune runs", logx.Err(err))
		return
	}
	if n > 0 {
		r.log.Info("pruned old runs", logx.Int64("pruned", n), logx.Time("cutoff", cutoff))
	}
}
