package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"outreachbot/internal/eventbus"
	"outreachbot/internal/roster"
	"outreachbot/internal/transport"
	logx "outreachbot/pkg/logx"
)

// ErrBusy is returned when a run is requested while another is in flight.
// Requests are never queued: the caller decides whether to retry.
var ErrBusy = errors.New("dispatch already in progress")

// ErrNotRunning is returned when the dispatcher worker is not started.
var ErrNotRunning = errors.New("dispatcher not running")

type Origin string

const (
	OriginManual    Origin = "manual"
	OriginScheduled Origin = "scheduled"
)

type Status string

const (
	StatusSent    Status = "sent"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Outcome is the per-recipient result of one dispatch run.
type Outcome struct {
	RecipientID string
	Status      Status
	Detail      string
}

// Summary is the full result of one dispatch run. Outcomes are in roster
// order and cover exactly the effective recipient set (roster ∩ filter).
type Summary struct {
	Origin    Origin
	StartedAt time.Time
	Duration  time.Duration

	Outcomes []Outcome
	Sent     int
	Skipped  int
	Failed   int

	// Aborted is set when the run was cut short by process shutdown.
	// Cancel never aborts a run that already started.
	Aborted bool
}

func (s Summary) Total() int { return len(s.Outcomes) }

// Request describes one dispatch run. Filter semantics follow the campaign
// selection: nil selects the whole roster, an empty set selects nobody.
type Request struct {
	Origin   Origin
	Filter   map[string]struct{}
	Template string

	// OnDone, if set, runs on the worker goroutine after the summary is
	// final (used for operator notification and schedule bookkeeping).
	OnDone func(Summary)
}

// Event types published on the bus.
const (
	EventRunStarted  = "dispatch.run_started"
	EventRunFinished = "dispatch.run_finished"
)

// RunStarted is the payload of EventRunStarted events.
type RunStarted struct {
	Origin  Origin
	Planned int
}

type Config struct {
	// Pace is the minimum interval between consecutive delivery attempts
	// (downstream rate limit). Defaults to one second.
	Pace time.Duration
}

// Service executes dispatch runs on a single background worker. At most one
// run is in flight system-wide; the hand-off channel is unbuffered so a
// second request is rejected, never queued behind the first.
type Service struct {
	mu  sync.Mutex
	cfg Config

	ros     *roster.Roster
	adapter transport.Adapter
	log     logx.Logger
	bus     eventbus.Bus

	queue     chan Request
	stopCh    chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	lastMu sync.Mutex
	last   *Summary
}
