// Package storage persists dispatch-run analytics records. It is an
// optional collaborator: the engine itself keeps no durable state, and a
// disabled store never fails an operation.
package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config selects the analytics backend.
//
// Driver values:
//   - "" or "none": disabled
//   - "sqlite": local database file (Path)
//   - "postgres": shared database (DSN)
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord is one dispatch-run summary row. Keep it compact and
// schema-stable.
type RunRecord struct {
	StartedAt  time.Time
	Origin     string
	Sent       int
	Skipped    int
	Failed     int
	DurationMS int64
	Aborted    bool
}

// FailureRecord is one failed delivery within a run.
type FailureRecord struct {
	RecipientID string
	Detail      string
}

// Store is the persistence API used by the analytics recorder.
type Store interface {
	RecordRun(ctx context.Context, run RunRecord, failures []FailureRecord) (int64, error)
	PruneRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}
