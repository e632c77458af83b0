package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	logx "outreachbot/pkg/logx"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id BIGSERIAL PRIMARY KEY,
	started_at TIMESTAMPTZ NOT NULL,
	origin TEXT NOT NULL,
	sent INTEGER NOT NULL,
	skipped INTEGER NOT NULL,
	failed INTEGER NOT NULL,
	duration_ms BIGINT NOT NULL,
	aborted BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

CREATE TABLE IF NOT EXISTS run_failures (
	run_id BIGINT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	recipient_id TEXT NOT NULL,
	detail TEXT
);
CREATE INDEX IF NOT EXISTS idx_run_failures_run ON run_failures(run_id);
`

type postgresStore struct {
	db  *sql.DB
	log logx.Logger
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	log.Info("analytics store opened", logx.String("driver", "postgres"))
	return &postgresStore{db: db, log: log}, nil
}

// newPostgresStore wraps an existing handle. Used by tests.
func newPostgresStore(db *sql.DB, log logx.Logger) *postgresStore {
	return &postgresStore{db: db, log: log}
}

func (s *postgresStore) RecordRun(ctx context.Context, run RunRecord, failures []FailureRecord) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO runs(started_at, origin, sent, skipped, failed, duration_ms, aborted)
		 VALUES($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		run.StartedAt.UTC(), run.Origin, run.Sent, run.Skipped, run.Failed, run.DurationMS, run.Aborted,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	for _, f := range failures {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_failures(run_id, recipient_id, detail) VALUES($1,$2,$3)`,
			id, f.RecipientID, f.Detail,
		); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *postgresStore) PruneRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *postgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
