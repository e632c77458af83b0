package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	logx "outreachbot/pkg/logx"
)

func TestRecordRunInsertsRunAndFailures(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	started := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO runs`).
		WithArgs(started, "manual", 3, 1, 2, int64(4200), false).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec(`INSERT INTO run_failures`).
		WithArgs(int64(7), "r1", "send failed").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO run_failures`).
		WithArgs(int64(7), "r2", "send failed").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	st := newPostgresStore(db, logx.Nop())
	id, err := st.RecordRun(context.Background(), RunRecord{
		StartedAt:  started,
		Origin:     "manual",
		Sent:       3,
		Skipped:    1,
		Failed:     2,
		DurationMS: 4200,
	}, []FailureRecord{
		{RecipientID: "r1", Detail: "send failed"},
		{RecipientID: "r2", Detail: "send failed"},
	})
	if err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if id != 7 {
		t.Fatalf("id = %d, want 7", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestRecordRunRollsBackOnFailureInsertError(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	boom := errors.New("disk full")
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO runs`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec(`INSERT INTO run_failures`).WillReturnError(boom)
	mock.ExpectRollback()

	st := newPostgresStore(db, logx.Nop())
	_, err = st.RecordRun(context.Background(), RunRecord{
		StartedAt: time.Now(),
		Origin:    "scheduled",
	}, []FailureRecord{{RecipientID: "r1", Detail: "x"}})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestPruneRunsBefore(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`DELETE FROM runs WHERE started_at`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 12))

	st := newPostgresStore(db, logx.Nop())
	n, err := st.PruneRunsBefore(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("PruneRunsBefore: %v", err)
	}
	if n != 12 {
		t.Fatalf("pruned = %d, want 12", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestOpenDisabledAndUnknownDriver(t *testing.T) {
	t.Parallel()

	st, err := Open(Config{Driver: ""}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("Open(none) = %v, %v; want nil, nil", st, err)
	}
	st, err = Open(Config{Driver: "none"}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("Open(none) = %v, %v; want nil, nil", st, err)
	}
	if _, err := Open(Config{Driver: "oracle"}, logx.Nop()); err == nil {
		t.Fatal("Open(oracle) should fail")
	}
}
