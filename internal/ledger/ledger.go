// Package ledger records sync runs and per-job outcomes in Postgres.
package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Job statuses.
const (
	StatusWritten = "written"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Run is one invocation of the sync engine.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt *time.Time
	Jobs       int
	Failed     int
	Snapshot   string
}

// JobResult is the outcome of one job of a run.
type JobResult struct {
	Job        string
	DatabaseID string
	Table      string
	Status     string
	Records    int
	Linked     int
	Pending    int
	Error      string
	Archive    string
}

// Ledger is a Postgres-backed run ledger.
type Ledger struct {
	db *pgxpool.Pool
}

// Open connects to Postgres and ensures the ledger tables exist.
func Open(ctx context.Context, dsn string) (*Ledger, error) {
	if dsn == "" {
		return nil, errors.New("ledger DSN is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "connect ledger")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping ledger")
	}
	if err := ensureTables(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Ledger{db: pool}, nil
}

func ensureTables(ctx context.Context, db *pgxpool.Pool) error {
	runs := `
CREATE TABLE IF NOT EXISTS sync_runs (
  run_id text PRIMARY KEY,
  started_at timestamptz NOT NULL,
  finished_at timestamptz,
  jobs integer NOT NULL DEFAULT 0,
  failed integer NOT NULL DEFAULT 0,
  snapshot text NOT NULL DEFAULT ''
)`
	results := `
CREATE TABLE IF NOT EXISTS sync_job_results (
  run_id text NOT NULL REFERENCES sync_runs(run_id) ON DELETE CASCADE,
  position integer NOT NULL,
  job text NOT NULL,
  database_id text NOT NULL,
  table_name text NOT NULL,
  status text NOT NULL,
  records integer NOT NULL DEFAULT 0,
  linked integer NOT NULL DEFAULT 0,
  pending integer NOT NULL DEFAULT 0,
  error text NOT NULL DEFAULT '',
  archive text NOT NULL DEFAULT '',
  recorded_at timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (run_id, position)
)`
	for _, ddl := range []string{runs, results} {
		if _, err := db.Exec(ctx, ddl); err != nil {
			return errors.Wrap(err, "ensure ledger tables")
		}
	}
	return nil
}

// Close releases the connection pool.
func (l *Ledger) Close() {
	l.db.Close()
}

// StartRun inserts a run row.
func (l *Ledger) StartRun(ctx context.Context, run Run) error {
	_, err := l.db.Exec(ctx,
		`INSERT INTO sync_runs (run_id, started_at, jobs) VALUES ($1, $2, $3)`,
		run.ID, run.StartedAt, run.Jobs)
	return errors.Wrapf(err, "start run %s", run.ID)
}

// RecordJob appends a job result to a run.
func (l *Ledger) RecordJob(ctx context.Context, runID string, result JobResult) error {
	_, err := l.db.Exec(ctx, `
INSERT INTO sync_job_results
  (run_id, position, job, database_id, table_name, status, records, linked, pending, error, archive)
VALUES
  ($1, (SELECT COUNT(*) FROM sync_job_results WHERE run_id = $1), $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		runID, result.Job, result.DatabaseID, result.Table, result.Status,
		result.Records, result.Linked, result.Pending, result.Error, result.Archive)
	return errors.Wrapf(err, "record job %s", result.Job)
}

// FinishRun closes a run row.
func (l *Ledger) FinishRun(ctx context.Context, run Run) error {
	finished := time.Now().UTC()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	_, err := l.db.Exec(ctx,
		`UPDATE sync_runs SET finished_at = $2, failed = $3, snapshot = $4 WHERE run_id = $1`,
		run.ID, finished, run.Failed, run.Snapshot)
	return errors.Wrapf(err, "finish run %s", run.ID)
}

// Runs returns the most recent runs, newest first.
func (l *Ledger) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.Query(ctx, `
SELECT run_id, started_at, finished_at, jobs, failed, snapshot
FROM sync_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Run, error) {
		var r Run
		err := row.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Jobs, &r.Failed, &r.Snapshot)
		return r, err
	})
}

// JobResults returns the job results of a run in execution order.
func (l *Ledger) JobResults(ctx context.Context, runID string) ([]JobResult, error) {
	rows, err := l.db.Query(ctx, `
SELECT job, database_id, table_name, status, records, linked, pending, error, archive
FROM sync_job_results WHERE run_id = $1 ORDER BY position`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "list job results of %s", runID)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (JobResult, error) {
		var r JobResult
		err := row.Scan(&r.Job, &r.DatabaseID, &r.Table, &r.Status, &r.Records, &r.Linked, &r.Pending, &r.Error, &r.Archive)
		return r, err
	})
}
