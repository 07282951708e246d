// Package postgres provides the Postgres-backed job-run store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/minhd-vu/webserver/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "job_runs"

// Config controls the Postgres connection pool used for job runs.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// querier is the subset of *pgxpool.Pool the store needs; pgxmock satisfies it.
type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// JobRunStore implements store.JobRunRepository using Postgres.
//
// Expected schema:
//
//	CREATE TABLE job_runs (
//	    id            uuid PRIMARY KEY,
//	    queued_at     timestamptz NOT NULL,
//	    started_at    timestamptz,
//	    finished_at   timestamptz,
//	    worker_id     integer,
//	    status        text NOT NULL,
//	    error_message text
//	);
type JobRunStore struct {
	pool  querier
	table string
}

// NewJobRunStore connects to Postgres using cfg.
func NewJobRunStore(ctx context.Context, cfg Config) (*JobRunStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("progress.postgres_dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &JobRunStore{pool: pool, table: table}, nil
}

// NewJobRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewJobRunStoreWithPool(pool querier, table string) (*JobRunStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &JobRunStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		return defaultTable, nil
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *JobRunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// RecordQueued inserts a queued run; a duplicate id is ignored.
func (s *JobRunStore) RecordQueued(ctx context.Context, jobID uuid.UUID, queuedAt time.Time) error {
	query := fmt.Sprintf(`
INSERT INTO %s (id, queued_at, status)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO NOTHING`, s.table)
	if _, err := s.pool.Exec(ctx, query, jobID, queuedAt, store.RunQueued); err != nil {
		return fmt.Errorf("insert queued run: %w", err)
	}
	return nil
}

// MarkStarted upserts the start time and worker of a run.
func (s *JobRunStore) MarkStarted(ctx context.Context, jobID uuid.UUID, workerID int32, startedAt time.Time) error {
	query := fmt.Sprintf(`
INSERT INTO %s (id, queued_at, started_at, worker_id, status)
VALUES ($1, $2, $2, $3, $4)
ON CONFLICT (id) DO UPDATE
SET started_at = EXCLUDED.started_at,
	worker_id = EXCLUDED.worker_id,
	status = EXCLUDED.status`, s.table)
	if _, err := s.pool.Exec(ctx, query, jobID, startedAt, workerID, store.RunRunning); err != nil {
		return fmt.Errorf("mark run started: %w", err)
	}
	return nil
}

// Complete marks a run finished with a status and optional error message.
func (s *JobRunStore) Complete(
	ctx context.Context,
	jobID uuid.UUID,
	finishedAt time.Time,
	status store.JobRunStatus,
	errMsg *string,
) error {
	query := fmt.Sprintf(`
UPDATE %s
SET finished_at = $1, status = $2, error_message = $3
WHERE id = $4`, s.table)
	tag, err := s.pool.Exec(ctx, query, finishedAt, status, errMsg, jobID)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *JobRunStore) GetRun(ctx context.Context, jobID uuid.UUID) (store.JobRun, error) {
	query := fmt.Sprintf(`
SELECT id, queued_at, started_at, finished_at, worker_id, status, error_message
FROM %s
WHERE id = $1`, s.table)
	run, err := scanRun(s.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.JobRun{}, store.ErrNotFound
		}
		return store.JobRun{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, with optional status filtering.
func (s *JobRunStore) ListRuns(
	ctx context.Context,
	status *store.JobRunStatus,
	limit,
	offset int,
) ([]store.JobRun, error) {
	query := fmt.Sprintf(`
SELECT id, queued_at, started_at, finished_at, worker_id, status, error_message
FROM %s
WHERE ($1::text IS NULL OR status = $1)
ORDER BY queued_at DESC
LIMIT $2 OFFSET $3`, s.table)
	var filter *string
	if status != nil {
		v := string(*status)
		filter = &v
	}
	rows, err := s.pool.Query(ctx, query, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []store.JobRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (store.JobRun, error) {
	var (
		run    store.JobRun
		status string
	)
	if err := row.Scan(
		&run.ID,
		&run.QueuedAt,
		&run.StartedAt,
		&run.FinishedAt,
		&run.WorkerID,
		&status,
		&run.ErrorMessage,
	); err != nil {
		return store.JobRun{}, err //nolint:wrapcheck // callers wrap with context
	}
	run.Status = store.JobRunStatus(status)
	return run, nil
}
