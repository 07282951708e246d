package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("job run not found")

// JobRunStatus mirrors the job_runs status column.
type JobRunStatus string

// Job run statuses persisted in job_runs.status.
const (
	RunQueued   JobRunStatus = "queued"
	RunRunning  JobRunStatus = "running"
	RunSuccess  JobRunStatus = "success"
	RunPanic    JobRunStatus = "panic"
	RunRejected JobRunStatus = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s JobRunStatus) Valid() bool {
	switch s {
	case RunQueued, RunRunning, RunSuccess, RunPanic, RunRejected:
		return true
	default:
		return false
	}
}

// JobRun models one row of job_runs.
type JobRun struct {
	// ID is the job id handed out by the pool at submission.
	ID uuid.UUID `json:"id"`
	// QueuedAt is when the job entered the queue.
	QueuedAt time.Time `json:"queued_at"`
	// StartedAt is nil until a worker picks the job up.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// FinishedAt is nil until the job completes, panics, or is rejected.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	// WorkerID is the worker that ran the job.
	WorkerID *int32 `json:"worker_id,omitempty"`
	// Status is queued/running/success/panic/rejected.
	Status JobRunStatus `json:"status"`
	// ErrorMessage holds the panic value or rejection reason.
	ErrorMessage *string `json:"error_message,omitempty"`
}

// JobRunRepository persists the lifecycle of pool jobs.
type JobRunRepository interface {
	// RecordQueued inserts the run; repeated calls are no-ops.
	RecordQueued(ctx context.Context, jobID uuid.UUID, queuedAt time.Time) error
	// MarkStarted records the worker and start time, inserting the run if the
	// queued row was never written.
	MarkStarted(ctx context.Context, jobID uuid.UUID, workerID int32, startedAt time.Time) error
	// Complete marks the run finished with the provided status and error.
	Complete(ctx context.Context, jobID uuid.UUID, finishedAt time.Time, status JobRunStatus, errMsg *string) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, jobID uuid.UUID) (JobRun, error)
	// ListRuns returns runs filtered by optional status plus limit/offset, newest first.
	ListRuns(ctx context.Context, status *JobRunStatus, limit, offset int) ([]JobRun, error)
}
