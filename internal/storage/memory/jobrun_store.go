// Package memory provides an in-process job-run store for local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/minhd-vu/webserver/internal/store"
)

// DefaultRetention caps how many runs are kept before the oldest are evicted.
const DefaultRetention = 10000

// JobRunStore implements store.JobRunRepository in memory.
type JobRunStore struct {
	mu        sync.RWMutex
	runs      map[uuid.UUID]store.JobRun
	order     []uuid.UUID
	retention int
}

// NewJobRunStore constructs a JobRunStore keeping at most retention runs;
// non-positive values use DefaultRetention.
func NewJobRunStore(retention int) *JobRunStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &JobRunStore{
		runs:      make(map[uuid.UUID]store.JobRun),
		retention: retention,
	}
}

// RecordQueued inserts a queued run unless it already exists.
func (s *JobRunStore) RecordQueued(_ context.Context, jobID uuid.UUID, queuedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[jobID]; ok {
		return nil
	}
	s.insertLocked(store.JobRun{ID: jobID, QueuedAt: queuedAt, Status: store.RunQueued})
	return nil
}

// MarkStarted records the worker and start time.
func (s *JobRunStore) MarkStarted(_ context.Context, jobID uuid.UUID, workerID int32, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[jobID]
	if !ok {
		run = store.JobRun{ID: jobID, QueuedAt: startedAt}
		s.insertLocked(run)
	}
	run.StartedAt = pointerTime(startedAt)
	run.WorkerID = &workerID
	run.Status = store.RunRunning
	s.runs[jobID] = run
	return nil
}

// Complete marks the run finished.
func (s *JobRunStore) Complete(
	_ context.Context,
	jobID uuid.UUID,
	finishedAt time.Time,
	status store.JobRunStatus,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[jobID]
	if !ok {
		return store.ErrNotFound
	}
	run.FinishedAt = pointerTime(finishedAt)
	run.Status = status
	run.ErrorMessage = errMsg
	s.runs[jobID] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *JobRunStore) GetRun(_ context.Context, jobID uuid.UUID) (store.JobRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[jobID]
	if !ok {
		return store.JobRun{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first, optionally filtered by status.
func (s *JobRunStore) ListRuns(
	_ context.Context,
	status *store.JobRunStatus,
	limit,
	offset int,
) ([]store.JobRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.JobRun
	for _, id := range s.order {
		run := s.runs[id]
		if status != nil && run.Status != *status {
			continue
		}
		out = append(out, run)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].QueuedAt.After(out[j].QueuedAt)
	})
	if offset >= len(out) {
		return []store.JobRun{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *JobRunStore) insertLocked(run store.JobRun) {
	s.runs[run.ID] = run
	s.order = append(s.order, run.ID)
	for len(s.order) > s.retention {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
