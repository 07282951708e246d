package sinks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/minhd-vu/webserver/internal/progress"
	"github.com/minhd-vu/webserver/internal/store"
)

// StoreSink persists job lifecycle transitions via a store.JobRunRepository.
type StoreSink struct {
	repo   store.JobRunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.JobRunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume applies each event to the repository in order. It respects ctx
// deadlines and stops at the first repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		if err := s.apply(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreSink) apply(ctx context.Context, evt progress.Event) error {
	jobID := evt.JobUUID()
	switch evt.Stage {
	case progress.StageJobQueued:
		if err := s.repo.RecordQueued(ctx, jobID, evt.TS); err != nil {
			return fmt.Errorf("record queued run: %w", err)
		}
	case progress.StageJobStart:
		if err := s.repo.MarkStarted(ctx, jobID, int32(evt.WorkerID), evt.TS); err != nil { //nolint:gosec // worker ids are small
			return fmt.Errorf("mark run started: %w", err)
		}
	case progress.StageJobDone:
		return s.complete(ctx, evt, store.RunSuccess)
	case progress.StageJobPanic:
		return s.complete(ctx, evt, store.RunPanic)
	case progress.StageJobRejected:
		return s.complete(ctx, evt, store.RunRejected)
	}
	return nil
}

func (s *StoreSink) complete(ctx context.Context, evt progress.Event, status store.JobRunStatus) error {
	var note *string
	if evt.Note != "" {
		note = &evt.Note
	}
	err := s.repo.Complete(ctx, evt.JobUUID(), evt.TS, status, note)
	if errors.Is(err, store.ErrNotFound) {
		// The queued row was lost (e.g. dropped by the hub); nothing to finish.
		s.logger.Warn("completing unknown job run",
			zap.Stringer("job_id", evt.JobUUID()),
			zap.String("status", string(status)),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
