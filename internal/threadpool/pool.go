// Package threadpool runs submitted jobs on a fixed set of long-lived workers
// fed by a shared FIFO queue.
//
// Shutdown is two-phase: the queue's sending end is released first, so no new
// job can be accepted, then every worker is joined in ascending id order once
// it has drained whatever was already queued. Queued work is never discarded.
package threadpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/minhd-vu/webserver/internal/progress"
)

// Pool is a fixed-size set of workers plus the sending end of their queue.
type Pool struct {
	size    int
	workers []*worker
	queue   *jobQueue
	state   atomic.Int32
	live    atomic.Int64

	stopOnce sync.Once
	stopped  chan struct{}

	logger  *zap.Logger
	emitter progress.Emitter
	ids     IDGenerator
	clock   Clock
}

// New builds a pool of size workers. It panics with a *PoolCreationError when
// size is not positive; use Build to handle that case.
func New(size int, opts ...Option) *Pool {
	p, err := Build(size, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// Build builds a pool of size workers, or returns a *PoolCreationError when
// size is not positive.
func Build(size int, opts ...Option) (*Pool, error) {
	if size <= 0 {
		return nil, &PoolCreationError{Size: size}
	}
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	p := &Pool{
		size:    size,
		workers: make([]*worker, 0, size),
		queue:   newJobQueue(s.queueDepth),
		stopped: make(chan struct{}),
		logger:  s.logger,
		emitter: s.emitter,
		ids:     s.ids,
		clock:   s.clock,
	}
	p.state.Store(int32(StateConstructing))
	for id := 1; id <= size; id++ {
		p.workers = append(p.workers, startWorker(id, p.queue, p.runJob, &p.live, p.logger))
	}
	p.state.Store(int32(StateRunning))
	p.logger.Info("thread pool started", zap.Int("size", size), zap.Int("queue_depth", s.queueDepth))
	return p, nil
}

// Execute submits job for asynchronous execution. It only blocks while the
// queue is full. Once shutdown has begun it returns ErrPoolClosed.
func (p *Pool) Execute(job Job) error {
	_, err := p.Submit(context.Background(), job)
	return err
}

// ExecuteContext is Execute with ctx bounding the wait for queue space.
func (p *Pool) ExecuteContext(ctx context.Context, job Job) error {
	_, err := p.Submit(ctx, job)
	return err
}

// Submit queues job and returns the ID it is reported under.
func (p *Pool) Submit(ctx context.Context, job Job) (uuid.UUID, error) {
	if job == nil {
		return uuid.Nil, ErrNilJob
	}
	if p.State() != StateRunning {
		return uuid.Nil, ErrPoolClosed
	}
	id, err := p.ids.NewID()
	if err != nil {
		return uuid.Nil, fmt.Errorf("submit job: %w", err)
	}
	item := queuedJob{id: id, job: job, queuedAt: p.clock.Now()}
	p.emit(progress.Event{
		JobID: progress.UUIDToBytes(id),
		TS:    item.queuedAt,
		Stage: progress.StageJobQueued,
	})
	if err := p.queue.Send(ctx, item); err != nil {
		p.emit(progress.Event{
			JobID: progress.UUIDToBytes(id),
			TS:    p.clock.Now(),
			Stage: progress.StageJobRejected,
			Note:  err.Error(),
		})
		if errors.Is(err, ErrQueueClosed) {
			return uuid.Nil, ErrPoolClosed
		}
		return uuid.Nil, fmt.Errorf("submit job: %w", err)
	}
	return id, nil
}

// Shutdown releases the sending end of the queue and waits until every worker
// has drained the queue and exited. It is safe to call more than once and
// from several goroutines; all callers return once the pool is stopped.
func (p *Pool) Shutdown() {
	_ = p.ShutdownContext(context.Background())
}

// ShutdownContext starts the same teardown as Shutdown but stops waiting when
// ctx ends. Teardown itself keeps going and no queued job is dropped.
func (p *Pool) ShutdownContext(ctx context.Context) error {
	p.stopOnce.Do(func() {
		p.state.Store(int32(StateShuttingDown))
		p.logger.Info("shutting down thread pool", zap.Int("queued", p.queue.Len()))
		// Close waits for senders parked on a full queue, so it runs with the
		// join off the caller's goroutine and ctx still bounds the wait.
		go func() {
			p.queue.Close()
			p.joinWorkers()
		}()
	})
	select {
	case <-p.stopped:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("thread pool shutdown wait: %w", ctx.Err())
	}
}

// Done is closed once every worker has been joined.
func (p *Pool) Done() <-chan struct{} {
	return p.stopped
}

// Size is the fixed number of workers.
func (p *Pool) Size() int {
	return p.size
}

// LiveWorkers counts worker goroutines that have not exited yet.
func (p *Pool) LiveWorkers() int {
	return int(p.live.Load())
}

// QueueLen reports jobs waiting for a worker.
func (p *Pool) QueueLen() int {
	return p.queue.Len()
}

// QueueCap reports the queue capacity.
func (p *Pool) QueueCap() int {
	return p.queue.Cap()
}

// State reports the current lifecycle phase.
func (p *Pool) State() State {
	return State(p.state.Load())
}

func (p *Pool) joinWorkers() {
	for _, w := range p.workers {
		w.join()
		p.logger.Debug("worker joined", zap.Int("worker_id", w.id))
	}
	p.state.Store(int32(StateStopped))
	p.logger.Info("thread pool stopped")
	close(p.stopped)
}

// runJob executes one job on behalf of worker workerID. A panic is confined
// to the job: it is logged and reported, and the worker keeps going.
func (p *Pool) runJob(workerID int, item queuedJob) {
	jobID := progress.UUIDToBytes(item.id)
	start := p.clock.Now()
	p.emit(progress.Event{
		JobID:    jobID,
		TS:       start,
		Stage:    progress.StageJobStart,
		WorkerID: workerID,
		Dur:      nonNegative(start.Sub(item.queuedAt)),
	})
	defer func() {
		end := p.clock.Now()
		evt := progress.Event{
			JobID:    jobID,
			TS:       end,
			Stage:    progress.StageJobDone,
			WorkerID: workerID,
			Dur:      nonNegative(end.Sub(start)),
		}
		if rec := recover(); rec != nil {
			p.logger.Error("job panicked",
				zap.Int("worker_id", workerID),
				zap.Stringer("job_id", item.id),
				zap.Any("panic", rec),
				zap.StackSkip("stack", 1),
			)
			evt.Stage = progress.StageJobPanic
			evt.Note = fmt.Sprint(rec)
		}
		p.emit(evt)
	}()
	p.logger.Debug("worker got a job; executing",
		zap.Int("worker_id", workerID),
		zap.Stringer("job_id", item.id),
	)
	item.job()
}

func (p *Pool) emit(evt progress.Event) {
	if p.emitter == nil {
		return
	}
	p.emitter.Emit(evt)
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
