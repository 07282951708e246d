package threadpool

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/minhd-vu/webserver/internal/progress"
)

func TestBuild_RejectsNonPositiveSize(t *testing.T) {
	t.Parallel()

	for _, size := range []int{0, -1} {
		pool, err := Build(size)
		require.Nil(t, pool)
		require.Error(t, err)

		var creationErr *PoolCreationError
		require.ErrorAs(t, err, &creationErr)
		require.Equal(t, size, creationErr.Size)
		require.ErrorIs(t, err, ErrInvalidSize)
	}
}

func TestNew_PanicsOnZeroSize(t *testing.T) {
	t.Parallel()

	defer func() {
		rec := recover()
		require.NotNil(t, rec, "New(0) should panic")
		err, ok := rec.(error)
		require.True(t, ok, "panic value should be an error, got %T", rec)
		require.ErrorIs(t, err, ErrInvalidSize)
	}()
	New(0)
}

func TestNew_StartsExactlySizeWorkers(t *testing.T) {
	t.Parallel()

	for _, size := range []int{1, 2, 4, 16} {
		pool := New(size)
		require.Equal(t, size, pool.Size())
		require.Equal(t, size, pool.LiveWorkers())
		require.Equal(t, StateRunning, pool.State())
		pool.Shutdown()
		require.Equal(t, 0, pool.LiveWorkers())
		require.Equal(t, StateStopped, pool.State())
	}
}

func TestPool_RunsEveryJobExactlyOnce(t *testing.T) {
	t.Parallel()

	const jobs = 1000
	for _, size := range []int{1, 3, 8} {
		pool := New(size, WithQueueDepth(16))
		var counter atomic.Int64
		for i := 0; i < jobs; i++ {
			require.NoError(t, pool.Execute(func() {
				counter.Add(1)
			}))
		}

		shutdownWithin(t, pool, 5*time.Second)
		require.Equal(t, int64(jobs), counter.Load(), "size %d", size)
	}
}

func TestPool_PreservesSingleSubmitterOrder(t *testing.T) {
	t.Parallel()

	// One worker makes execution order observable; with more workers only the
	// dequeue order is guaranteed.
	pool := New(1)
	var (
		mu  sync.Mutex
		log []int
	)
	for i := 0; i < 50; i++ {
		idx := i
		require.NoError(t, pool.Execute(func() {
			mu.Lock()
			log = append(log, idx)
			mu.Unlock()
		}))
	}
	shutdownWithin(t, pool, 2*time.Second)

	require.Len(t, log, 50)
	for i, got := range log {
		require.Equal(t, i, got)
	}
}

func TestPool_QueuedEventsCarrySubmittedIDs(t *testing.T) {
	t.Parallel()

	recorder := &eventRecorder{}
	pool := New(4, WithEmitter(recorder), WithQueueDepth(100))
	var ids []progress.Event
	for i := 0; i < 20; i++ {
		id, err := pool.Submit(context.Background(), func() {})
		require.NoError(t, err)
		ids = append(ids, progress.Event{JobID: progress.UUIDToBytes(id)})
	}
	shutdownWithin(t, pool, 2*time.Second)

	queued := recorder.byStage(progress.StageJobQueued)
	require.Len(t, queued, 20)
	for i := range ids {
		require.Equal(t, ids[i].JobID, queued[i].JobID)
	}
	require.Len(t, recorder.byStage(progress.StageJobDone), 20)
}

func TestPool_ShutdownDrainsQueuedJobs(t *testing.T) {
	t.Parallel()

	// End-to-end: 2 workers, 5 slow jobs, shutdown must wait for all of them.
	pool := New(2)
	var (
		mu  sync.Mutex
		log []int
	)
	for id := 1; id <= 5; id++ {
		jobID := id
		require.NoError(t, pool.Execute(func() {
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			log = append(log, jobID)
			mu.Unlock()
		}))
	}
	shutdownWithin(t, pool, 2*time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.ElementsMatch(t, []int{1, 2, 3, 4, 5}, log)
}

func TestPool_ExecuteAfterShutdownFails(t *testing.T) {
	t.Parallel()

	pool := New(2)
	pool.Shutdown()

	err := pool.Execute(func() { t.Error("job must not run after shutdown") })
	require.ErrorIs(t, err, ErrPoolClosed)
	require.ErrorIs(t, err, ErrQueueClosed)
}

func TestPool_ExecuteRejectsNilJob(t *testing.T) {
	t.Parallel()

	pool := New(1)
	defer pool.Shutdown()
	require.ErrorIs(t, pool.Execute(nil), ErrNilJob)
}

func TestPool_ShutdownIsIdempotent(t *testing.T) {
	t.Parallel()

	pool := New(3)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Shutdown()
		}()
	}
	wg.Wait()
	pool.Shutdown()
	require.NoError(t, pool.ShutdownContext(context.Background()))
	require.Equal(t, StateStopped, pool.State())
	require.Equal(t, 0, pool.LiveWorkers())
}

func TestPool_ShutdownContextStopsWaitingButKeepsDraining(t *testing.T) {
	t.Parallel()

	pool := New(1)
	release := make(chan struct{})
	var ran atomic.Int32
	require.NoError(t, pool.Execute(func() {
		<-release
		ran.Add(1)
	}))
	require.NoError(t, pool.Execute(func() { ran.Add(1) }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.ShutdownContext(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, StateShuttingDown, pool.State())
	require.ErrorIs(t, pool.Execute(func() {}), ErrPoolClosed)

	close(release)
	shutdownWithin(t, pool, time.Second)
	require.Equal(t, int32(2), ran.Load())
}

func TestPool_ShutdownContextHonorsDeadlineWithBlockedSender(t *testing.T) {
	t.Parallel()

	pool := New(1, WithQueueDepth(0))
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.Execute(func() {
		close(started)
		<-release
	}))
	<-started

	// With the only worker busy and no buffer, this sender parks in Send.
	sendErr := make(chan error, 1)
	go func() {
		sendErr <- pool.Execute(func() {})
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	returned := make(chan error, 1)
	go func() {
		returned <- pool.ShutdownContext(ctx)
	}()

	select {
	case err := <-returned:
		require.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		close(release)
		t.Fatalf("ShutdownContext ignored its deadline; state=%s", pool.State())
	}
	require.Equal(t, StateShuttingDown, pool.State())
	require.ErrorIs(t, pool.Execute(func() {}), ErrPoolClosed)

	close(release)
	shutdownWithin(t, pool, time.Second)
	err := <-sendErr
	if err != nil {
		require.ErrorIs(t, err, ErrPoolClosed)
	}
}

func TestPool_PanickingJobDoesNotKillWorker(t *testing.T) {
	t.Parallel()

	recorder := &eventRecorder{}
	pool := New(1, WithEmitter(recorder), WithLogger(zap.NewNop()))
	require.NoError(t, pool.Execute(func() { panic("boom") }))

	var after atomic.Bool
	require.NoError(t, pool.Execute(func() { after.Store(true) }))
	shutdownWithin(t, pool, time.Second)

	require.True(t, after.Load(), "worker should keep running after a panic")
	panics := recorder.byStage(progress.StageJobPanic)
	require.Len(t, panics, 1)
	require.Equal(t, "boom", panics[0].Note)
	require.Equal(t, 1, panics[0].WorkerID)
}

func TestPool_ShutdownToleratesExitedWorker(t *testing.T) {
	t.Parallel()

	pool := New(2)
	// Goexit ends the worker goroutine outright; the pool must still stop.
	require.NoError(t, pool.Execute(func() { runtime.Goexit() }))
	require.Eventually(t, func() bool {
		return pool.LiveWorkers() == 1
	}, time.Second, 5*time.Millisecond)

	var ran atomic.Bool
	require.NoError(t, pool.Execute(func() { ran.Store(true) }))
	shutdownWithin(t, pool, time.Second)
	require.True(t, ran.Load())
}

func TestPool_BoundedQueueAppliesBackpressure(t *testing.T) {
	t.Parallel()

	pool := New(1, WithQueueDepth(1))
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.Execute(func() {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, pool.Execute(func() {}))
	require.Equal(t, 1, pool.QueueLen())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.ExecuteContext(ctx, func() {})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, errors.Is(err, ErrPoolClosed))

	close(release)
	shutdownWithin(t, pool, time.Second)
}

func TestPool_EmitsLifecycleEvents(t *testing.T) {
	t.Parallel()

	recorder := &eventRecorder{}
	pool := New(2, WithEmitter(recorder))
	id, err := pool.Submit(context.Background(), func() {})
	require.NoError(t, err)
	shutdownWithin(t, pool, time.Second)

	events := recorder.forJob(progress.UUIDToBytes(id))
	require.Len(t, events, 3)
	require.Equal(t, progress.StageJobQueued, events[0].Stage)
	require.Equal(t, progress.StageJobStart, events[1].Stage)
	require.Equal(t, progress.StageJobDone, events[2].Stage)
	for _, evt := range events {
		require.NoError(t, evt.Validate())
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "constructing", StateConstructing.String())
	require.Equal(t, "running", StateRunning.String())
	require.Equal(t, "shutting_down", StateShuttingDown.String())
	require.Equal(t, "stopped", StateStopped.String())
	require.Equal(t, "unknown", State(42).String())
}

func shutdownWithin(t *testing.T, pool *Pool, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, pool.ShutdownContext(ctx), "shutdown did not complete in %v", d)
	require.Equal(t, StateStopped, pool.State())
}

type eventRecorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *eventRecorder) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) byStage(stage progress.Stage) []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []progress.Event
	for _, evt := range r.events {
		if evt.Stage == stage {
			out = append(out, evt)
		}
	}
	return out
}

func (r *eventRecorder) forJob(id [16]byte) []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []progress.Event
	for _, evt := range r.events {
		if evt.JobID == id {
			out = append(out, evt)
		}
	}
	return out
}
