package threadpool

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// worker owns one goroutine that pulls jobs off the shared queue until the
// queue is closed and drained. done plays the role of the thread handle.
type worker struct {
	id   int
	done chan struct{}
}

// startWorker spawns the worker goroutine. live is incremented before the
// goroutine starts so the pool reports its full size as soon as New returns.
func startWorker(
	id int,
	queue *jobQueue,
	run func(workerID int, item queuedJob),
	live *atomic.Int64,
	logger *zap.Logger,
) *worker {
	w := &worker{id: id, done: make(chan struct{})}
	live.Add(1)
	go func() {
		defer close(w.done)
		defer live.Add(-1)
		for {
			item, ok := queue.Receive()
			if !ok {
				logger.Debug("worker disconnected; shutting down", zap.Int("worker_id", id))
				return
			}
			run(id, item)
		}
	}()
	return w
}

// join blocks until the worker goroutine has exited. A worker that already
// exited abnormally returns immediately.
func (w *worker) join() {
	<-w.done
}
