package threadpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// queuedJob is what travels through the queue: the Job plus the metadata
// needed to report on it once a worker picks it up.
type queuedJob struct {
	id       uuid.UUID
	job      Job
	queuedAt time.Time
}

// jobQueue is a bounded multi-producer, multi-consumer FIFO. The channel is the
// only synchronization workers need to receive; mu only orders senders against
// Close so a send can never hit a closed channel.
type jobQueue struct {
	ch     chan queuedJob
	mu     sync.RWMutex
	closed bool
}

func newJobQueue(capacity int) *jobQueue {
	return &jobQueue{
		ch: make(chan queuedJob, capacity),
	}
}

// Send enqueues item, blocking while the queue is full until a worker frees a
// slot or ctx ends. It returns ErrQueueClosed once Close has run.
func (q *jobQueue) Send(ctx context.Context, item queuedJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("send canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Receive blocks until a job is available. ok is false once the queue has
// been closed and fully drained.
func (q *jobQueue) Receive() (item queuedJob, ok bool) {
	item, ok = <-q.ch
	return item, ok
}

// Close releases the sending end. Jobs already queued remain receivable and
// every blocked Receive wakes once they are gone. Safe to call repeatedly.
func (q *jobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}

// Len reports how many jobs are waiting for a worker.
func (q *jobQueue) Len() int {
	return len(q.ch)
}

// Cap reports the queue capacity; zero means every send hands off directly.
func (q *jobQueue) Cap() int {
	return cap(q.ch)
}
