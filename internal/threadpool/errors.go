package threadpool

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSize is matched by every PoolCreationError.
	ErrInvalidSize = errors.New("thread pool size must be > 0")
	// ErrQueueClosed is returned when sending on a queue whose sending end was released.
	ErrQueueClosed = errors.New("job queue closed")
	// ErrPoolClosed is returned by submissions once shutdown has begun.
	ErrPoolClosed = fmt.Errorf("thread pool is shut down: %w", ErrQueueClosed)
	// ErrNilJob rejects a nil Job at submission time.
	ErrNilJob = errors.New("job must not be nil")
)

// PoolCreationError reports a rejected pool size.
type PoolCreationError struct {
	Size int
}

func (e *PoolCreationError) Error() string {
	return fmt.Sprintf("create thread pool: size %d: %v", e.Size, ErrInvalidSize)
}

// Unwrap allows errors.Is(err, ErrInvalidSize).
func (e *PoolCreationError) Unwrap() error {
	return ErrInvalidSize
}
