package threadpool

import (
	"time"

	"github.com/google/uuid"
)

// Job is a one-shot unit of work. A Job is run exactly once by exactly one
// worker; anything it captures must be safe to touch from another goroutine.
type Job func()

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (uuid.UUID, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
