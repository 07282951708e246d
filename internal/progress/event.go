package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the job lifecycle milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobQueued   Stage = "JOB_QUEUED"
	StageJobRejected Stage = "JOB_REJECTED"
	StageJobStart    Stage = "JOB_START"
	StageJobDone     Stage = "JOB_DONE"
	StageJobPanic    Stage = "JOB_PANIC"
)

// Event captures a single step in a job's life inside the thread pool.
type Event struct {
	// JobID uniquely identifies a submitted job using the 16-byte UUID form.
	JobID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// WorkerID is the id of the worker running the job; zero before dispatch.
	WorkerID int
	// Dur is the queue wait for JOB_START and the run time for JOB_DONE/JOB_PANIC.
	Dur time.Duration
	// Note carries low-volume context such as a panic value or rejection reason.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == [16]byte{} {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobQueued, StageJobRejected:
	case StageJobStart, StageJobDone, StageJobPanic:
		if e.WorkerID <= 0 {
			return fmt.Errorf("%s requires worker id", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Terminal reports whether the stage ends a job's lifecycle.
func (e Event) Terminal() bool {
	switch e.Stage {
	case StageJobRejected, StageJobDone, StageJobPanic:
		return true
	default:
		return false
	}
}

// JobUUID converts the binary job ID to uuid.UUID for repositories.
func (e Event) JobUUID() uuid.UUID {
	return uuid.UUID(e.JobID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
