// Package uuid provides job ID generation for the thread pool.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUIDv7 job IDs so ids sort by submission.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a fresh UUIDv7.
func (Generator) NewID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate uuid7: %w", err)
	}
	return id, nil
}

// NewString returns a UUIDv7 string, used for request ids.
func (g Generator) NewString() (string, error) {
	id, err := g.NewID()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
