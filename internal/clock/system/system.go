// Package system provides the wall clock used by the pool and listener.
package system

import "time"

// Clock reads the real time and sleeps for real.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Sleep pauses the calling goroutine for d.
func (Clock) Sleep(d time.Duration) {
	time.Sleep(d)
}
