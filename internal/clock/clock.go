// Package clock provides the time source used by the habit engine and repository.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current time. Calendar-based cadences are evaluated in
// the location of the returned time.
type Clock interface {
	Now() time.Time
}

// System is the wall clock, optionally pinned to a location.
type System struct {
	Location *time.Location
}

func (s System) Now() time.Time {
	now := time.Now()
	if s.Location != nil {
		now = now.In(s.Location)
	}
	return now
}

// Manual is a settable clock for tests and replays.
//
// Thread-safety: all methods are safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a clock frozen at t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Advance moves the clock forward by d and returns the new time.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}
