package repository

import (
	"time"

	"github.com/julianstephens/habitual/internal/clock"
)

// Option configures a Repository.
type Option func(*Repository)

func WithClock(c clock.Clock) Option {
	return func(r *Repository) { r.clock = c }
}

func WithIDGenerator(g IDGenerator) Option {
	return func(r *Repository) { r.ids = g }
}

// WithStorageKey overrides the key the collection is persisted under.
func WithStorageKey(key string) Option {
	return func(r *Repository) { r.key = key }
}

// WithRetry sets how many times a failed write is attempted and the first backoff delay.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(r *Repository) {
		if attempts < 1 {
			attempts = 1
		}
		r.attempts = attempts
		r.delay = delay
	}
}

// WithCorruptHandler is called with the raw blob when Load cannot parse it,
// before the collection is discarded.
func WithCorruptHandler(fn func(raw []byte)) Option {
	return func(r *Repository) { r.onCorrupt = fn }
}
