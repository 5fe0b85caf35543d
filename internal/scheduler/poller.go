// Package scheduler drives periodic reset evaluation.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/logger"
)

var ErrAlreadyRunning = errors.New("poller already running")

// Poller calls a function on a fixed interval, and immediately whenever
// Resume is called. Calls never overlap.
type Poller struct {
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	resumed chan struct{}
}

// NewPoller builds a stopped poller. Intervals below MinPollInterval are raised to it.
func NewPoller(interval time.Duration, fn func()) *Poller {
	if interval < constants.MinPollInterval {
		interval = constants.MinPollInterval
	}
	return &Poller{
		interval: interval,
		fn:       fn,
		resumed:  make(chan struct{}, 1),
	}
}

// Interval is the effective tick period.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Start launches the polling goroutine. It stops when ctx is cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		if !closed(p.done) {
			return ErrAlreadyRunning
		}
		// The previous run ended with its parent context.
		p.cancel()
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.run(ctx, p.done)
	logger.Debug("Reset polling started", "interval", p.interval)
	return nil
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.fn()
		case <-p.resumed:
			p.fn()
			ticker.Reset(p.interval)
		}
	}
}

// Resume requests an immediate evaluation, e.g. when the app regains focus.
// Requests made while one is already queued are coalesced.
func (p *Poller) Resume() {
	select {
	case p.resumed <- struct{}{}:
	default:
	}
}

// Stop cancels polling and waits for an in-flight call to return. It is safe to call repeatedly.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logger.Debug("Reset polling stopped")
}

// Running reports whether the polling goroutine is active. It turns false
// as soon as the goroutine exits, whether through Stop or its context.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done != nil && !closed(p.done)
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
