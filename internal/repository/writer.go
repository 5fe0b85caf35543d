package repository

import (
	"context"
	"sync"
	"time"

	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/logger"
	"github.com/julianstephens/habitual/internal/storage"
)

// writer persists collection snapshots on its own goroutine. Only the most
// recent pending snapshot is kept: a snapshot superseded before it was
// written is skipped.
type writer struct {
	provider storage.Provider
	key      string
	attempts int
	delay    time.Duration

	mu      sync.Mutex
	cond    *sync.Cond
	pending []byte
	queued  bool
	busy    bool
	closed  bool
	lastErr error
	done    chan struct{}

	// stored is the blob last read from or written to the store.
	stored []byte
}

func newWriter(provider storage.Provider, key string, attempts int, delay time.Duration) *writer {
	w := &writer{
		provider: provider,
		key:      key,
		attempts: attempts,
		delay:    delay,
		done:     make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	go w.run()
	return w
}

func (w *writer) submit(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	w.pending = data
	w.queued = true
	w.cond.Broadcast()
	return nil
}

func (w *writer) run() {
	defer close(w.done)

	for {
		w.mu.Lock()
		for !w.queued && !w.closed {
			w.cond.Wait()
		}
		if !w.queued {
			w.mu.Unlock()
			return
		}
		data := w.pending
		w.pending, w.queued = nil, false
		w.busy = true
		w.mu.Unlock()

		err := w.write(data)

		w.mu.Lock()
		w.busy = false
		w.lastErr = err
		if err == nil {
			w.stored = data
		}
		w.cond.Broadcast()
		w.mu.Unlock()
	}
}

func (w *writer) write(data []byte) error {
	delay := w.delay
	var err error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), constants.WriteTimeout)
		err = w.provider.Set(ctx, w.key, data)
		cancel()
		if err == nil {
			logger.Debug("Habits persisted", "bytes", len(data), "attempt", attempt)
			return nil
		}

		logger.Warn("Failed to persist habits", "attempt", attempt, "of", w.attempts, "error", err)
		if attempt < w.attempts {
			time.Sleep(delay)
			delay *= 2
		}
	}
	logger.Error("Giving up on persisting habits, in-memory state kept", "error", err)
	return err
}

// observe records raw as the store's current content.
func (w *writer) observe(raw []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stored = raw
}

// idle returns the blob the store is known to hold. ok is false while a
// write is queued or in flight, when the store may lag memory.
func (w *writer) idle() (stored []byte, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.queued || w.busy {
		return nil, false
	}
	return w.stored, true
}

// flush blocks until every submitted snapshot has been handled and returns
// the result of the last write.
func (w *writer) flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for w.queued || w.busy {
		w.cond.Wait()
	}
	return w.lastErr
}

// close drains the queue and stops the goroutine.
func (w *writer) close() error {
	w.mu.Lock()
	w.closed = true
	w.cond.Broadcast()
	w.mu.Unlock()

	<-w.done

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}
