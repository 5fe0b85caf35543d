package storage

import (
	"bytes"
	"context"
	"sync"
)

// MemoryStore is a process-local Store. Nothing survives Close.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string][]byte
	writes  int
	failure error
	readErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

func (s *MemoryStore) Init() error  { return nil }
func (s *MemoryStore) Load() error  { return nil }
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) GetConfigPath() string {
	return ":memory:"
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readErr != nil {
		return nil, s.readErr
	}
	value, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	return bytes.Clone(value), nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes++
	if s.failure != nil {
		return s.failure
	}
	s.entries[key] = bytes.Clone(value)
	return nil
}

// Writes returns how many times Set has been called, failed attempts included.
func (s *MemoryStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// SetFailure swaps the error returned by Set. Pass nil to heal the store.
func (s *MemoryStore) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

// SetReadFailure swaps the error returned by Get. Pass nil to heal the store.
func (s *MemoryStore) SetReadFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}
