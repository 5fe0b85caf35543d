package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

type file struct {
	Version int               `json:"version"`
	Entries map[string]string `json:"entries"`
}

// JSONStore keeps every key in a single JSON document on disk. Each Set
// rewrites the document through a temp file and rename so a crash never
// leaves a partially written file behind. A document replaced by another
// process is re-read before the next Get or Set.
type JSONStore struct {
	path string

	mu   sync.Mutex
	data *file
	seen os.FileInfo
}

func NewJSONStore(configPath string) *JSONStore {
	return &JSONStore{
		path: configPath,
	}
}

func (s *JSONStore) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Create config directory if it doesn't exist
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Check if file already exists
	if _, err := os.Stat(s.path); err == nil {
		return fmt.Errorf("storage already initialized at %s", s.path)
	}

	s.data = &file{
		Version: 1,
		Entries: make(map[string]string),
	}

	return s.save()
}

func (s *JSONStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *JSONStore) read() error {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotInitialized
		}
		return fmt.Errorf("failed to read storage: %w", err)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotInitialized
		}
		return fmt.Errorf("failed to read storage: %w", err)
	}

	var doc file
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse storage: %w", err)
	}

	// Ensure map is initialized
	if doc.Entries == nil {
		doc.Entries = make(map[string]string)
	}
	s.data = &doc
	s.seen = info

	return nil
}

// sync re-reads the document if the file on disk is no longer the one this
// store last read or wrote. Every save renames a new file into place, so
// another writer always shows up as a different file.
func (s *JSONStore) sync() error {
	if s.data == nil {
		return ErrNotLoaded
	}
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read storage: %w", err)
	}
	if s.seen != nil && os.SameFile(info, s.seen) && info.ModTime().Equal(s.seen.ModTime()) && info.Size() == s.seen.Size() {
		return nil
	}
	return s.read()
}

func (s *JSONStore) Close() error {
	return nil
}

func (s *JSONStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sync(); err != nil {
		return nil, err
	}

	value, ok := s.data.Entries[key]
	if !ok {
		return nil, nil
	}
	return []byte(value), nil
}

func (s *JSONStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sync(); err != nil {
		return err
	}

	s.data.Entries[key] = string(value)
	return s.save()
}

func (s *JSONStore) save() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize storage: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to write storage: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write storage: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write storage: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write storage: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write storage: %w", err)
	}

	if info, err := os.Stat(s.path); err == nil {
		s.seen = info
	}
	return nil
}

// GetConfigPath returns the path to the underlying storage file.
func (s *JSONStore) GetConfigPath() string {
	return s.path
}
