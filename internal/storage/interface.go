package storage

import (
	"context"
	"errors"
)

var (
	ErrNotInitialized = errors.New("storage not initialized, run 'habitual init' first")
	ErrNotLoaded      = errors.New("storage not loaded")
)

// Provider is the key-value capability the habit repository persists through.
// Get returns (nil, nil) when the key has never been written.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Store is a Provider with a lifecycle, as opened by the CLI.
type Store interface {
	Provider

	// Lifecycle
	Init() error
	Load() error
	Close() error

	// Utils
	GetConfigPath() string
}
