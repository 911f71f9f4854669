// Package storage defines the key-value collaborator that replicas and the
// aggregator persist their state through.
package storage

import (
	"context"
	"errors"
)

// ErrStoreClosed is returned by stores after Close.
var ErrStoreClosed = errors.New("store is closed")

// KeyValueStore persists opaque blobs by key.
type KeyValueStore interface {
	// Get returns the value stored at key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value at key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
}

// Deleter is implemented by stores that can remove keys.
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// Lister is implemented by stores that can enumerate keys by prefix.
type Lister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Batcher is implemented by stores that can write several keys atomically.
type Batcher interface {
	SetBatch(ctx context.Context, values map[string][]byte) error
}

// Store is the full surface of the bundled backends.
type Store interface {
	KeyValueStore
	Deleter
	Lister
	Batcher
	Close() error
}
