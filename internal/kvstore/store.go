// Copyright 2025 James Ross

// Package kvstore provides reference-counted key-value backends for the
// blob store's chunk storage layer: an in-memory map, an LRU-bounded cache,
// a Redis-backed remote store, a SQLite-backed store, and a hybrid
// composition of a local cache in front of a remote store.
package kvstore

import "context"

// Store is a reference-counted byte-value store. Put on an existing key
// increments its reference count without overwriting the stored value;
// Delete decrements the count and only removes the entry once it reaches
// zero.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error

	PutBatch(ctx context.Context, items map[string][]byte) error
	GetBatch(ctx context.Context, keys []string) (map[string][]byte, error)
	DeleteBatch(ctx context.Context, keys []string) error

	// RefCount reports the current reference count for key (0 if absent).
	RefCount(ctx context.Context, key string) (int, error)

	Close() error
}
