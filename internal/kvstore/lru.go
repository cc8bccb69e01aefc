// Copyright 2025 James Ross
package kvstore

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUStore bounds a MemoryStore with an LRU cache of keys. When the cache
// evicts its least recently used key, the eviction callback drives the same
// reference-count-decrementing delete path as an explicit Delete, matching
// LRUCacheKeyValueStore's eviction-triggers-_delete behavior.
type LRUStore struct {
	mu      sync.Mutex
	backing *MemoryStore
	cache   *lru.Cache[string, struct{}]
}

// NewLRUStore creates an LRU-bounded store holding at most size keys.
func NewLRUStore(size int) (*LRUStore, error) {
	s := &LRUStore{backing: NewMemoryStore()}
	cache, err := lru.NewWithEvict[string, struct{}](size, func(key string, _ struct{}) {
		// Evicted without an explicit unlock-free path: the caller already
		// holds s.mu when Add triggers this callback synchronously.
		s.backing.deleteLocked(key)
	})
	if err != nil {
		return nil, err
	}
	s.cache = cache
	return s, nil
}

func (s *LRUStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backing.mu.Lock()
	s.backing.putLocked(key, value)
	s.backing.mu.Unlock()
	s.cache.Add(key, struct{}{})
	return nil
}

func (s *LRUStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backing.mu.RLock()
	v, ok := s.backing.data[key]
	s.backing.mu.RUnlock()
	if ok {
		s.cache.Get(key) // refresh recency
	}
	return v, ok, nil
}

func (s *LRUStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backing.mu.RLock()
	n := s.backing.refs[key]
	s.backing.mu.RUnlock()
	// For the last reference, Remove fires the eviction callback (golang-lru
	// calls onEvicted on an explicit Remove too, not just capacity eviction),
	// which drives backing.deleteLocked once; don't decrement a second time.
	if n <= 1 && s.cache.Remove(key) {
		return nil
	}
	// Other references remain, or the key already left the cache: decrement
	// directly and keep any cache entry in place.
	s.backing.mu.Lock()
	s.backing.deleteLocked(key)
	s.backing.mu.Unlock()
	return nil
}

func (s *LRUStore) PutBatch(ctx context.Context, items map[string][]byte) error {
	for k, v := range items {
		if err := s.Put(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *LRUStore) GetBatch(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok, _ := s.Get(ctx, k); ok {
			out[k] = v
		}
	}
	return out, nil
}

func (s *LRUStore) DeleteBatch(ctx context.Context, keys []string) error {
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (s *LRUStore) RefCount(ctx context.Context, key string) (int, error) {
	return s.backing.RefCount(ctx, key)
}

func (s *LRUStore) Close() error { return nil }
