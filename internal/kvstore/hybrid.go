// Copyright 2025 James Ross
package kvstore

import "context"

// HybridStore composes a local cache in front of a remote store, matching
// HybridKeyValueStore: writes go to both, reads check local first and
// populate it from the remote on a miss, deletes remove from both. Unlike
// the original, which assigned the LRU *class* (not an instance) as the
// default local store, a missing local store here is always a concrete
// bounded LRUStore.
type HybridStore struct {
	local  Store
	remote Store
}

// NewHybridStore composes local and remote. If local is nil, a default
// 10000-entry LRUStore is created.
func NewHybridStore(remote Store, local Store) (*HybridStore, error) {
	if local == nil {
		l, err := NewLRUStore(10000)
		if err != nil {
			return nil, err
		}
		local = l
	}
	return &HybridStore{local: local, remote: remote}, nil
}

func (s *HybridStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.local.Put(ctx, key, value); err != nil {
		return err
	}
	return s.remote.Put(ctx, key, value)
}

func (s *HybridStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok, err := s.local.Get(ctx, key); err != nil {
		return nil, false, err
	} else if ok {
		return v, true, nil
	}
	v, ok, err := s.remote.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if ok {
		_ = s.local.Put(ctx, key, v)
	}
	return v, ok, nil
}

func (s *HybridStore) Delete(ctx context.Context, key string) error {
	if err := s.local.Delete(ctx, key); err != nil {
		return err
	}
	return s.remote.Delete(ctx, key)
}

func (s *HybridStore) PutBatch(ctx context.Context, items map[string][]byte) error {
	for k, v := range items {
		if err := s.Put(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *HybridStore) GetBatch(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok, err := s.Get(ctx, k); err != nil {
			return nil, err
		} else if ok {
			out[k] = v
		}
	}
	return out, nil
}

func (s *HybridStore) DeleteBatch(ctx context.Context, keys []string) error {
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (s *HybridStore) RefCount(ctx context.Context, key string) (int, error) {
	return s.remote.RefCount(ctx, key)
}

func (s *HybridStore) Close() error {
	if err := s.local.Close(); err != nil {
		return err
	}
	return s.remote.Close()
}
