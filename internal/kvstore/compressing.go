// Copyright 2025 James Ross
package kvstore

import "context"

// Codec compresses and decompresses values. Any blobstore.Compressor
// satisfies this interface structurally.
type Codec interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// CompressingStore wraps an inner Store, compressing on Put and
// decompressing on Get, matching the original KeyValueStore base class
// (which applies self.compressor around any concrete _put/_get backend).
type CompressingStore struct {
	inner Store
	codec Codec
}

func NewCompressingStore(inner Store, codec Codec) *CompressingStore {
	return &CompressingStore{inner: inner, codec: codec}
}

func (s *CompressingStore) Put(ctx context.Context, key string, value []byte) error {
	c, err := s.codec.Compress(value)
	if err != nil {
		return err
	}
	return s.inner.Put(ctx, key, c)
}

func (s *CompressingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	d, err := s.codec.Decompress(v)
	if err != nil {
		return nil, false, err
	}
	return d, true, nil
}

func (s *CompressingStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *CompressingStore) PutBatch(ctx context.Context, items map[string][]byte) error {
	for k, v := range items {
		if err := s.Put(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *CompressingStore) GetBatch(ctx context.Context, keys []string) (map[string][]byte, error) {
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

func (s *CompressingStore) DeleteBatch(ctx context.Context, keys []string) error {
	return s.inner.DeleteBatch(ctx, keys)
}

func (s *CompressingStore) RefCount(ctx context.Context, key string) (int, error) {
	return s.inner.RefCount(ctx, key)
}

func (s *CompressingStore) Close() error { return s.inner.Close() }
