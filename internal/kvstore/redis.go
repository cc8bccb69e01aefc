// Copyright 2025 James Ross
package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/flyingrobots/doop/internal/breaker"
)

// ErrRedisUnavailable is returned when the circuit breaker in front of a
// RedisStore is open and refusing calls.
var ErrRedisUnavailable = errors.New("redis store: circuit breaker open")

// RedisStore is a remote Store backed by Redis, grounded in the teacher's
// RedisChunkStore/RedisReferenceCounter: values live under keyPrefix+key,
// reference counts live in a companion hash so they survive process
// restarts (unlike the original Python RedisKeyValueStore, which kept
// counts only in a local dict).
//
// An optional circuit breaker, grounded in the teacher's internal/worker
// (worker.go's cb.Allow()/cb.Record(ok) pair around its Redis calls),
// trips after a run of Redis failures and rejects further calls until its
// cooldown elapses, rather than letting every StoreBlob/RetrieveBlob hang
// on a dead server one request at a time.
type RedisStore struct {
	client    redis.Cmdable
	keyPrefix string
	refsKey   string
	cb        *breaker.CircuitBreaker
}

func NewRedisStore(client redis.Cmdable, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "doop:blob:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, refsKey: keyPrefix + "refcounts"}
}

// NewRedisStoreWithBreaker is NewRedisStore with a circuit breaker guarding
// every call, per internal/config.CircuitBreaker.
func NewRedisStoreWithBreaker(client redis.Cmdable, keyPrefix string, cb *breaker.CircuitBreaker) *RedisStore {
	s := NewRedisStore(client, keyPrefix)
	s.cb = cb
	return s
}

func (s *RedisStore) dataKey(key string) string { return s.keyPrefix + "data:" + key }

// guard runs fn if the breaker allows it, recording the outcome. With no
// breaker configured it always runs fn directly.
func (s *RedisStore) guard(fn func() error) error {
	if s.cb == nil {
		return fn()
	}
	if !s.cb.Allow() {
		return ErrRedisUnavailable
	}
	err := fn()
	s.cb.Record(err == nil || err == redis.Nil)
	return err
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	return s.guard(func() error {
		exists, err := s.client.Exists(ctx, s.dataKey(key)).Result()
		if err != nil {
			return err
		}
		pipe := s.client.TxPipeline()
		if exists == 0 {
			pipe.Set(ctx, s.dataKey(key), value, 0)
		}
		pipe.HIncrBy(ctx, s.refsKey, key, 1)
		_, err = pipe.Exec(ctx)
		return err
	})
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	var found bool
	err := s.guard(func() error {
		data, err := s.client.Get(ctx, s.dataKey(key)).Bytes()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		v, found = data, true
		return nil
	})
	return v, found, err
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.guard(func() error {
		n, err := s.client.HIncrBy(ctx, s.refsKey, key, -1).Result()
		if err != nil {
			return err
		}
		if n <= 0 {
			pipe := s.client.TxPipeline()
			pipe.Del(ctx, s.dataKey(key))
			pipe.HDel(ctx, s.refsKey, key)
			_, err = pipe.Exec(ctx)
		}
		return err
	})
}

func (s *RedisStore) PutBatch(ctx context.Context, items map[string][]byte) error {
	for k, v := range items {
		if err := s.Put(ctx, k, v); err != nil {
			return fmt.Errorf("put %s: %w", k, err)
		}
	}
	return nil
}

func (s *RedisStore) GetBatch(ctx context.Context, keys []string) (map[string][]byte, error) {
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

func (s *RedisStore) DeleteBatch(ctx context.Context, keys []string) error {
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisStore) RefCount(ctx context.Context, key string) (int, error) {
	var n int
	err := s.guard(func() error {
		v, err := s.client.HGet(ctx, s.refsKey, key).Int()
		if err == redis.Nil {
			n = 0
			return nil
		}
		if err != nil {
			return err
		}
		n = v
		return nil
	})
	return n, err
}

func (s *RedisStore) Close() error { return nil }
