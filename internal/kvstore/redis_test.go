// Copyright 2025 James Ross
package kvstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "test:")
}

func TestRedisStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)

	require.NoError(t, s.Put(ctx, "k", []byte("v")))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", string(v))

	require.NoError(t, s.Put(ctx, "k", []byte("v2")))
	n, err := s.RefCount(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NoError(t, s.Delete(ctx, "k"))
	_, ok, _ = s.Get(ctx, "k")
	require.True(t, ok, "expected value to remain with one reference left")

	require.NoError(t, s.Delete(ctx, "k"))
	_, ok, _ = s.Get(ctx, "k")
	require.False(t, ok, "expected value removed once refcount reaches zero")
}
