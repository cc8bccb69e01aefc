// Copyright 2025 James Ross
package kvstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHybridStorePopulatesLocalFromRemoteOnMiss(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryStore()
	local := NewMemoryStore()
	h, err := NewHybridStore(remote, local)
	require.NoError(t, err)

	require.NoError(t, h.Put(ctx, "k", []byte("v")))
	// remove straight from local to simulate a cold cache, leaving remote intact
	local.Delete(ctx, "k")

	v, ok, err := h.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", string(v))

	_, ok, _ = local.Get(ctx, "k")
	require.True(t, ok, "expected local to be populated after a remote hit")
}

func TestHybridStoreWritesThroughBoth(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryStore()
	local := NewMemoryStore()
	h, err := NewHybridStore(remote, local)
	require.NoError(t, err)

	require.NoError(t, h.Put(ctx, "k", []byte("v")))
	_, ok, _ := local.Get(ctx, "k")
	require.True(t, ok, "expected write-through to local")
	_, ok, _ = remote.Get(ctx, "k")
	require.True(t, ok, "expected write-through to remote")

	require.NoError(t, h.Delete(ctx, "k"))
	_, ok, _ = local.Get(ctx, "k")
	require.False(t, ok, "expected delete to remove from local")
	_, ok, _ = remote.Get(ctx, "k")
	require.False(t, ok, "expected delete to remove from remote")
}

func TestNewHybridStoreDefaultsLocalToLRU(t *testing.T) {
	remote := NewMemoryStore()
	h, err := NewHybridStore(remote, nil)
	require.NoError(t, err)
	_, ok := h.local.(*LRUStore)
	require.True(t, ok, "expected default local store to be an LRUStore, got %T", h.local)
}
