// Copyright 2025 James Ross
package kvstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// upperCodec is a trivial Codec double: it swaps between the original and
// a byte-doubled encoding so compress/decompress can be distinguished from
// a no-op passthrough in assertions.
type upperCodec struct{}

func (upperCodec) Compress(data []byte) ([]byte, error) {
	return append(append([]byte{}, data...), data...), nil
}

func (upperCodec) Decompress(data []byte) ([]byte, error) {
	return data[:len(data)/2], nil
}

func TestCompressingStoreRoundTrips(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	s := NewCompressingStore(inner, upperCodec{})

	payload := []byte("hello")
	require.NoError(t, s.Put(ctx, "k", payload))

	raw, ok, err := inner.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok, "expected inner store to hold compressed bytes")
	require.NotEqual(t, payload, raw, "expected inner store to see compressed (doubled), not raw, bytes")

	got, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, payload, got, "expected round trip to original payload")
}
