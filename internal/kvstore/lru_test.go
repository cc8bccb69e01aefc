// Copyright 2025 James Ross
package kvstore

import (
	"context"
	"testing"
)

func TestLRUStoreDeleteDecrementsRefcountOnce(t *testing.T) {
	ctx := context.Background()
	s, err := NewLRUStore(4)
	if err != nil {
		t.Fatal(err)
	}

	s.Put(ctx, "k", []byte("v"))
	s.Put(ctx, "k", []byte("v")) // second blob referencing the same chunk

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(ctx, "k"); !ok {
		t.Fatal("expected k to survive a single Delete while a second reference remains")
	}
	if n, _ := s.RefCount(ctx, "k"); n != 1 {
		t.Fatalf("expected refcount 1 after one Delete of a doubly-referenced key, got %d", n)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("expected k removed once refcount reaches zero")
	}
}

func TestLRUStoreCapacityEvictionDecrementsRefcount(t *testing.T) {
	ctx := context.Background()
	s, err := NewLRUStore(1)
	if err != nil {
		t.Fatal(err)
	}

	s.Put(ctx, "a", []byte("1"))
	s.Put(ctx, "b", []byte("2")) // evicts "a" via capacity, not explicit Delete

	if _, ok, _ := s.Get(ctx, "a"); ok {
		t.Fatal("expected a evicted once capacity was exceeded")
	}
	if n, _ := s.RefCount(ctx, "a"); n != 0 {
		t.Fatalf("expected refcount 0 for evicted key, got %d", n)
	}
}
