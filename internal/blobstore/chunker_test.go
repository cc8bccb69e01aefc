// Copyright 2025 James Ross
package blobstore

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestFixedSizeChunkerSplitsWithShortLastChunk(t *testing.T) {
	c := NewFixedSizeChunker(4)
	blob := []byte("0123456789")
	chunks := c.ChunkBlob(blob)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[2].Data) != 2 {
		t.Fatalf("expected final chunk to be short, got %d bytes", len(chunks[2].Data))
	}
	var joined []byte
	for _, c := range chunks {
		joined = append(joined, c.Data...)
		if c.Key != hashChunk(c.Data) {
			t.Fatalf("chunk key does not match hashChunk for %q", c.Data)
		}
	}
	if !bytes.Equal(joined, blob) {
		t.Fatal("expected concatenated chunks to equal input")
	}
}

func TestFixedSizeChunkerEmptyInput(t *testing.T) {
	c := NewFixedSizeChunker(4)
	if chunks := c.ChunkBlob(nil); len(chunks) != 0 {
		t.Fatalf("expected no chunks for empty input, got %d", len(chunks))
	}
}

func TestFastCDCChunkerBoundsAndReassembly(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	c := NewFastCDCChunker(64, 256, 1024, 0x1FFF, rng)

	blob := make([]byte, 100000)
	rand.New(rand.NewSource(7)).Read(blob)

	chunks := c.ChunkBlob(blob)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks from 100KB input, got %d", len(chunks))
	}

	var joined []byte
	for i, ch := range chunks {
		joined = append(joined, ch.Data...)
		if ch.Key != hashChunk(ch.Data) {
			t.Fatalf("chunk %d key mismatch", i)
		}
		if i < len(chunks)-1 {
			if len(ch.Data) < c.Min || len(ch.Data) > c.Max {
				t.Fatalf("chunk %d size %d outside [%d, %d]", i, len(ch.Data), c.Min, c.Max)
			}
		}
	}
	if !bytes.Equal(joined, blob) {
		t.Fatal("expected concatenated chunks to equal input")
	}
}

func TestFastCDCChunkerEmptyInput(t *testing.T) {
	c := NewFastCDCChunker(64, 256, 1024, 0x1FFF, nil)
	if chunks := c.ChunkBlob(nil); len(chunks) != 0 {
		t.Fatalf("expected no chunks for empty input, got %d", len(chunks))
	}
}

func TestFastCDCChunkerDeterministicForSameTable(t *testing.T) {
	rng1 := rand.New(rand.NewSource(1))
	rng2 := rand.New(rand.NewSource(1))
	c1 := NewFastCDCChunker(16, 64, 256, 0xFF, rng1)
	c2 := NewFastCDCChunker(16, 64, 256, 0xFF, rng2)

	blob := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog"), 100)
	out1 := c1.ChunkBlob(blob)
	out2 := c2.ChunkBlob(blob)
	if len(out1) != len(out2) {
		t.Fatalf("expected identical chunk boundaries for identically-seeded gear tables, got %d vs %d", len(out1), len(out2))
	}
	for i := range out1 {
		if out1[i].Key != out2[i].Key {
			t.Fatalf("chunk %d key differs between identically-seeded chunkers", i)
		}
	}
}
