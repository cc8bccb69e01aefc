// Copyright 2025 James Ross
package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
)

func hashChunk(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FixedSizeChunker splits a blob into contiguous chunkSize-byte slices; the
// final chunk may be shorter.
type FixedSizeChunker struct {
	ChunkSize int
}

func NewFixedSizeChunker(chunkSize int) *FixedSizeChunker {
	return &FixedSizeChunker{ChunkSize: chunkSize}
}

func (c *FixedSizeChunker) ChunkBlob(blob []byte) []ChunkEntry {
	var out []ChunkEntry
	for i := 0; i < len(blob); i += c.ChunkSize {
		end := i + c.ChunkSize
		if end > len(blob) {
			end = len(blob)
		}
		chunk := blob[i:end]
		out = append(out, ChunkEntry{Key: hashChunk(chunk), Data: chunk})
	}
	return out
}

// FastCDCChunker is a gear-hash content-defined chunker. Each instance
// fills its own 256-entry gear table at construction from the supplied rng
// (the table is not a fixed well-known constant). With a nil rng a source
// seeded with 1 is used, so every chunker built without an rng gets the
// same table.
type FastCDCChunker struct {
	Min, Avg, Max int
	Mask          uint32
	gearTable     [256]uint32
}

func NewFastCDCChunker(min, avg, max int, mask uint32, rng *rand.Rand) *FastCDCChunker {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	c := &FastCDCChunker{Min: min, Avg: avg, Max: max, Mask: mask}
	for i := range c.gearTable {
		c.gearTable[i] = rng.Uint32()
	}
	return c
}

// ChunkBlob cuts blob at content-defined boundaries. Starting from the
// current chunk origin, each byte advances the gear hash; the chunk is cut
// at the first position where pos-origin >= Min and (gear&Mask == 0, or
// pos-origin >= Max), matching the original FastCDCChunker exactly (it cuts
// at the first candidate boundary — it does not extend further toward Avg).
func (c *FastCDCChunker) ChunkBlob(blob []byte) []ChunkEntry {
	var out []ChunkEntry
	chunkStart := 0
	var gear uint32
	n := len(blob)

	for i := 0; i < n; i++ {
		gear = ((gear << 1) + c.gearTable[blob[i]]) & 0xFFFFFFFF

		pos := i + 1 - chunkStart
		if pos >= c.Min && ((gear&c.Mask) == 0 || pos >= c.Max) {
			chunk := blob[chunkStart : i+1]
			out = append(out, ChunkEntry{Key: hashChunk(chunk), Data: chunk})
			chunkStart = i + 1
			gear = 0
		}
	}

	if chunkStart < n {
		chunk := blob[chunkStart:]
		out = append(out, ChunkEntry{Key: hashChunk(chunk), Data: chunk})
	}
	return out
}
