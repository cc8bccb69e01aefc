// Copyright 2025 James Ross

// Package blobstore implements a content-addressed, deduplicating blob
// store: blobs are split into chunks by a pluggable Chunker, chunks are
// stored in a reference-counted kvstore.Store (optionally compressed by a
// pluggable Compressor), and a BlobIndex records each blob's ordered chunk
// key list and content hash for reassembly and integrity verification.
package blobstore

import "time"

// ChunkEntry is a chunk produced by a Chunker: its content-derived key and
// raw bytes.
type ChunkEntry struct {
	Key  string
	Data []byte
}

// Blob is the metadata record for a stored object.
type Blob struct {
	Identifier string
	Hash       string
	ChunkKeys  []string
	Version    int
	Meta       map[string]string
	StoredAt   time.Time
}

// Chunker splits a blob into content-addressed chunks.
type Chunker interface {
	ChunkBlob(blob []byte) []ChunkEntry
}

// Compressor compresses and decompresses chunk payloads. It also
// satisfies kvstore.Codec structurally so any Compressor can back a
// kvstore.CompressingStore.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}
