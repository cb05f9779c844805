package codec

import (
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Compressed wraps another codec and compresses its output. Build with
// Zstd or S2. Safe for concurrent use.
type Compressed[V any] struct {
	inner    Codec[V]
	compress func([]byte) []byte
	expand   func([]byte) ([]byte, error)
}

// Zstd compresses inner's payloads with Zstandard.
// level: 1 (fastest) to 4 (best compression); anything else is the default.
// maxDecoded caps the decompressed size; 0 keeps the library default.
func Zstd[V any](inner Codec[V], level int, maxDecoded uint64) (Compressed[V], error) {
	lvl := zstd.SpeedDefault
	switch {
	case level == 1:
		lvl = zstd.SpeedFastest
	case level == 3:
		lvl = zstd.SpeedBetterCompression
	case level >= 4:
		lvl = zstd.SpeedBestCompression
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(lvl))
	if err != nil {
		return Compressed[V]{}, err
	}
	dopts := []zstd.DOption{zstd.WithDecoderConcurrency(0)}
	if maxDecoded > 0 {
		dopts = append(dopts, zstd.WithDecoderMaxMemory(maxDecoded))
	}
	dec, err := zstd.NewReader(nil, dopts...)
	if err != nil {
		enc.Close()
		return Compressed[V]{}, err
	}
	return Compressed[V]{
		inner:    inner,
		compress: func(b []byte) []byte { return enc.EncodeAll(b, nil) },
		expand:   func(b []byte) ([]byte, error) { return dec.DecodeAll(b, nil) },
	}, nil
}

// S2 compresses inner's payloads with S2, trading ratio for speed.
func S2[V any](inner Codec[V]) Compressed[V] {
	return Compressed[V]{
		inner:    inner,
		compress: func(b []byte) []byte { return s2.Encode(nil, b) },
		expand:   func(b []byte) ([]byte, error) { return s2.Decode(nil, b) },
	}
}

func (c Compressed[V]) Encode(v V) ([]byte, error) {
	b, err := c.inner.Encode(v)
	if err != nil {
		return nil, err
	}
	return c.compress(b), nil
}

func (c Compressed[V]) Decode(b []byte) (V, error) {
	raw, err := c.expand(b)
	if err != nil {
		var zero V
		return zero, err
	}
	return c.inner.Decode(raw)
}
