package grpc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec names accepted by CompressorFor.
const (
	CodecNone   = "none"
	CodecGZIP   = "gzip"
	CodecZstd   = "zstd"
	CodecSnappy = "snappy"
)

var errEmptyPayload = errors.New("empty payload")

// Compressor is a symmetric whole-payload codec. Implementations are safe for
// concurrent use.
type Compressor interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// CompressorFor resolves a codec name. The empty name selects CodecNone.
func CompressorFor(name string) (Compressor, error) {
	switch name {
	case "", CodecNone:
		return passthrough{}, nil
	case CodecGZIP:
		return &gzipCodec{}, nil
	case CodecZstd:
		return newZstdCodec()
	case CodecSnappy:
		return snappyCodec{}, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

// decompress rejects empty input and prefixes errors with the codec name.
func decompress(name string, data []byte, decode func([]byte) ([]byte, error)) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%s decompress: %w", name, errEmptyPayload)
	}
	out, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s decompress: %w", name, err)
	}
	return out, nil
}

type passthrough struct{}

func (passthrough) Name() string                           { return CodecNone }
func (passthrough) Compress(data []byte) ([]byte, error)   { return data, nil }
func (passthrough) Decompress(data []byte) ([]byte, error) { return data, nil }

// gzipCodec reuses writers across calls; a snapshot is compressed every tick.
type gzipCodec struct {
	writers sync.Pool
}

func (*gzipCodec) Name() string { return CodecGZIP }

func (c *gzipCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, ok := c.writers.Get().(*gzip.Writer)
	if ok {
		w.Reset(&buf)
	} else {
		w = gzip.NewWriter(&buf)
	}
	defer c.writers.Put(w)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("gzip compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (*gzipCodec) Decompress(data []byte) ([]byte, error) {
	return decompress(CodecGZIP, data, func(b []byte) ([]byte, error) {
		r, err := gzip.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	})
}

// zstdCodec shares one encoder and decoder; EncodeAll and DecodeAll are
// goroutine safe.
type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec() (*zstdCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &zstdCodec{enc: enc, dec: dec}, nil
}

func (*zstdCodec) Name() string { return CodecZstd }

func (c *zstdCodec) Compress(data []byte) ([]byte, error) { return c.enc.EncodeAll(data, nil), nil }

func (c *zstdCodec) Decompress(data []byte) ([]byte, error) {
	return decompress(CodecZstd, data, func(b []byte) ([]byte, error) { return c.dec.DecodeAll(b, nil) })
}

// snappyCodec uses the block format.
type snappyCodec struct{}

func (snappyCodec) Name() string { return CodecSnappy }

func (snappyCodec) Compress(data []byte) ([]byte, error) { return snappy.Encode(nil, data), nil }

func (snappyCodec) Decompress(data []byte) ([]byte, error) {
	return decompress(CodecSnappy, data, func(b []byte) ([]byte, error) { return snappy.Decode(nil, b) })
}
