package reactor

import (
	"bytes"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/netrune/reactor/stackless"
)

// GzipRefiner compresses a handler's response payload with gzip before
// it reaches SizeHeaderWriter. Grounded in fasthttp's gzip response
// writer (compress.go / brotli.go), generalized from "gzip an HTTP
// response body" to "gzip an arbitrary response refiner stage," and
// built on the same stackless.Writer wrapper fasthttp uses to keep a
// goroutine-heavy compressor off each caller's stack.
type GzipRefiner[T any] struct {
	level int
}

// NewGzipRefiner returns a GzipRefiner at level, one of the
// compress/flate level constants.
func NewGzipRefiner[T any](level int) *GzipRefiner[T] {
	return &GzipRefiner[T]{level: level}
}

func (g *GzipRefiner[T]) Execute(_ T, payload []byte) ([]byte, error) {
	var dst bytes.Buffer
	zw := stackless.NewWriter(&dst, func(w io.Writer) stackless.Writer {
		gw, err := gzip.NewWriterLevel(w, g.level)
		if err != nil {
			gw, _ = gzip.NewWriterLevel(w, gzip.DefaultCompression)
		}
		return gw
	})
	if _, err := zw.Write(payload); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return dst.Bytes(), nil
}

// BrotliRefiner compresses a handler's response payload with brotli.
// Same shape as GzipRefiner; grounded the same way, using
// andybalholm/brotli in place of compress/gzip.
type BrotliRefiner[T any] struct {
	quality int
}

// NewBrotliRefiner returns a BrotliRefiner at the given quality level.
func NewBrotliRefiner[T any](quality int) *BrotliRefiner[T] {
	return &BrotliRefiner[T]{quality: quality}
}

func (b *BrotliRefiner[T]) Execute(_ T, payload []byte) ([]byte, error) {
	var dst bytes.Buffer
	zw := stackless.NewWriter(&dst, func(w io.Writer) stackless.Writer {
		return brotli.NewWriterLevel(w, b.quality)
	})
	if _, err := zw.Write(payload); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return dst.Bytes(), nil
}
