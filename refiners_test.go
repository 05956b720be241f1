package reactor

import (
	"bytes"
	"io"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

func TestGzipRefinerRoundTrips(t *testing.T) {
	r := NewGzipRefiner[string](gzip.DefaultCompression)
	payload := []byte("the quick brown fox jumps over the lazy dog, repeatedly, over and over")

	compressed, err := r.Execute("ignored", payload)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if bytes.Equal(compressed, payload) {
		t.Fatal("compressed output is identical to the input")
	}

	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		t.Fatalf("gzip.NewReader() error: %v", err)
	}
	defer zr.Close()
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("reading decompressed data: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("round trip mismatch: got %q, want %q", got, payload)
	}
}

func TestBrotliRefinerRoundTrips(t *testing.T) {
	r := NewBrotliRefiner[string](5)
	payload := []byte("the quick brown fox jumps over the lazy dog, repeatedly, over and over")

	compressed, err := r.Execute("ignored", payload)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	got, err := io.ReadAll(brotli.NewReader(bytes.NewReader(compressed)))
	if err != nil {
		t.Fatalf("reading decompressed data: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("round trip mismatch: got %q, want %q", got, payload)
	}
}
