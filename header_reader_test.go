package reactor

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestHeaderReaderSplitFeed(t *testing.T) {
	h := NewHeaderReader(4, binary.BigEndian, 100)

	var want [4]byte
	binary.BigEndian.PutUint32(want[:], 42)

	n, err := h.Feed(want[:2])
	if err != nil || n != 2 {
		t.Fatalf("Feed(first half) = %d, %v; want 2, nil", n, err)
	}
	if h.IsComplete() {
		t.Fatal("IsComplete() = true after only half the header arrived")
	}
	if got := h.Remaining(); got != 2 {
		t.Fatalf("Remaining() = %d; want 2", got)
	}

	n, err = h.Feed(want[2:])
	if err != nil || n != 2 {
		t.Fatalf("Feed(second half) = %d, %v; want 2, nil", n, err)
	}
	if !h.IsComplete() {
		t.Fatal("IsComplete() = false after full header arrived")
	}
	if got := h.Value(); got != 42 {
		t.Fatalf("Value() = %d; want 42", got)
	}

	h.Reset()
	if h.IsComplete() {
		t.Fatal("IsComplete() = true after Reset")
	}
	if got := h.Remaining(); got != 4 {
		t.Fatalf("Remaining() after Reset = %d; want 4", got)
	}
}

func TestHeaderReaderRejectsOversizedBody(t *testing.T) {
	h := NewHeaderReader(4, binary.BigEndian, 10)

	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], 20)

	_, err := h.Feed(buf[:])
	if !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("Feed(oversized) err = %v; want ErrMalformedFrame", err)
	}
}

func TestHeaderReaderExtraBytesIgnored(t *testing.T) {
	h := NewHeaderReader(2, binary.BigEndian, 100)

	n, err := h.Feed([]byte{0x00, 0x05, 0xff, 0xff})
	if err != nil {
		t.Fatalf("Feed returned error: %v", err)
	}
	if n != 2 {
		t.Fatalf("Feed consumed %d bytes; want 2 (header size)", n)
	}
	if got := h.Value(); got != 5 {
		t.Fatalf("Value() = %d; want 5", got)
	}
}
