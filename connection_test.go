package reactor

import (
	"encoding/binary"
	"testing"

	"github.com/valyala/bytebufferpool"
)

func TestConnectionIDAllocatorIsMonotonicAndUnique(t *testing.T) {
	var a connectionIDAllocator
	seen := make(map[uint64]bool)
	for i := 0; i < 1000; i++ {
		id := a.Next()
		if id == 0 {
			t.Fatal("Next() returned 0; ids should start at 1")
		}
		if seen[id] {
			t.Fatalf("Next() returned duplicate id %d", id)
		}
		seen[id] = true
	}
}

func TestConnectionCloseReleasesWriterAndUserData(t *testing.T) {
	cfg := NewConfig(WithHeaderSize(4), WithByteOrder(binary.BigEndian))
	reader := NewRequestReader[string](cfg, stringFactory{}, make([]byte, 64))
	conn := NewConnection[string](1, 0, reader)

	closed := &closeRecorder{}
	conn.Data.Set("session", closed)
	conn.Writer.Enqueue(&bytebufferpool.ByteBuffer{B: []byte("pending")})

	conn.Close()

	if !closed.closed {
		t.Fatal("Close() did not close an io.Closer stored in Data")
	}
	if conn.Writer.Pending() {
		t.Fatal("Close() left buffers queued on the writer")
	}
}
