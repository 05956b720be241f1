package reactor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/valyala/bytebufferpool"
)

// steppedWriter accepts at most steps[i] bytes on its i-th Write call;
// once steps is exhausted it accepts everything, modeling the socket
// send buffer opening back up on a later readiness event.
type steppedWriter struct {
	steps []int
	idx   int
	out   bytes.Buffer
}

func (w *steppedWriter) Write(p []byte) (int, error) {
	limit := len(p)
	if w.idx < len(w.steps) {
		limit = w.steps[w.idx]
		w.idx++
	}
	if limit == 0 {
		return 0, nil
	}
	if limit > len(p) {
		limit = len(p)
	}
	w.out.Write(p[:limit])
	return limit, nil
}

// S4: a write that only partially lands must resume from exactly
// where it left off on the next Handle call, and the queue must stay
// non-empty (and report empty=false) until fully drained.
func TestWriterPartialWriteResumes(t *testing.T) {
	var w Writer
	buf := &bytebufferpool.ByteBuffer{B: []byte("hello world")}
	w.Enqueue(buf)

	nw1 := &steppedWriter{steps: []int{3, 0}}
	empty, err := w.Handle(nw1)
	if err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if empty {
		t.Fatal("Handle() reported empty after only a partial write")
	}
	if !w.Pending() {
		t.Fatal("Pending() = false with an unfinished job still queued")
	}
	if nw1.out.String() != "hel" {
		t.Fatalf("first Handle() wrote %q; want %q", nw1.out.String(), "hel")
	}

	nw2 := &steppedWriter{}
	empty, err = w.Handle(nw2)
	if err != nil {
		t.Fatalf("second Handle() error: %v", err)
	}
	if !empty {
		t.Fatal("Handle() did not report empty after the rest of the job landed")
	}
	if w.Pending() {
		t.Fatal("Pending() = true after the queue fully drained")
	}
	if nw2.out.String() != "lo world" {
		t.Fatalf("second Handle() wrote %q; want %q", nw2.out.String(), "lo world")
	}
}

type erroringWriter struct{}

func (erroringWriter) Write(p []byte) (int, error) { return 0, errors.New("connection reset") }

func TestWriterHandleErrorDrainsQueue(t *testing.T) {
	var w Writer
	for i := 0; i < 3; i++ {
		w.Enqueue(&bytebufferpool.ByteBuffer{B: []byte("x")})
	}

	_, err := w.Handle(erroringWriter{})
	if err == nil {
		t.Fatal("Handle() with a broken writer should return an error")
	}
	if w.Pending() {
		t.Fatal("Pending() = true after Handle observed a write error; queue should be drained")
	}
}

func TestWriterClose(t *testing.T) {
	var w Writer
	w.Enqueue(&bytebufferpool.ByteBuffer{B: []byte("pending")})

	w.Close()
	if w.Pending() {
		t.Fatal("Pending() = true after Close")
	}
}

func TestSizeHeaderWriterFrame(t *testing.T) {
	cfg := NewConfig(WithHeaderSize(4), WithByteOrder(binary.BigEndian))
	sw := NewSizeHeaderWriter(cfg)

	framed := sw.Frame([]byte("hello"))
	if got := binary.BigEndian.Uint32(framed.B[:4]); got != 5 {
		t.Fatalf("length prefix = %d; want 5", got)
	}
	if string(framed.B[4:]) != "hello" {
		t.Fatalf("payload = %q; want %q", framed.B[4:], "hello")
	}
}

func TestSizeHeaderWriterNonStandardWidth(t *testing.T) {
	cfg := NewConfig(WithHeaderSize(2), WithByteOrder(binary.BigEndian), WithMaxBodyBytes(1<<16))
	sw := NewSizeHeaderWriter(cfg)

	framed := sw.Frame([]byte("hi"))
	if len(framed.B) != 4 {
		t.Fatalf("framed length = %d; want 4 (2-byte header + 2-byte payload)", len(framed.B))
	}
	if got := binary.BigEndian.Uint16(framed.B[:2]); got != 2 {
		t.Fatalf("length prefix = %d; want 2", got)
	}
}
