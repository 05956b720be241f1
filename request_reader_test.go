package reactor

import (
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

// step is one scatter-read outcome a fakeScatterReader hands back.
// A step with no data and a non-nil err models a broken/closed
// connection; an exhausted step list models "nothing readable right
// now" by returning (0, nil) forever after.
type step struct {
	data []byte
	err  error
}

type fakeScatterReader struct {
	steps []step
	idx   int
}

func (f *fakeScatterReader) ReadVector(bufs [][]byte) (int, error) {
	if f.idx >= len(f.steps) {
		return 0, nil
	}
	s := f.steps[f.idx]
	f.idx++
	if len(s.data) == 0 {
		return 0, s.err
	}
	data := s.data
	n := 0
	for _, b := range bufs {
		if len(data) == 0 {
			break
		}
		c := copy(b, data)
		data = data[c:]
		n += c
	}
	return n, nil
}

func frame(headerSize int, payload []byte) []byte {
	out := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(out[headerSize-4:headerSize], uint32(len(payload)))
	copy(out[headerSize:], payload)
	return out
}

func newTestReader(maxBody uint32) *RequestReader[string] {
	cfg := NewConfig(WithHeaderSize(4), WithByteOrder(binary.BigEndian), WithMaxBodyBytes(maxBody))
	return NewRequestReader[string](cfg, stringFactory{}, make([]byte, maxBody))
}

// S1: happy path, header and body arrive in a single scatter read.
func TestRequestReaderHappyPath(t *testing.T) {
	r := newTestReader(64)
	sr := &fakeScatterReader{steps: []step{{data: frame(4, []byte("hello"))}}}

	msg, hp, bp, err := r.Read(sr)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if msg == nil {
		t.Fatal("Read() returned nil message")
	}
	if msg.Value != "hello" {
		t.Fatalf("Value = %q; want %q", msg.Value, "hello")
	}
	if hp != nil || bp != nil {
		t.Fatalf("unexpected carry-over: hp=%v bp=%v", hp, bp)
	}
}

// S2: the header itself arrives split across two separate readiness
// events (two calls to Read, each backed by its own scatter reader).
func TestRequestReaderSplitHeader(t *testing.T) {
	r := newTestReader(64)
	full := frame(4, []byte("hello"))

	sr1 := &fakeScatterReader{steps: []step{{data: full[:2]}}}
	msg, hp, bp, err := r.Read(sr1)
	if err != nil {
		t.Fatalf("first Read() error: %v", err)
	}
	if msg != nil {
		t.Fatal("first Read() should not complete a frame from only 2 header bytes")
	}
	if hp != nil || bp != nil {
		t.Fatal("first Read() should not report carry-over")
	}

	sr2 := &fakeScatterReader{steps: []step{{data: full[2:]}}}
	msg, hp, bp, err = r.Read(sr2)
	if err != nil {
		t.Fatalf("second Read() error: %v", err)
	}
	if msg == nil || msg.Value != "hello" {
		t.Fatalf("second Read() = %v; want completed message %q", msg, "hello")
	}
	if hp != nil || bp != nil {
		t.Fatalf("unexpected carry-over: hp=%v bp=%v", hp, bp)
	}
}

// S3: one scatter read lands two complete frames back to back. Read
// must surface only the first and hand back the second frame's bytes
// as headerPrefix/bodyPrefix; ReadPreloaded then completes it without
// touching the socket again.
func TestRequestReaderCoalescedFrames(t *testing.T) {
	r := newTestReader(64)
	first := frame(4, []byte("hello"))
	second := frame(4, []byte("world!"))
	combined := append(append([]byte{}, first...), second...)

	sr := &fakeScatterReader{steps: []step{{data: combined}}}
	msg, hp, bp, err := r.Read(sr)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if msg == nil || msg.Value != "hello" {
		t.Fatalf("Read() first message = %v; want %q", msg, "hello")
	}
	if hp == nil {
		t.Fatal("expected headerPrefix carry-over for the second frame")
	}

	msg, nhp, nbp, err := r.ReadPreloaded(hp, bp)
	if err != nil {
		t.Fatalf("ReadPreloaded() error: %v", err)
	}
	if msg == nil || msg.Value != "world!" {
		t.Fatalf("ReadPreloaded() message = %v; want %q", msg, "world!")
	}
	if nhp != nil || nbp != nil {
		t.Fatalf("unexpected further carry-over: nhp=%v nbp=%v", nhp, nbp)
	}
}

// S6: the connection closes mid-frame, after only a partial header
// has arrived. That must surface as ErrEndOfStream and latch.
func TestRequestReaderEndOfStreamMidFrame(t *testing.T) {
	r := newTestReader(64)
	sr := &fakeScatterReader{steps: []step{
		{data: []byte{0x00, 0x00}},
		{err: io.EOF},
	}}

	msg, _, _, err := r.Read(sr)
	if msg != nil {
		t.Fatal("expected no message on end of stream")
	}
	if !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("err = %v; want ErrEndOfStream", err)
	}
	if !r.EndOfStream() {
		t.Fatal("EndOfStream() = false after observing end of stream")
	}

	// A subsequent call must keep reporting end of stream without
	// touching sr again.
	_, _, _, err = r.Read(sr)
	if !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("second Read() err = %v; want ErrEndOfStream", err)
	}
}

// A non-EOF error from the scatter reader is a genuine I/O failure,
// not a clean end of stream, and must be reported as such so the
// reactor loop logs it instead of closing silently.
func TestRequestReaderIOFailureIsDistinctFromEndOfStream(t *testing.T) {
	r := newTestReader(64)
	boom := errors.New("connection reset")
	sr := &fakeScatterReader{steps: []step{{err: boom}}}

	msg, _, _, err := r.Read(sr)
	if msg != nil {
		t.Fatal("expected no message on an io failure")
	}
	if !errors.Is(err, ErrIOFailure) {
		t.Fatalf("err = %v; want wrapped ErrIOFailure", err)
	}
	if errors.Is(err, ErrEndOfStream) {
		t.Fatal("an io failure must not also satisfy ErrEndOfStream")
	}
	if !r.EndOfStream() {
		t.Fatal("EndOfStream() should still latch after an io failure: the reader is done either way")
	}
}

func TestRequestReaderWouldBlockReturnsNilWithoutError(t *testing.T) {
	r := newTestReader(64)
	sr := &fakeScatterReader{} // no steps: always reports (0, nil)

	msg, hp, bp, err := r.Read(sr)
	if msg != nil || hp != nil || bp != nil || err != nil {
		t.Fatalf("Read() on an empty socket = %v, %v, %v, %v; want all nil/zero", msg, hp, bp, err)
	}
}
