package reactor

import (
	"errors"
	"fmt"
	"io"
)

// ScatterReader performs one non-blocking scatter read across bufs, in
// order, the way RequestReader.Read needs it: fill bufs[0] before
// bufs[1], and so on. Implementations report "nothing readable right
// now" as (0, nil), never as an error. A (0, io.EOF) return means the
// peer closed the connection cleanly; any other non-nil error means an
// unexpected socket failure. RequestReader.Read turns the former into
// ErrEndOfStream (closed silently) and the latter into ErrIOFailure
// (logged before closing) — see errors.go.
type ScatterReader interface {
	ReadVector(bufs [][]byte) (n int, err error)
}

// ReaderState is a read-only snapshot of a RequestReader's progress,
// useful for tests and diagnostics without exposing the reader's
// internals.
type ReaderState struct {
	HeaderComplete bool
	HeaderFilled   int
	HeaderSize     int
	BodyDeclared   uint32
	BodyFilled     uint32
	EndOfStream    bool
}

// RequestReader drives one connection's HeaderReader and BodyReader[T]
// through however many scatter reads it takes to assemble a Message,
// carrying any bytes beyond the first completed frame back to the
// caller instead of losing them. Grounded in hayabusa-cloud-framer's
// framer read loop (internal.go), generalized from that library's
// streaming decoder to the fixed two-stage header/body split spec §4.3
// describes and to this package's non-blocking, single-reactor model.
type RequestReader[T any] struct {
	header *HeaderReader
	body   *BodyReader[T]

	endOfStream bool
}

// NewRequestReader returns a RequestReader reading frames described by
// factory into bodyBuf, a connection-owned scratch buffer sized to the
// server's configured maximum body.
func NewRequestReader[T any](cfg *Config, factory MessageFactory[T], bodyBuf []byte) *RequestReader[T] {
	return &RequestReader[T]{
		header: NewHeaderReader(cfg.HeaderSize, cfg.ByteOrder, cfg.MaxBodyBytes),
		body:   NewBodyReader[T](factory, bodyBuf),
	}
}

// State reports a snapshot of the reader's current progress.
func (r *RequestReader[T]) State() ReaderState {
	return ReaderState{
		HeaderComplete: r.header.IsComplete(),
		HeaderFilled:   r.header.Size() - r.header.Remaining(),
		HeaderSize:     r.header.Size(),
		BodyDeclared:   r.body.size,
		BodyFilled:     r.body.filled,
		EndOfStream:    r.endOfStream,
	}
}

// EndOfStream reports whether a prior read observed end of stream.
func (r *RequestReader[T]) EndOfStream() bool { return r.endOfStream }

// Read drains sr until it would block, a frame completes, or the
// stream ends. It returns at most one completed Message per call: if
// the drained bytes contain more than one frame's worth of data (the
// coalesced-frames case), the bytes beyond the first completed frame
// are returned as headerPrefix/bodyPrefix for the caller to resubmit
// via ReadPreloaded without touching the socket again.
func (r *RequestReader[T]) Read(sr ScatterReader) (msg *Message[T], headerPrefix, bodyPrefix []byte, err error) {
	if r.endOfStream {
		return nil, nil, nil, ErrEndOfStream
	}
	for {
		headerIncomplete := !r.header.IsComplete()

		var vecs [][]byte
		var headerWindow, bodyWindow []byte
		if headerIncomplete {
			headerWindow = r.header.Buffer()
			bodyWindow = r.body.RawBuffer()
			vecs = [][]byte{headerWindow, bodyWindow}
		} else {
			bodyWindow = r.body.Buffer()
			vecs = [][]byte{bodyWindow}
		}

		n, rerr := sr.ReadVector(vecs)
		if n == 0 {
			if rerr != nil {
				r.endOfStream = true
				if errors.Is(rerr, io.EOF) {
					return nil, nil, nil, ErrEndOfStream
				}
				return nil, nil, nil, fmt.Errorf("%w: %v", ErrIOFailure, rerr)
			}
			return nil, nil, nil, nil
		}

		var hb, bb []byte
		if headerIncomplete {
			landedHeader := n
			if landedHeader > len(headerWindow) {
				landedHeader = len(headerWindow)
			}
			hb = headerWindow[:landedHeader]
			bb = bodyWindow[:n-landedHeader]
		} else {
			bb = bodyWindow[:n]
		}

		msg, headerPrefix, bodyPrefix, err = r.feed(hb, bb)
		if err != nil || msg != nil {
			return msg, headerPrefix, bodyPrefix, err
		}
		// Neither a completed frame nor an error: keep draining this
		// wakeup's readable bytes rather than waiting for the next one.
	}
}

// ReadPreloaded continues decoding from bytes the caller already has
// in hand (returned by a prior Read or ReadPreloaded as headerPrefix/
// bodyPrefix) without issuing another socket read. The reactor loop is
// expected to call this repeatedly while it keeps returning a non-nil
// remainder, draining every frame already sitting in memory before
// waiting on the selector again.
func (r *RequestReader[T]) ReadPreloaded(headerPrefix, bodyPrefix []byte) (msg *Message[T], nextHeaderPrefix, nextBodyPrefix []byte, err error) {
	if r.endOfStream {
		return nil, nil, nil, ErrEndOfStream
	}
	if len(headerPrefix) == 0 && len(bodyPrefix) == 0 {
		return nil, nil, nil, nil
	}
	return r.feed(headerPrefix, bodyPrefix)
}

// feed is the shared decode step for both a live socket read and a
// preloaded carry-over: it does not care whether headerBytes/bodyBytes
// arrived via a syscall or were already sitting in memory.
func (r *RequestReader[T]) feed(headerBytes, bodyBytes []byte) (*Message[T], []byte, []byte, error) {
	if len(headerBytes) > 0 && !r.header.IsComplete() {
		if _, err := r.header.Feed(headerBytes); err != nil {
			return nil, nil, nil, err
		}
		if !r.header.IsComplete() {
			return nil, nil, nil, nil
		}
		r.body.SetSize(r.header.Value())
	}
	if !r.header.IsComplete() {
		return nil, nil, nil, nil
	}

	consumed := r.body.Feed(bodyBytes)
	surplus := bodyBytes[consumed:]
	if r.body.IsComplete() {
		return r.completeFrame(surplus)
	}
	return nil, nil, nil, nil
}

// completeFrame decodes the finished body, splits any surplus bytes
// into the next frame's header/body prefixes, and resets both readers
// for the frame that follows.
func (r *RequestReader[T]) completeFrame(surplus []byte) (*Message[T], []byte, []byte, error) {
	m, err := r.body.TakeMessage()

	var headerPrefix, bodyPrefix []byte
	if len(surplus) > 0 {
		hp, bp := splitSurplus(surplus, r.header.Size())
		headerPrefix = append([]byte(nil), hp...)
		if len(bp) > 0 {
			bodyPrefix = append([]byte(nil), bp...)
		}
	}

	r.header.Reset()
	r.body.Reset()

	if err != nil {
		return nil, headerPrefix, bodyPrefix, err
	}
	return &m, headerPrefix, bodyPrefix, nil
}

func splitSurplus(extra []byte, headerSize int) (headerPrefix, bodyPrefix []byte) {
	if len(extra) <= headerSize {
		return extra, nil
	}
	return extra[:headerSize], extra[headerSize:]
}
