package reactor

// BodyReader accumulates a declared number of body bytes into a
// caller-owned buffer and delegates decoding to a MessageFactory once
// complete. Per spec §4.2 any bytes beyond the declared size are never
// consumed here — they belong to the next frame and RequestReader
// carries them forward itself.
type BodyReader[T any] struct {
	factory MessageFactory[T]
	buf     []byte // connection-owned scratch, sized to MaxBodyBytes

	size   uint32
	filled uint32
}

// NewBodyReader returns a BodyReader backed by buf (owned by the
// connection, sized once to the configured maximum body).
func NewBodyReader[T any](factory MessageFactory[T], buf []byte) *BodyReader[T] {
	return &BodyReader[T]{factory: factory, buf: buf}
}

// SetSize installs the declared body size for the frame now being
// read and resets the fill cursor.
func (b *BodyReader[T]) SetSize(n uint32) {
	b.size = n
	b.filled = 0
}

// Reset clears the declared size and fill cursor, readying the reader
// for the next frame's header to arrive.
func (b *BodyReader[T]) Reset() {
	b.size = 0
	b.filled = 0
}

// RawBuffer returns the full connection-owned scratch buffer from
// offset zero, regardless of the currently declared size. RequestReader
// uses this as the second vector of a scatter read while the header is
// still incomplete, since the eventual declared size is not yet known
// and the socket may hand back more bytes than this frame's body will
// turn out to need.
func (b *BodyReader[T]) RawBuffer() []byte { return b.buf }

// Remaining reports how many body bytes are still needed.
func (b *BodyReader[T]) Remaining() uint32 { return b.size - b.filled }

// IsComplete reports whether the declared body size has been reached.
// A zero-length body is complete immediately after SetSize.
func (b *BodyReader[T]) IsComplete() bool { return b.filled >= b.size }

// Buffer returns the slice a caller should read into next: the
// unfilled tail of the body window. Used by RequestReader to build its
// vectored read.
func (b *BodyReader[T]) Buffer() []byte { return b.buf[b.filled:b.size] }

// Feed consumes up to Remaining() bytes from p, returning how many
// bytes it actually consumed.
func (b *BodyReader[T]) Feed(p []byte) (consumed int) {
	need := b.Remaining()
	if need == 0 {
		return 0
	}
	n := copy(b.buf[b.filled:b.size], p[:minU32(need, uint32(len(p)))])
	b.filled += uint32(n)
	return n
}

// TakeMessage decodes the accumulated body into a Message. Valid only
// once IsComplete. A codec error is wrapped as *CodecError.
func (b *BodyReader[T]) TakeMessage() (Message[T], error) {
	window := b.buf[:b.size]
	msg, err := b.factory.Create(window)
	if err != nil {
		return Message[T]{}, &CodecError{Err: err}
	}
	// Copy out of the connection's reusable scratch buffer: an async
	// handler, or a refiner applied after the next frame has started
	// filling this same buffer, must see bytes unaffected by later
	// reads on this connection.
	raw := make([]byte, len(window))
	copy(raw, window)
	msg.Raw = raw
	return msg, nil
}

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
