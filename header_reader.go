package reactor

import "encoding/binary"

// HeaderReader accumulates the fixed-size length prefix across partial
// reads and yields the declared body size once complete. Grounded in
// hayabusa-cloud-framer's framer.readStream header-accumulation loop
// (internal.go), specialized to a fixed header width instead of that
// library's variable-length encoding.
type HeaderReader struct {
	buf       []byte
	byteOrder binary.ByteOrder
	maxBody   uint32

	filled int
	value  uint32
}

// NewHeaderReader returns a HeaderReader for a header of size bytes,
// decoded with order, rejecting any declared body size above maxBody.
func NewHeaderReader(size int, order binary.ByteOrder, maxBody uint32) *HeaderReader {
	return &HeaderReader{
		buf:       make([]byte, size),
		byteOrder: order,
		maxBody:   maxBody,
	}
}

// Reset prepares the reader for the next frame's header.
func (h *HeaderReader) Reset() {
	h.filled = 0
	h.value = 0
}

// Remaining reports how many header bytes are still needed.
func (h *HeaderReader) Remaining() int { return len(h.buf) - h.filled }

// IsComplete reports whether all header bytes have been fed.
func (h *HeaderReader) IsComplete() bool { return h.filled == len(h.buf) }

// Size reports the configured header width in bytes.
func (h *HeaderReader) Size() int { return len(h.buf) }

// Buffer returns the slice a caller should read into next: the
// unfilled tail of the header buffer. Used by RequestReader to build
// its vectored read.
func (h *HeaderReader) Buffer() []byte { return h.buf[h.filled:] }

// Feed consumes up to len(p) bytes from p into the header buffer,
// returning how many bytes it actually consumed. If this call
// completes the header, Value becomes valid; a header declaring a body
// size greater than maxBody fails with ErrMalformedFrame.
func (h *HeaderReader) Feed(p []byte) (consumed int, err error) {
	need := h.Remaining()
	if need == 0 {
		return 0, nil
	}
	n := copy(h.buf[h.filled:], p[:min(need, len(p))])
	h.filled += n
	if h.filled < len(h.buf) {
		return n, nil
	}
	h.value = decodeHeader(h.byteOrder, h.buf)
	if h.value > h.maxBody {
		return n, ErrMalformedFrame
	}
	return n, nil
}

// Value returns the decoded body length. Valid only once IsComplete.
func (h *HeaderReader) Value() uint32 { return h.value }

func decodeHeader(order binary.ByteOrder, buf []byte) uint32 {
	switch len(buf) {
	case 1:
		return uint32(buf[0])
	case 2:
		return uint32(order.Uint16(buf))
	case 4:
		return order.Uint32(buf)
	default:
		// Other header widths below 4 bytes (e.g. 3) are decoded via a
		// zero-extended 4-byte window so non-default HeaderSize values
		// still work with the two byte orders the stdlib exposes.
		// Widths above 4 bytes do not fit this window and are not
		// supported.
		var tmp [4]byte
		if order == binary.BigEndian {
			copy(tmp[4-len(buf):], buf)
		} else {
			copy(tmp[:], buf)
		}
		return order.Uint32(tmp[:])
	}
}
