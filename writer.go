package reactor

import (
	"encoding/binary"
	"sync"

	"github.com/valyala/bytebufferpool"
)

// NonBlockingWriter is a single non-blocking write attempt, with the
// same would-block convention ScatterReader uses on the read side:
// (0, nil) means "the socket send buffer is full right now", not an
// error. Only a closed or broken connection returns a non-nil error.
type NonBlockingWriter interface {
	Write(p []byte) (n int, err error)
}

// WriteJob is one framed buffer in flight to a connection, tracking
// how much of it has made it onto the wire so a partial write can
// resume exactly where it left off.
type WriteJob struct {
	buf     *bytebufferpool.ByteBuffer
	written int
}

func (j *WriteJob) remaining() []byte { return j.buf.B[j.written:] }
func (j *WriteJob) done() bool        { return j.written >= len(j.buf.B) }

// Writer is a connection's outbound queue: SizeHeaderWriter produces
// framed buffers, handlers and the async reaper enqueue them from
// whatever goroutine they run on, and the reactor goroutine alone
// drains the queue against the connection's socket. Grounded in
// fasthttp's workerPool write path generalized from "one response per
// request" to an arbitrary FIFO of pending frames, since a connection
// here may accumulate several responses (sync replies, async replies,
// unsolicited notifications) before the socket is writable again.
type Writer struct {
	mu    sync.Mutex
	queue []*WriteJob
}

// Enqueue appends buf to the connection's write queue. Safe to call
// from any goroutine, including a handler notifying outside the
// reactor goroutine's own read/write cycle.
func (w *Writer) Enqueue(buf *bytebufferpool.ByteBuffer) {
	w.mu.Lock()
	w.queue = append(w.queue, &WriteJob{buf: buf})
	w.mu.Unlock()
}

// Pending reports whether the queue currently holds any bytes,
// telling the reactor loop whether to keep write-interest registered
// for this connection.
func (w *Writer) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue) > 0
}

// Handle drains as much of the queue as nw accepts without blocking.
// It returns empty=true once the queue has been fully drained, or
// empty=false if it stopped on a would-block write (interest should
// stay registered). A non-nil error means the connection is broken and
// must be closed; jobs still queued are simply released.
func (w *Writer) Handle(nw NonBlockingWriter) (empty bool, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for len(w.queue) > 0 {
		job := w.queue[0]
		for !job.done() {
			n, werr := nw.Write(job.remaining())
			if werr != nil {
				w.drainLocked()
				return false, werr
			}
			if n == 0 {
				return false, nil
			}
			job.written += n
		}
		ReleaseByteBuffer(job.buf)
		w.queue = w.queue[1:]
	}
	return true, nil
}

// drainLocked releases every queued buffer without writing it, used
// once a connection is known to be broken. Callers must hold w.mu.
func (w *Writer) drainLocked() {
	for _, job := range w.queue {
		ReleaseByteBuffer(job.buf)
	}
	w.queue = nil
}

// Close releases every buffer still queued without sending it.
func (w *Writer) Close() {
	w.mu.Lock()
	w.drainLocked()
	w.mu.Unlock()
}

// SizeHeaderWriter frames a payload with the configured fixed-width
// length prefix: BE_U32(len(payload)) || payload, generalized to
// whatever HeaderSize and ByteOrder the server was configured with.
type SizeHeaderWriter struct {
	headerSize int
	byteOrder  binary.ByteOrder
}

// NewSizeHeaderWriter returns a SizeHeaderWriter matching cfg.
func NewSizeHeaderWriter(cfg *Config) *SizeHeaderWriter {
	return &SizeHeaderWriter{headerSize: cfg.HeaderSize, byteOrder: cfg.ByteOrder}
}

// Frame returns a pooled buffer containing the length-prefixed wire
// representation of payload. The caller enqueues it on a Writer, which
// releases it once sent.
func (s *SizeHeaderWriter) Frame(payload []byte) *bytebufferpool.ByteBuffer {
	buf := AcquireByteBuffer()
	buf.Reset()
	buf.B = appendHeader(buf.B, s.byteOrder, s.headerSize, uint32(len(payload)))
	buf.B = append(buf.B, payload...)
	return buf
}

func appendHeader(dst []byte, order binary.ByteOrder, size int, value uint32) []byte {
	var tmp [4]byte
	switch size {
	case 1:
		return append(dst, byte(value))
	case 2:
		order.PutUint16(tmp[:2], uint16(value))
		return append(dst, tmp[:2]...)
	case 4:
		order.PutUint32(tmp[:4], value)
		return append(dst, tmp[:4]...)
	default:
		order.PutUint32(tmp[:4], value)
		if order == binary.BigEndian {
			return append(dst, tmp[4-size:]...)
		}
		return append(dst, tmp[:size]...)
	}
}
