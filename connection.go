package reactor

import (
	"fmt"
	"sync/atomic"
)

// connectionIDAllocator hands out the monotonically increasing keys
// the reactor uses to identify connections, independent of whatever
// identifier the underlying selector implementation uses internally.
type connectionIDAllocator struct{ counter uint64 }

func (a *connectionIDAllocator) Next() uint64 { return atomic.AddUint64(&a.counter, 1) }

// Connection holds everything the reactor goroutine needs to drive one
// client socket: its read-side state machine, its outbound write
// queue, and a small auxiliary key/value store handlers can use for
// per-connection bookkeeping. A Connection is only ever touched by the
// reactor goroutine, except for Writer, which is safe to enqueue onto
// from the async job reaper or from a handler's own goroutine.
type Connection[T any] struct {
	Key        uint64
	Attachment string
	IP         uint32

	Reader *RequestReader[T]
	Writer Writer
	Data   userData
}

// NewConnection returns a Connection identified by key, reading frames
// through reader.
func NewConnection[T any](key uint64, ip uint32, reader *RequestReader[T]) *Connection[T] {
	return &Connection[T]{
		Key:        key,
		Attachment: fmt.Sprintf("client %d", key),
		IP:         ip,
		Reader:     reader,
	}
}

// Close releases the connection's auxiliary data and drops any queued
// but unsent writes. It does not close the underlying socket; the
// reactor loop owns that.
func (c *Connection[T]) Close() {
	c.Data.Reset()
	c.Writer.Close()
}
