package reactor

import (
	"github.com/valyala/bytebufferpool"
)

var defaultByteBufferPool bytebufferpool.Pool

// AcquireByteBuffer returns an empty byte buffer from the pool. The
// buffer backs outgoing WriteJob payloads: SizeHeaderWriter.Frame
// writes the length prefix followed by the refined response into one,
// and the Writer releases it once the job drains.
func AcquireByteBuffer() *bytebufferpool.ByteBuffer {
	return defaultByteBufferPool.Get()
}

// ReleaseByteBuffer returns a byte buffer to the pool.
//
// The buffer's bytes must not be touched after release; doing so
// races against whoever acquires it next.
func ReleaseByteBuffer(b *bytebufferpool.ByteBuffer) {
	defaultByteBufferPool.Put(b)
}
