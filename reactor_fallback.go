//go:build !unix

package reactor

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/valyala/tcplisten"
)

// reactorLoop is the portable fallback for platforms without a unix
// poll(2) syscall (notably Windows): instead of one thread owning a
// real selector, each connection gets a small dedicated goroutine that
// blocks on net.Conn.Read and forwards whatever it reads to a single
// coordinating goroutine over a channel. That coordinating goroutine
// is still the only place Dispatcher.Dispatch is ever called from, so
// the "one goroutine owns connection state and handler invocation"
// half of the design holds; only the bottom-most read syscalls are no
// longer multiplexed by this package itself. Mirrors the teacher's own
// per-GOOS split (tcplisten_linux.go vs tcplisten_other.go): the unix
// build gets the real implementation, everything else gets a
// correct-but-simpler one.
type reactorLoop[T any] struct {
	cfg        *Config
	factory    MessageFactory[T]
	dispatcher *Dispatcher[T]
	logger     Logger
	ipCounter  *perIPConnCounter

	listener net.Listener

	ids   connectionIDAllocator
	mu    sync.RWMutex
	conns map[uint64]*fallbackConn[T]

	wake     chan struct{}
	acceptCh chan net.Conn
	stop     chan struct{}
	done     chan struct{}
}

type fallbackConn[T any] struct {
	netConn net.Conn
	conn    *Connection[T]
	reader  *chanScatterReader
}

func newReactorLoop[T any](cfg *Config, factory MessageFactory[T], dispatcher *Dispatcher[T]) (*reactorLoop[T], error) {
	lc := tcplisten.Config{ReusePort: cfg.ReusePort}
	ln, err := lc.NewListener("tcp4", cfg.ListenAddr)
	if err != nil {
		return nil, &FatalError{Op: "listen", Err: err}
	}
	return &reactorLoop[T]{
		cfg:        cfg,
		factory:    factory,
		dispatcher: dispatcher,
		logger:     cfg.Logger,
		ipCounter:  &perIPConnCounter{},
		listener:   ln,
		conns:      make(map[uint64]*fallbackConn[T]),
		wake:       make(chan struct{}, 1),
		acceptCh:   make(chan net.Conn, 16),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Run drives the coordinating goroutine until Stop is called.
func (r *reactorLoop[T]) Run() {
	defer close(r.done)
	go r.acceptPump()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case nc := <-r.acceptCh:
			r.onAccept(nc)
		case <-r.wake:
			r.pumpAll()
		case <-ticker.C:
			r.pumpAll()
		}
	}
}

func (r *reactorLoop[T]) acceptPump() {
	for {
		nc, err := r.listener.Accept()
		if err != nil {
			return
		}
		select {
		case r.acceptCh <- nc:
		case <-r.stop:
			nc.Close()
			return
		}
	}
}

func (r *reactorLoop[T]) onAccept(nc net.Conn) {
	ip := getUint32IP(nc)
	if r.cfg.MaxConnsPerIP > 0 {
		if n := r.ipCounter.Register(ip); n > r.cfg.MaxConnsPerIP {
			r.ipCounter.Unregister(ip)
			nc.Close()
			return
		}
		nc = acquirePerIPConn(nc, ip, r.ipCounter)
	}

	key := r.ids.Next()
	bodyBuf := make([]byte, r.cfg.MaxBodyBytes)
	reader := NewRequestReader[T](r.cfg, r.factory, bodyBuf)
	conn := NewConnection[T](key, ip, reader)
	csr := newChanScatterReader()

	r.mu.Lock()
	r.conns[key] = &fallbackConn[T]{netConn: nc, conn: conn, reader: csr}
	r.mu.Unlock()

	go r.readPump(key, nc, csr)
}

// readPump is the one concession this fallback makes: an OS thread
// blocks in net.Conn.Read per connection, since there is no portable
// non-blocking read primitive to multiplex over here. It only ever
// copies bytes into a channel; it never touches reader or connection
// state, which stays the coordinating goroutine's alone.
func (r *reactorLoop[T]) readPump(key uint64, nc net.Conn, csr *chanScatterReader) {
	buf := make([]byte, 4096)
	for {
		n, err := nc.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case csr.ch <- chunk:
				r.WakeUp()
			case <-r.stop:
				return
			}
		}
		if err != nil {
			close(csr.ch)
			r.WakeUp()
			return
		}
	}
}

func (r *reactorLoop[T]) pumpAll() {
	r.mu.RLock()
	snapshot := make(map[uint64]*fallbackConn[T], len(r.conns))
	for k, v := range r.conns {
		snapshot[k] = v
	}
	r.mu.RUnlock()

	for key, fc := range snapshot {
		if !r.readOne(key, fc) {
			continue
		}
		r.writeOne(key, fc)
	}
}

func (r *reactorLoop[T]) readOne(key uint64, fc *fallbackConn[T]) bool {
	msg, hp, bp, err := fc.conn.Reader.Read(fc.reader)
	for {
		if err != nil {
			logReadError(r.logger, key, err)
			r.closeConn(key, fc)
			return false
		}
		if msg != nil {
			r.dispatcher.Dispatch(key, *msg)
			// Dispatch may have closed this connection itself, via
			// connectionRegistry.Close, if a synchronous handler raised.
			// fc is now stale; stop driving it.
			if !r.connOpen(key) {
				return false
			}
		}
		if len(hp) == 0 && len(bp) == 0 {
			return true
		}
		msg, hp, bp, err = fc.conn.Reader.ReadPreloaded(hp, bp)
	}
}

func (r *reactorLoop[T]) connOpen(key uint64) bool {
	r.mu.RLock()
	_, ok := r.conns[key]
	r.mu.RUnlock()
	return ok
}

func (r *reactorLoop[T]) writeOne(key uint64, fc *fallbackConn[T]) {
	if !fc.conn.Writer.Pending() {
		return
	}
	nw := netConnWriter{nc: fc.netConn}
	if _, err := fc.conn.Writer.Handle(nw); err != nil {
		r.closeConn(key, fc)
	}
}

func (r *reactorLoop[T]) closeConn(key uint64, fc *fallbackConn[T]) {
	r.mu.Lock()
	delete(r.conns, key)
	r.mu.Unlock()
	fc.conn.Close()
	fc.netConn.Close()
}

// Lookup implements connectionRegistry for the Dispatcher.
func (r *reactorLoop[T]) Lookup(key uint64) (*Connection[T], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fc, ok := r.conns[key]
	if !ok {
		return nil, false
	}
	return fc.conn, true
}

// Close implements connectionRegistry: it lets the Dispatcher close a
// connection whose synchronous handler raised, without waiting for the
// next pump tick to notice the connection is no longer wanted.
func (r *reactorLoop[T]) Close(key uint64) {
	r.mu.RLock()
	fc, ok := r.conns[key]
	r.mu.RUnlock()
	if !ok {
		return
	}
	r.closeConn(key, fc)
}

// WakeUp implements connectionRegistry.
func (r *reactorLoop[T]) WakeUp() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Stop signals the loop to exit, closes the listener, blocks until the
// loop has exited, then closes every connection still open.
func (r *reactorLoop[T]) Stop() {
	close(r.stop)
	r.listener.Close()
	r.WakeUp()
	<-r.done
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[uint64]*fallbackConn[T])
	r.mu.Unlock()
	for _, fc := range conns {
		fc.conn.Close()
		fc.netConn.Close()
	}
}

// chanScatterReader adapts a channel of already-read byte chunks (fed
// by a connection's readPump goroutine) to the ScatterReader interface
// RequestReader drives, so the same decode logic as the unix
// implementation applies unchanged.
type chanScatterReader struct {
	ch       chan []byte
	leftover []byte
	closed   bool
}

func newChanScatterReader() *chanScatterReader {
	return &chanScatterReader{ch: make(chan []byte, 64)}
}

func (c *chanScatterReader) ReadVector(bufs [][]byte) (int, error) {
	total := 0
	for _, dst := range bufs {
		for len(dst) > 0 {
			if len(c.leftover) == 0 {
				if c.closed {
					if total > 0 {
						return total, nil
					}
					return 0, io.EOF
				}
				select {
				case chunk, ok := <-c.ch:
					if !ok {
						c.closed = true
						if total > 0 {
							return total, nil
						}
						return 0, io.EOF
					}
					c.leftover = chunk
				default:
					return total, nil
				}
			}
			n := copy(dst, c.leftover)
			dst = dst[n:]
			c.leftover = c.leftover[n:]
			total += n
		}
	}
	return total, nil
}

// netConnWriter adapts a blocking net.Conn to NonBlockingWriter with a
// short write deadline standing in for a true non-blocking write,
// since net.Conn exposes no such primitive portably.
type netConnWriter struct{ nc net.Conn }

func (w netConnWriter) Write(p []byte) (int, error) {
	_ = w.nc.SetWriteDeadline(time.Now().Add(10 * time.Millisecond))
	n, err := w.nc.Write(p)
	_ = w.nc.SetWriteDeadline(time.Time{})
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return n, nil
		}
		return n, err
	}
	return n, nil
}
