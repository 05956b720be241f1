//go:build unix

package reactor

import (
	"errors"
	"io"
	"net"
	"sync"
	"syscall"

	"github.com/valyala/tcplisten"
	"golang.org/x/sys/unix"
)

// reactorLoop is the unix selector implementation: one goroutine owns
// a poll(2) set covering the listening socket, a self-pipe used to
// wake the loop from other goroutines, and every open connection's
// raw file descriptor. Grounded in fasthttp's Server accept/serve
// split, generalized from fasthttp's per-connection worker-pool
// goroutines to design note 2's single reactor thread, using
// golang.org/x/sys/unix the way hayabusa-cloud-framer reaches for the
// same package to get at raw sockets.
//
// Connections are accepted through the standard net.Listener (so Go's
// runtime still handles the accept(2) non-blocking dance), but once
// accepted their fd is read once via SyscallConn and every subsequent
// read or write goes straight through unix.Readv/unix.Write on that
// fd. The connection's net.Conn is kept only to Close it later; its
// own Read/Write methods are never called again, so it never competes
// with this loop's poll(2) calls over the same fd.
type reactorLoop[T any] struct {
	cfg        *Config
	factory    MessageFactory[T]
	dispatcher *Dispatcher[T]
	logger     Logger
	ipCounter  *perIPConnCounter

	listener   net.Listener
	listenerFD int

	wakeR, wakeW int

	ids   connectionIDAllocator
	mu    sync.RWMutex
	conns map[uint64]*connRecord[T]

	stop chan struct{}
	done chan struct{}
}

type connRecord[T any] struct {
	fd      int
	netConn net.Conn
	conn    *Connection[T]
}

func newReactorLoop[T any](cfg *Config, factory MessageFactory[T], dispatcher *Dispatcher[T]) (*reactorLoop[T], error) {
	lc := tcplisten.Config{ReusePort: cfg.ReusePort}
	ln, err := lc.NewListener("tcp4", cfg.ListenAddr)
	if err != nil {
		return nil, &FatalError{Op: "listen", Err: err}
	}
	lfd, err := rawFD(ln)
	if err != nil {
		ln.Close()
		return nil, &FatalError{Op: "listen", Err: err}
	}

	var pipeFDs [2]int
	if err := unix.Pipe2(pipeFDs[:], unix.O_NONBLOCK); err != nil {
		ln.Close()
		return nil, &FatalError{Op: "wakeup pipe", Err: err}
	}

	return &reactorLoop[T]{
		cfg:        cfg,
		factory:    factory,
		dispatcher: dispatcher,
		logger:     cfg.Logger,
		ipCounter:  &perIPConnCounter{},
		listener:   ln,
		listenerFD: lfd,
		wakeR:      pipeFDs[0],
		wakeW:      pipeFDs[1],
		conns:      make(map[uint64]*connRecord[T]),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// rawFD extracts the numeric file descriptor behind v without duping
// or otherwise disturbing it.
func rawFD(v any) (int, error) {
	sc, ok := v.(syscall.Conn)
	if !ok {
		return 0, errors.New("reactor: connection does not expose a raw file descriptor")
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	if cerr := rc.Control(func(f uintptr) { fd = int(f) }); cerr != nil {
		return 0, cerr
	}
	return fd, nil
}

// Run drives the selector loop until Stop is called.
func (r *reactorLoop[T]) Run() {
	defer close(r.done)

	pollFDs := make([]unix.PollFd, 0, 64)
	keys := make([]uint64, 0, 64)

	for {
		select {
		case <-r.stop:
			return
		default:
		}

		pollFDs = pollFDs[:0]
		keys = keys[:0]
		pollFDs = append(pollFDs, unix.PollFd{Fd: int32(r.listenerFD), Events: unix.POLLIN})
		keys = append(keys, 0)
		pollFDs = append(pollFDs, unix.PollFd{Fd: int32(r.wakeR), Events: unix.POLLIN})
		keys = append(keys, 0)

		r.mu.RLock()
		for key, rec := range r.conns {
			events := int16(unix.POLLIN)
			if rec.conn.Writer.Pending() {
				events |= unix.POLLOUT
			}
			pollFDs = append(pollFDs, unix.PollFd{Fd: int32(rec.fd), Events: events})
			keys = append(keys, key)
		}
		r.mu.RUnlock()

		n, err := unix.Poll(pollFDs, 1000)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			r.logger.Printf("reactor: poll failed: %v", err)
			continue
		}
		if n == 0 {
			continue
		}

		for i, pfd := range pollFDs {
			if pfd.Revents == 0 {
				continue
			}
			switch i {
			case 0:
				r.acceptOne()
			case 1:
				r.drainWake()
			default:
				r.handleConn(keys[i], pfd.Revents)
			}
		}
	}
}

// acceptOne accepts the connection poll(2) just reported as pending.
// net.Listener.Accept parks the caller rather than returning EAGAIN
// once the backlog is empty, so exactly one connection is accepted per
// readiness event; any further pending connection keeps the listener
// readable for the next poll.
func (r *reactorLoop[T]) acceptOne() {
	nc, err := r.listener.Accept()
	if err != nil {
		r.logger.Printf("reactor: accept failed: %v", err)
		return
	}
	r.onAccept(nc)
}

func (r *reactorLoop[T]) onAccept(nc net.Conn) {
	// Extract the fd before any perIPConn wrapping: the wrapper does not
	// expose syscall.Conn.
	fd, err := rawFD(nc)
	if err != nil {
		r.logger.Printf("reactor: accepted connection has no raw fd: %v", err)
		nc.Close()
		return
	}

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

	r.mu.Lock()
	r.conns[key] = &connRecord[T]{fd: fd, netConn: nc, conn: conn}
	r.mu.Unlock()
}

func (r *reactorLoop[T]) handleConn(key uint64, revents int16) {
	r.mu.RLock()
	rec, ok := r.conns[key]
	r.mu.RUnlock()
	if !ok {
		if r.cfg.InvalidKeyHandler != nil {
			r.cfg.InvalidKeyHandler.Handle(key)
		}
		return
	}

	if revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		r.closeConn(key, rec)
		return
	}
	if revents&unix.POLLIN != 0 {
		if !r.readConn(key, rec) {
			return
		}
	}
	if revents&unix.POLLOUT != 0 {
		r.writeConn(key, rec)
	}
}

func (r *reactorLoop[T]) readConn(key uint64, rec *connRecord[T]) bool {
	sr := fdScatterReader{fd: rec.fd}
	msg, hp, bp, err := rec.conn.Reader.Read(sr)
	for {
		if err != nil {
			logReadError(r.logger, key, err)
			r.closeConn(key, rec)
			return false
		}
		if msg != nil {
			r.dispatcher.Dispatch(key, *msg)
			// Dispatch may have closed this connection itself, via
			// connectionRegistry.Close, if a synchronous handler raised.
			// rec is now stale; stop driving it rather than resubmit
			// carry-over bytes or let the caller write to a dead fd.
			if !r.connOpen(key) {
				return false
			}
		}
		if len(hp) == 0 && len(bp) == 0 {
			return true
		}
		msg, hp, bp, err = rec.conn.Reader.ReadPreloaded(hp, bp)
	}
}

func (r *reactorLoop[T]) connOpen(key uint64) bool {
	r.mu.RLock()
	_, ok := r.conns[key]
	r.mu.RUnlock()
	return ok
}

func (r *reactorLoop[T]) writeConn(key uint64, rec *connRecord[T]) {
	nw := fdWriter{fd: rec.fd}
	if _, err := rec.conn.Writer.Handle(nw); err != nil {
		r.closeConn(key, rec)
	}
}

func (r *reactorLoop[T]) closeConn(key uint64, rec *connRecord[T]) {
	r.mu.Lock()
	delete(r.conns, key)
	r.mu.Unlock()
	rec.conn.Close()
	rec.netConn.Close()
}

// Lookup implements connectionRegistry for the Dispatcher.
func (r *reactorLoop[T]) Lookup(key uint64) (*Connection[T], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.conns[key]
	if !ok {
		return nil, false
	}
	return rec.conn, true
}

// Close implements connectionRegistry: it lets the Dispatcher close a
// connection whose synchronous handler raised, without waiting for the
// next readiness event to notice the connection is no longer wanted.
func (r *reactorLoop[T]) Close(key uint64) {
	r.mu.RLock()
	rec, ok := r.conns[key]
	r.mu.RUnlock()
	if !ok {
		return
	}
	r.closeConn(key, rec)
}

// WakeUp implements connectionRegistry: it unblocks a poll(2) call in
// progress so an out-of-band enqueue (async delivery, a handler's
// notification) gets flushed without waiting for the next unrelated
// readiness event.
func (r *reactorLoop[T]) WakeUp() {
	var b [1]byte
	_, _ = unix.Write(r.wakeW, b[:])
}

func (r *reactorLoop[T]) drainWake() {
	var buf [64]byte
	for {
		n, err := unix.Read(r.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// Stop signals the loop to exit, blocks until it has, then closes the
// listener and every connection still open.
func (r *reactorLoop[T]) Stop() {
	close(r.stop)
	r.WakeUp()
	<-r.done
	r.listener.Close()
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[uint64]*connRecord[T])
	r.mu.Unlock()
	for _, rec := range conns {
		rec.conn.Close()
		rec.netConn.Close()
	}
}

type fdScatterReader struct{ fd int }

func (f fdScatterReader) ReadVector(bufs [][]byte) (int, error) {
	n, err := unix.Readv(f.fd, bufs)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return 0, nil
		}
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

type fdWriter struct{ fd int }

func (f fdWriter) Write(p []byte) (int, error) {
	n, err := unix.Write(f.fd, p)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}
