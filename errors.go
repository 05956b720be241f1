package reactor

import (
	"errors"
	"fmt"
)

// Sentinel errors for the framing and dispatch failure kinds named in
// the error handling design: EndOfStream, IOFailure, MalformedFrame,
// CodecError and Fatal. AsyncTimeout is not an error: it is a normal,
// silently-retried control-flow outcome inside AsyncJobReaper.
var (
	// ErrEndOfStream means the peer closed the connection, or the
	// underlying read returned io.EOF, whether or not a frame was
	// partly read. The connection is closed silently.
	ErrEndOfStream = errors.New("reactor: end of stream")

	// ErrMalformedFrame means a header declared a body size greater
	// than the configured maximum. The connection is closed and the
	// event is logged at warn level.
	ErrMalformedFrame = errors.New("reactor: malformed frame")

	// ErrIOFailure wraps an unexpected socket error encountered while
	// reading or writing a connection.
	ErrIOFailure = errors.New("reactor: io failure")

	// ErrInvalidArgument reports invalid configuration: NewServer
	// returns it, wrapped in a *FatalError, when the configured
	// HeaderSize differs from the MessageFactory's HeaderSize.
	ErrInvalidArgument = errors.New("reactor: invalid argument")

	// ErrServerStarted is returned by configuration methods called
	// after Start: the source's "last-writer-wins at configuration
	// time" rule is enforced by refusing configuration changes once
	// the reactor is running (see DESIGN.md Open Question resolution).
	ErrServerStarted = errors.New("reactor: server already started")

	// ErrAsyncFailure wraps the error of a PendingResult that resolved
	// with something other than a bounded-wait timeout. AsyncJobReaper
	// logs it and drops that one job; the reaper keeps running and
	// serves the rest of its queue.
	ErrAsyncFailure = errors.New("reactor: async handler failed")
)

// CodecError reports that a MessageFactory rejected a frame's body
// bytes. It wraps the codec's own error so callers can unwrap it.
type CodecError struct {
	Err error
}

func (e *CodecError) Error() string { return fmt.Sprintf("reactor: codec error: %v", e.Err) }
func (e *CodecError) Unwrap() error { return e.Err }

// HandlerException wraps an error returned by a synchronous
// MessageHandler (or by a ResponseRefiner, see ResponseAssembly). For a
// handler error the Dispatcher logs it and closes the offending
// connection but keeps the server itself alive. A handler panic is not
// recovered.
type HandlerException struct {
	Err error
}

func (e *HandlerException) Error() string {
	return fmt.Sprintf("reactor: handler failure: %v", e.Err)
}
func (e *HandlerException) Unwrap() error { return e.Err }

// FatalError reports a failure that stops a Server from being built or
// started: a header-size mismatch in NewServer, or a listener or
// wakeup-pipe setup failure in Start, which then aborts. The reactor
// loop itself never produces one; a failed poll is logged and the loop
// carries on.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("reactor: fatal: %s: %v", e.Op, e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

// logReadError reports a RequestReader.Read/ReadPreloaded failure at
// the level its kind calls for: EndOfStream closes the connection
// silently, everything else (a malformed frame, a codec rejection, an
// I/O failure) is logged at warn before the connection is closed.
func logReadError(logger Logger, key uint64, err error) {
	var codec *CodecError
	switch {
	case errors.Is(err, ErrEndOfStream):
	case errors.Is(err, ErrMalformedFrame):
		logger.Printf("reactor: malformed frame on connection %d: %v", key, err)
	case errors.As(err, &codec):
		logger.Printf("reactor: codec error on connection %d: %v", key, err)
	case errors.Is(err, ErrIOFailure):
		logger.Printf("reactor: io failure on connection %d: %v", key, err)
	default:
		logger.Printf("reactor: read failed on connection %d: %v", key, err)
	}
}
