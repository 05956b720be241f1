package reactor

import "log"

// Logger is the logging seam used throughout the package, identical in
// shape to fasthttp.Logger: any *log.Logger satisfies it.
type Logger interface {
	// Printf must have the same semantics as log.Printf.
	Printf(format string, args ...any)
}

type defaultLogger struct{}

func (defaultLogger) Printf(format string, args ...any) { log.Printf(format, args...) }

// InvalidKeyHandler is invoked by the reactor loop when it is handed a
// selector key it does not recognize (e.g. previously closed). By the
// time this fires, the reactor's own lifecycle has already closed the
// connection; the hook exists purely so a caller can observe the race
// for metrics or logging, not to close anything itself. The default
// implementation does nothing.
type InvalidKeyHandler interface {
	Handle(key uint64)
}

type noopInvalidKeyHandler struct{}

func (noopInvalidKeyHandler) Handle(uint64) {}

// InvalidKeyHandlerFunc adapts a function to an InvalidKeyHandler.
type InvalidKeyHandlerFunc func(key uint64)

func (f InvalidKeyHandlerFunc) Handle(key uint64) { f(key) }
