package reactor

import "time"

// Server wires a MessageFactory, a ResponseRefiner chain, and a
// handler into a running reactor loop. It is the package's top-level
// entry point, generalized from fasthttp's Server: that type owns a
// listener plus a worker pool of per-connection goroutines behind one
// RequestHandler; this one owns a listener plus a single reactor
// goroutine behind a Dispatcher that may run synchronously or
// asynchronously.
type Server[T any] struct {
	cfg        *Config
	factory    MessageFactory[T]
	dispatcher *Dispatcher[T]
	assembly   *ResponseAssembly[T]
	reaper     *AsyncJobReaper[T]
	loop       *reactorLoop[T]

	started bool
}

// NewServer returns a Server decoding frames with factory, with no
// response refiners (see UseRefiners). It validates that cfg's
// configured header width matches what factory expects.
func NewServer[T any](factory MessageFactory[T], opts ...Option) (*Server[T], error) {
	cfg := NewConfig(opts...)
	if factory.HeaderSize() != cfg.HeaderSize {
		return nil, &FatalError{
			Op:  "new server",
			Err: ErrInvalidArgument,
		}
	}

	framer := NewSizeHeaderWriter(cfg)
	assembly := NewResponseAssembly[T](framer)
	s := &Server[T]{cfg: cfg, factory: factory, assembly: assembly}
	s.dispatcher = NewDispatcher[T](assembly, nil, cfg.Logger)
	s.reaper = NewAsyncJobReaper[T](s.dispatcher, cfg.Logger, cfg.AsyncPollTimeout)
	s.dispatcher.SetReaper(s.reaper)
	return s, nil
}

// UseRefiners replaces the ResponseRefiner chain applied to every
// outgoing payload, in order. Must be called before Start.
func (s *Server[T]) UseRefiners(refiners ...ResponseRefiner[T]) error {
	if s.started {
		return ErrServerStarted
	}
	s.assembly.refiners = refiners
	return nil
}

// Handle registers a synchronous handler, clearing any asynchronous
// handler previously registered.
func (s *Server[T]) Handle(h MessageHandler[T]) error {
	return s.dispatcher.SetSyncHandler(h)
}

// HandleAsync registers an asynchronous handler, clearing any
// synchronous handler previously registered.
func (s *Server[T]) HandleAsync(h AsyncMessageHandler[T]) error {
	return s.dispatcher.SetAsyncHandler(h)
}

// Start binds the listener, launches the async job reaper, and starts
// the reactor goroutine. It returns once the listener is bound; the
// reactor itself keeps running on its own goroutine until Shutdown.
func (s *Server[T]) Start() error {
	if s.started {
		return ErrServerStarted
	}
	loop, err := newReactorLoop[T](s.cfg, s.factory, s.dispatcher)
	if err != nil {
		return err
	}
	s.loop = loop
	s.dispatcher.registry = loop
	s.dispatcher.MarkStarted()
	s.started = true

	s.reaper.Start()
	go s.loop.Run()
	return nil
}

// Shutdown stops the reactor loop and the async job reaper, and waits
// for the reactor goroutine to exit. It does not wait for in-flight
// async jobs to finish.
func (s *Server[T]) Shutdown() error {
	if !s.started {
		return nil
	}
	s.loop.Stop()
	s.reaper.Stop()
	return nil
}

// defaultShutdownGrace is how long Shutdown's callers typically allow
// in-flight work to settle before forcing a close, documented here
// since Server itself applies no grace period on its own.
const defaultShutdownGrace = 2 * time.Second
