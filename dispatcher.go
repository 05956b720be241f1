package reactor

import (
	"context"
	"sync"
)

// connectionRegistry is the slice of the reactor loop the dispatcher
// needs: looking a key back up to its Connection, waking the selector
// so a notification enqueued from outside the reactor goroutine gets
// flushed promptly instead of waiting for the next unrelated readiness
// event, and closing a connection whose handler raised.
type connectionRegistry[T any] interface {
	Lookup(key uint64) (*Connection[T], bool)
	WakeUp()
	Close(key uint64)
}

// Dispatcher routes a completed Message to whichever handler is
// registered, synchronous or asynchronous, and implements Notifier so
// both a synchronous handler's ConnectionContext and the async job
// reaper push responses through the same assembly-and-enqueue path.
// Grounded in fasthttp's RequestHandler dispatch inside serveConn,
// generalized from "exactly one handler, always synchronous" to the
// sync/async split design note 6 calls for.
type Dispatcher[T any] struct {
	mu      sync.RWMutex
	started bool
	sync    MessageHandler[T]
	async   AsyncMessageHandler[T]

	assembly *ResponseAssembly[T]
	reaper   *AsyncJobReaper[T]
	registry connectionRegistry[T]
	logger   Logger
}

// NewDispatcher returns a Dispatcher that assembles responses with
// assembly and routes against registry.
func NewDispatcher[T any](assembly *ResponseAssembly[T], registry connectionRegistry[T], logger Logger) *Dispatcher[T] {
	return &Dispatcher[T]{assembly: assembly, registry: registry, logger: logger}
}

// SetReaper wires the async job reaper this dispatcher hands jobs to.
// Called once during server construction, before Start.
func (d *Dispatcher[T]) SetReaper(r *AsyncJobReaper[T]) { d.reaper = r }

// SetSyncHandler installs h as the synchronous handler, clearing any
// asynchronous handler previously registered: the two are mutually
// exclusive, and the most recently registered one wins. It fails with
// ErrServerStarted once the server has started, since swapping
// handlers out from under a running reactor would race the dispatch
// path with no synchronization story worth building.
func (d *Dispatcher[T]) SetSyncHandler(h MessageHandler[T]) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return ErrServerStarted
	}
	d.sync = h
	d.async = nil
	return nil
}

// SetAsyncHandler installs h as the asynchronous handler, clearing any
// synchronous handler previously registered. See SetSyncHandler.
func (d *Dispatcher[T]) SetAsyncHandler(h AsyncMessageHandler[T]) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return ErrServerStarted
	}
	d.async = h
	d.sync = nil
	return nil
}

// MarkStarted freezes handler registration. Called once by Server.Start.
func (d *Dispatcher[T]) MarkStarted() {
	d.mu.Lock()
	d.started = true
	d.mu.Unlock()
}

// Dispatch routes one completed message, running entirely on the
// reactor goroutine. A synchronous handler's response is assembled and
// enqueued immediately; an asynchronous handler's result is handed to
// the job reaper to poll.
func (d *Dispatcher[T]) Dispatch(key uint64, msg Message[T]) {
	d.mu.RLock()
	sync := d.sync
	async := d.async
	d.mu.RUnlock()

	switch {
	case sync != nil:
		ctx := &ConnectionContext[T]{Key: key, Notifier: d}
		payload, err := sync.Handle(ctx, msg.Value)
		if err != nil {
			herr := &HandlerException{Err: err}
			d.logger.Printf("reactor: handler failed for connection %d: %v", key, herr)
			d.registry.Close(key)
			return
		}
		if payload == nil {
			return
		}
		if err := d.deliver(key, msg, payload); err != nil {
			d.logger.Printf("reactor: response assembly failed for connection %d: %v", key, err)
		}
	case async != nil:
		result := async.Handle(context.Background(), msg.Value)
		d.reaper.Submit(key, msg, result)
	default:
		d.logger.Printf("reactor: dropping message for connection %d: no handler registered", key)
	}
}

// Notify implements Notifier for both ConnectionContext.Notify and the
// async job reaper's delivery path: it assembles payload and enqueues
// it on key's writer queue, silently dropping it if the connection is
// already gone.
func (d *Dispatcher[T]) Notify(key uint64, original Message[T], payload []byte) error {
	return d.deliver(key, original, payload)
}

func (d *Dispatcher[T]) deliver(key uint64, original Message[T], payload []byte) error {
	buf, err := d.assembly.Assemble(original.Value, payload)
	if err != nil {
		return err
	}
	conn, ok := d.registry.Lookup(key)
	if !ok {
		ReleaseByteBuffer(buf)
		return nil
	}
	conn.Writer.Enqueue(buf)
	d.registry.WakeUp()
	return nil
}
