package reactor

import "context"

// MessageHandler handles a decoded message synchronously, on the
// reactor goroutine. It must not block: any blocking work belongs in
// an AsyncMessageHandler instead. A nil returned buffer means "no
// response for this message" (e.g. one-way notifications).
type MessageHandler[T any] interface {
	Handle(ctx *ConnectionContext[T], value T) ([]byte, error)
}

// MessageHandlerFunc adapts a function to a MessageHandler.
type MessageHandlerFunc[T any] func(ctx *ConnectionContext[T], value T) ([]byte, error)

func (f MessageHandlerFunc[T]) Handle(ctx *ConnectionContext[T], value T) ([]byte, error) {
	return f(ctx, value)
}

// AsyncMessageHandler handles a decoded message off the reactor
// goroutine. It returns a PendingResult the AsyncJobReaper polls with
// a bounded wait; the result delivers an optional response buffer.
type AsyncMessageHandler[T any] interface {
	Handle(ctx context.Context, value T) PendingResult
}

// AsyncMessageHandlerFunc adapts a function to an AsyncMessageHandler.
type AsyncMessageHandlerFunc[T any] func(ctx context.Context, value T) PendingResult

func (f AsyncMessageHandlerFunc[T]) Handle(ctx context.Context, value T) PendingResult {
	return f(ctx, value)
}

// PendingResult is a one-shot handle to an asynchronous handler's
// eventual result, modeled as an opaque "poll with timeout" handle per
// the source's design notes: the reaper's only requirement is "wait up
// to the bound, then tell me done/timeout/error".
type PendingResult interface {
	// Wait blocks until the result is available or the context
	// expires, whichever comes first. A context deadline exceeded
	// error must be returned verbatim so the reaper can distinguish a
	// bounded-wait timeout (retry) from a genuine handler failure
	// (terminal).
	Wait(ctx context.Context) (payload []byte, err error)
}

// ResponseRefiner synchronously transforms a handler's response buffer
// before it is framed for the wire. Refiners run in registration order
// and must not block.
type ResponseRefiner[T any] interface {
	Execute(value T, buf []byte) ([]byte, error)
}

// ResponseRefinerFunc adapts a function to a ResponseRefiner.
type ResponseRefinerFunc[T any] func(value T, buf []byte) ([]byte, error)

func (f ResponseRefinerFunc[T]) Execute(value T, buf []byte) ([]byte, error) { return f(value, buf) }

// Notifier lets a long-lived handler push an unsolicited response on a
// connection it does not currently own the reactor goroutine on. It is
// the explicit capability object design note 9 calls for: a
// ConnectionContext holds one instead of a back-reference to the whole
// server, so handlers cannot reach into reactor-owned state directly.
type Notifier[T any] interface {
	// Notify applies ResponseAssembly to payload and enqueues it on
	// key's writer queue, toggling write interest and posting a
	// selector wakeup. If key is no longer valid the notification is
	// silently dropped.
	Notify(key uint64, original Message[T], payload []byte) error
}

// ConnectionContext is handed to a synchronous MessageHandler. It
// carries the connection's selector key and a Notifier capability so
// handlers can issue unsolicited notifications on their originating
// key without holding a reference to the reactor or dispatcher
// themselves.
type ConnectionContext[T any] struct {
	Key      uint64
	Notifier Notifier[T]
}

// Notify is a convenience wrapper around ctx.Notifier.Notify.
func (c *ConnectionContext[T]) Notify(original Message[T], payload []byte) error {
	return c.Notifier.Notify(c.Key, original, payload)
}
