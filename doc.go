/*
Package reactor implements a non-blocking, single-reactor network server
that accepts length-prefixed binary messages over stream sockets, decodes
them into application-level message values, dispatches them to
user-supplied handlers (synchronous or asynchronous), and writes
length-prefixed responses back to clients.

Wire format: a fixed-size big-endian header (4 bytes by default) holding
an unsigned body length, followed by exactly that many body bytes:

	BE_U32(body_len) || body_bytes(body_len)

Architecture:

  - One reactor goroutine owns the listening socket, every connection's
    reader/writer state, and the selector that multiplexes readiness
    across them (ReactorLoop).
  - A RequestReader stitches a complete frame out of arbitrary TCP
    segment boundaries using a vectored (scatter) read into a header
    buffer and a body buffer in a single syscall where possible.
  - A Writer drains a per-connection queue of framed responses
    non-blockingly, never reordering and never blocking the reactor.
  - A Dispatcher routes completed messages to a synchronous handler
    (runs on the reactor goroutine) or an asynchronous handler (runs
    off-thread; its result is polled by a dedicated AsyncJobReaper
    goroutine with a bounded wait per job, so one slow job never
    starves a fast one).
  - ResponseAssembly applies an ordered chain of ResponseRefiners to a
    handler's output before framing it for the wire.

The package plugs in at three points: a MessageFactory decodes bytes
into an application value, a MessageHandler or AsyncMessageHandler
produces a response, and zero or more ResponseRefiners post-process
that response. Everything else — framing, scatter reads, non-blocking
writes, connection bookkeeping, async polling — is this package's job.
*/
package reactor
