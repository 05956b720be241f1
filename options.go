package reactor

import (
	"encoding/binary"
	"time"
)

// Config collects the tunables of a Server. Zero value is not usable
// directly; build one with NewConfig, which applies defaultOptions the
// same way hayabusa-cloud-framer's newFramer applies its defaultOptions.
type Config struct {
	// HeaderSize is the fixed length, in bytes, of the length prefix.
	// Default 4.
	HeaderSize int

	// MaxBodyBytes caps the declared body length a HeaderReader will
	// accept. A header declaring a larger value fails with
	// ErrMalformedFrame. Default 4 MiB.
	MaxBodyBytes uint32

	// ByteOrder decodes/encodes the length prefix. Default
	// binary.BigEndian (network byte order), per spec §6.
	ByteOrder binary.ByteOrder

	// ListenAddr is the address ReactorLoop listens on. Default
	// ":12509".
	ListenAddr string

	// ReusePort enables SO_REUSEPORT on the listening socket via
	// tcplisten.Config.
	ReusePort bool

	// MaxConnsPerIP caps concurrent connections from a single source
	// IP. Zero disables the limit.
	MaxConnsPerIP int

	// AsyncPollTimeout bounds how long AsyncJobReaper waits on a
	// single pending result before re-queuing the job. Default 500ms,
	// matching spec §4.7.
	AsyncPollTimeout time.Duration

	// Logger receives warn/error level events. Defaults to a Logger
	// backed by the standard library log package.
	Logger Logger

	// InvalidKeyHandler is invoked by the unix reactor loop when poll
	// reports readiness for a connection key it no longer has an open
	// connection for. The connection has already been closed by the
	// reactor by then; this hook exists purely for observability. A
	// notification for a missing key (e.g. a slow async reply landing
	// after the client disconnected) is dropped by the Dispatcher and
	// does not reach this hook. Defaults to a no-op.
	InvalidKeyHandler InvalidKeyHandler
}

var defaultConfig = Config{
	HeaderSize:       4,
	MaxBodyBytes:     4 << 20,
	ByteOrder:        binary.BigEndian,
	ListenAddr:       ":12509",
	AsyncPollTimeout: 500 * time.Millisecond,
}

// Option mutates a Config. Functional-options idiom, same shape as
// hayabusa-cloud-framer's Option.
type Option func(*Config)

// NewConfig builds a Config from defaults plus the given options.
func NewConfig(opts ...Option) *Config {
	c := defaultConfig
	for _, fn := range opts {
		fn(&c)
	}
	if c.Logger == nil {
		c.Logger = defaultLogger{}
	}
	if c.InvalidKeyHandler == nil {
		c.InvalidKeyHandler = noopInvalidKeyHandler{}
	}
	return &c
}

// WithHeaderSize sets the length-prefix size in bytes.
func WithHeaderSize(n int) Option { return func(c *Config) { c.HeaderSize = n } }

// WithMaxBodyBytes sets the maximum accepted declared body size.
func WithMaxBodyBytes(n uint32) Option { return func(c *Config) { c.MaxBodyBytes = n } }

// WithByteOrder sets the header's byte order. Default is BigEndian
// (network byte order) per spec §6.
func WithByteOrder(order binary.ByteOrder) Option {
	return func(c *Config) { c.ByteOrder = order }
}

// WithListenAddr sets the listen address, e.g. ":12509" or "0.0.0.0:12509".
func WithListenAddr(addr string) Option { return func(c *Config) { c.ListenAddr = addr } }

// WithReusePort enables SO_REUSEPORT on the listening socket.
func WithReusePort() Option { return func(c *Config) { c.ReusePort = true } }

// WithMaxConnsPerIP caps concurrent connections accepted from one IP.
func WithMaxConnsPerIP(n int) Option { return func(c *Config) { c.MaxConnsPerIP = n } }

// WithAsyncPollTimeout overrides the reaper's per-job bounded wait.
func WithAsyncPollTimeout(d time.Duration) Option {
	return func(c *Config) { c.AsyncPollTimeout = d }
}

// WithLogger overrides the default logger.
func WithLogger(l Logger) Option { return func(c *Config) { c.Logger = l } }

// WithInvalidKeyHandler overrides the default invalid-key behavior
// (a no-op).
func WithInvalidKeyHandler(h InvalidKeyHandler) Option {
	return func(c *Config) { c.InvalidKeyHandler = h }
}
