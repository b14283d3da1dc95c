package qconn

import (
	"bytes"
	"log/slog"

	"github.com/wagiedev/qconn/internal/config"
)

// Options holds the settings of a connection. Use the With* functions to
// change them; unset fields keep their defaults.
type Options = config.Options

// Option configures Options using the functional options pattern.
type Option func(*Options)

// applyOptions applies functional options on top of the defaults.
func applyOptions(opts []Option) *Options {
	options := config.Defaults()
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithDelimiter sets the byte sequence that separates frames on the wire.
// Both peers must use the same delimiter. The default is three zero bytes.
func WithDelimiter(delimiter []byte) Option {
	return func(o *Options) {
		o.Delimiter = bytes.Clone(delimiter)
	}
}

// WithHighWaterMark sets the outbound buffer size, in bytes, above which
// writes report backpressure.
func WithHighWaterMark(n int) Option {
	return func(o *Options) {
		o.HighWaterMark = n
	}
}

// WithMaxFrameBytes bounds how many unterminated bytes the peer may send.
// Exceeding the limit closes the connection. Zero disables the limit.
func WithMaxFrameBytes(n int) Option {
	return func(o *Options) {
		o.MaxFrameBytes = n
	}
}

// WithReadBufferSize sets the size of a single read from the source.
func WithReadBufferSize(n int) Option {
	return func(o *Options) {
		o.ReadBufferSize = n
	}
}

// WithMaxLocalEntries bounds the number of outstanding requests and exported
// values. Requests issued while the table is full are rejected with
// ErrTooManyEntries. Zero means unlimited.
func WithMaxLocalEntries(n int) Option {
	return func(o *Options) {
		o.MaxLocalEntries = n
	}
}

// WithIDGenerator sets the generator for local entry identifiers.
// The default produces ULIDs.
func WithIDGenerator(ids IDGenerator) Option {
	return func(o *Options) {
		o.IDGenerator = ids
	}
}
