// Package config provides configuration types for qconn connections.
package config

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"

	"github.com/wagiedev/qconn/internal/errors"
)

const (
	// DefaultHighWaterMark is the outbound buffer size above which writes
	// report backpressure.
	DefaultHighWaterMark = 16 * 1024 // 16KB
	// DefaultMaxFrameBytes bounds unterminated inbound bytes.
	DefaultMaxFrameBytes = 8 * 1024 * 1024 // 8MB
	// DefaultReadBufferSize is the size of a single read from the source.
	DefaultReadBufferSize = 32 * 1024 // 32KB
)

// DefaultDelimiter separates frames on the wire: three zero bytes.
var DefaultDelimiter = []byte{0, 0, 0}

// IDGenerator produces identifiers for new local entries.
type IDGenerator interface {
	Generate() string
}

// Options configures a connection.
type Options struct {
	// Logger is the slog logger for debug output.
	// If nil, logging is disabled (silent operation).
	Logger *slog.Logger

	// Delimiter separates frames on the wire. Both peers must agree on it,
	// and it must not occur inside a frame.
	Delimiter []byte

	// HighWaterMark is the advisory outbound buffer threshold in bytes.
	HighWaterMark int

	// MaxFrameBytes bounds unterminated inbound bytes. Exceeding it closes
	// the connection with ErrFrameTooLarge.
	MaxFrameBytes int

	// ReadBufferSize is the size of a single read from the source.
	ReadBufferSize int

	// MaxLocalEntries bounds the local entries table. Zero means unlimited.
	MaxLocalEntries int

	// IDGenerator produces identifiers for new local entries.
	// If nil, ULIDs are used.
	IDGenerator IDGenerator
}

// Defaults returns options with every field at its default, except the
// IDGenerator which is chosen by the protocol layer.
func Defaults() *Options {
	return &Options{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Delimiter:      bytes.Clone(DefaultDelimiter),
		HighWaterMark:  DefaultHighWaterMark,
		MaxFrameBytes:  DefaultMaxFrameBytes,
		ReadBufferSize: DefaultReadBufferSize,
	}
}

// Validate checks the options and returns a ConfigurationError describing
// the first problem found.
func (o *Options) Validate() error {
	switch {
	case o.Logger == nil:
		return &errors.ConfigurationError{Reason: "logger is required"}
	case len(o.Delimiter) == 0:
		return &errors.ConfigurationError{Reason: "delimiter must not be empty"}
	case o.HighWaterMark <= 0:
		return &errors.ConfigurationError{Reason: fmt.Sprintf("high water mark must be positive, got %d", o.HighWaterMark)}
	case o.MaxFrameBytes < 0:
		return &errors.ConfigurationError{Reason: fmt.Sprintf("max frame bytes must not be negative, got %d", o.MaxFrameBytes)}
	case o.ReadBufferSize <= 0:
		return &errors.ConfigurationError{Reason: fmt.Sprintf("read buffer size must be positive, got %d", o.ReadBufferSize)}
	case o.MaxLocalEntries < 0:
		return &errors.ConfigurationError{Reason: fmt.Sprintf("max local entries must not be negative, got %d", o.MaxLocalEntries)}
	}

	return nil
}
