package qconn

import "github.com/wagiedev/qconn/internal/errors"

// Re-export error types from internal package

// ConfigurationError indicates an unsupported endpoint combination or
// invalid options.
type ConfigurationError = errors.ConfigurationError

// ProtocolParseError indicates an inbound frame was not a valid message.
type ProtocolParseError = errors.ProtocolParseError

// EncodingError indicates a value could not be represented in QSON.
type EncodingError = errors.EncodingError

// DecodeError indicates a QSON node carried an unknown tag.
type DecodeError = errors.DecodeError

// RemoteError carries a rejection reported by the peer.
type RemoteError = errors.RemoteError

// ProcessError indicates a peer process exited unsuccessfully.
type ProcessError = errors.ProcessError

// QConnError is the base interface for all typed qconn errors.
type QConnError = errors.QConnError

// Re-export sentinel errors from internal package.
var (
	// ErrConnectionClosed indicates the transport ended.
	ErrConnectionClosed = errors.ErrConnectionClosed

	// ErrFrameTooLarge indicates the peer exceeded the frame size limit.
	ErrFrameTooLarge = errors.ErrFrameTooLarge

	// ErrTooManyEntries indicates the local reference table is full.
	ErrTooManyEntries = errors.ErrTooManyEntries

	// ErrUnsupportedOperation indicates the target value cannot perform an
	// operation.
	ErrUnsupportedOperation = errors.ErrUnsupportedOperation
)
