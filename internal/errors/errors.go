package errors

import (
	"errors"
	"fmt"
)

// QConnError is the base interface for all typed qconn errors.
type QConnError interface {
	error
	IsQConnError() bool
}

// Compile-time verification that all error types implement QConnError.
var (
	_ QConnError = (*ConfigurationError)(nil)
	_ QConnError = (*ProtocolParseError)(nil)
	_ QConnError = (*EncodingError)(nil)
	_ QConnError = (*DecodeError)(nil)
	_ QConnError = (*RemoteError)(nil)
	_ QConnError = (*ProcessError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrConnectionClosed indicates the transport ended. Pending futures are
	// rejected with it when the connection closes without a more specific reason.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrFrameTooLarge indicates the peer sent more unterminated bytes than the
	// configured frame limit allows.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrTooManyEntries indicates the local reference table reached its limit.
	ErrTooManyEntries = errors.New("too many local entries")

	// ErrUnsupportedOperation indicates an operation that the target value
	// cannot perform, e.g. calling a method on a string.
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// ConfigurationError indicates an unsupported endpoint combination or invalid
// options at construction time.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", e.Reason)
}

// IsQConnError implements QConnError.
func (e *ConfigurationError) IsQConnError() bool { return true }

// ProtocolParseError indicates an inbound frame was not a valid JSON message.
// The raw frame is preserved for diagnostics.
type ProtocolParseError struct {
	Raw []byte
	Err error
}

func (e *ProtocolParseError) Error() string {
	return fmt.Sprintf("failed to parse frame: %v", e.Err)
}

func (e *ProtocolParseError) Unwrap() error {
	return e.Err
}

// IsQConnError implements QConnError.
func (e *ProtocolParseError) IsQConnError() bool { return true }

// EncodingError indicates a value could not be represented in QSON.
type EncodingError struct {
	Path string
	Err  error
}

func (e *EncodingError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to encode value: %v", e.Err)
	}

	return fmt.Sprintf("failed to encode value at %q: %v", e.Path, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// IsQConnError implements QConnError.
func (e *EncodingError) IsQConnError() bool { return true }

// DecodeError indicates a QSON node carried a tag this side does not know.
type DecodeError struct {
	Tag string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("unrecognized type: %s", e.Tag)
}

// IsQConnError implements QConnError.
func (e *DecodeError) IsQConnError() bool { return true }

// RemoteError carries a rejection reported by the peer.
//
// Message and Stack are filled when the reason was an error-like object;
// Reason always holds the decoded reason as received.
type RemoteError struct {
	Message string
	Stack   string
	Reason  any
}

// NewRemoteError builds a RemoteError from a decoded rejection reason.
func NewRemoteError(reason any) *RemoteError {
	e := &RemoteError{Reason: reason}

	switch r := reason.(type) {
	case nil:
		e.Message = "remote rejected without a reason"
	case string:
		e.Message = r
	case map[string]any:
		if msg, ok := r["message"].(string); ok {
			e.Message = msg
		} else {
			e.Message = fmt.Sprintf("%v", r)
		}

		if stack, ok := r["stack"].(string); ok {
			e.Stack = stack
		}
	case error:
		e.Message = r.Error()
	default:
		e.Message = fmt.Sprintf("%v", r)
	}

	return e
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error: %s", e.Message)
}

// IsQConnError implements QConnError.
func (e *RemoteError) IsQConnError() bool { return true }

// ProcessError indicates a peer process exited unsuccessfully.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("peer process failed (exit %d): %s", e.ExitCode, e.Stderr)
	}

	return fmt.Sprintf("peer process failed (exit %d): %v", e.ExitCode, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// IsQConnError implements QConnError.
func (e *ProcessError) IsQConnError() bool { return true }
