// Package errors defines error types for qconn.
//
// This package provides structured error types for the failure scenarios of a
// promise-forwarding connection: bad configuration, unparseable frames,
// values that cannot be encoded, and rejections reported by the peer. All
// error types support error unwrapping and can be checked using errors.Is and
// errors.As.
package errors
