package qconn

import (
	"github.com/wagiedev/qconn/internal/promise"
	"github.com/wagiedev/qconn/internal/protocol"
	"github.com/wagiedev/qconn/internal/qson"
)

// Future is an eventual value with progress notifications. Futures returned
// by remote operations accept further operations before they settle.
type Future = promise.Future

// Observer receives the outcome and progress of a Future.
type Observer = promise.Observer

// State is the settlement state of a Future.
type State = promise.State

// Future states.
const (
	StatePending   = promise.StatePending
	StateFulfilled = promise.StateFulfilled
	StateRejected  = promise.StateRejected
)

// Proxy stands in for a value living on the peer.
type Proxy = protocol.Proxy

// Invoker is implemented by anything that can receive a forwarded operation:
// proxies and futures.
type Invoker = promise.Invoker

// Func is a local function callable by the peer.
type Func = promise.Func

// Object lets a local value implement operations itself instead of relying
// on the generic map and slice handling.
type Object = promise.Object

// Operation names carried in send messages.
const (
	OpGet    = promise.OpGet
	OpSet    = promise.OpSet
	OpDelete = promise.OpDelete
	OpPost   = promise.OpPost
	OpApply  = promise.OpApply
	OpKeys   = promise.OpKeys
)

// IDGenerator produces identifiers for local entries.
type IDGenerator = protocol.IDGenerator

// ULIDGenerator generates ULID identifiers. This is the default.
type ULIDGenerator = protocol.ULIDGenerator

// UUIDGenerator generates random UUID identifiers.
type UUIDGenerator = protocol.UUIDGenerator

// FixedGenerator yields a predictable identifier sequence.
type FixedGenerator = protocol.FixedGenerator

// RegExp is a regular expression carried in portable source/flags form.
type RegExp = qson.RegExp

// Marshaler lets a value substitute another value for itself when encoded.
type Marshaler = qson.Marshaler

// Undefined represents an absent value, distinct from nil.
var Undefined = qson.Undefined

// NewFuture returns a pending future.
func NewFuture() *Future {
	return promise.New()
}

// Resolved returns a future fulfilled with v.
func Resolved(v any) *Future {
	return promise.Resolved(v)
}

// Rejected returns a future rejected with err.
func Rejected(err error) *Future {
	return promise.Rejected(err)
}

// NewFixedGenerator creates a generator producing prefix1, prefix2, ...
func NewFixedGenerator(prefix string) *FixedGenerator {
	return protocol.NewFixedGenerator(prefix)
}
