package protocol

import (
	"context"

	"github.com/wagiedev/qconn/internal/promise"
)

// Proxy is the local stand-in for a value living on the peer. Operations
// invoked on it are forwarded over the connection.
type Proxy struct {
	conn *Connection
	id   string
	kind string
}

// Compile-time verification that Proxy implements promise.Invoker.
var _ promise.Invoker = (*Proxy)(nil)

// ID returns the peer-side identifier; "" is the peer's root.
func (p *Proxy) ID() string {
	return p.id
}

// Kind returns "object" or "function", as declared by the peer.
func (p *Proxy) Kind() string {
	return p.kind
}

// Invoke sends op with args to the remote value and returns a future for
// the response. The future can itself be invoked before it settles; such
// operations are pipelined to the peer immediately.
func (p *Proxy) Invoke(ctx context.Context, op string, args []any) *promise.Future {
	return p.conn.invoke(ctx, p.id, op, args)
}

// Get fetches a named member of the remote value.
func (p *Proxy) Get(ctx context.Context, name any) *promise.Future {
	return promise.Get(ctx, p, name)
}

// Call invokes a named method of the remote value.
func (p *Proxy) Call(ctx context.Context, method string, args ...any) *promise.Future {
	return promise.Call(ctx, p, method, args...)
}

// Apply calls the remote value as a function.
func (p *Proxy) Apply(ctx context.Context, args ...any) *promise.Future {
	return promise.Apply(ctx, p, args...)
}

// Keys lists the member names of the remote value.
func (p *Proxy) Keys(ctx context.Context) *promise.Future {
	return promise.Keys(ctx, p)
}

// Set assigns a named member of the remote value.
func (p *Proxy) Set(ctx context.Context, name string, value any) *promise.Future {
	return promise.Set(ctx, p, name, value)
}

// Delete removes a named member of the remote value.
func (p *Proxy) Delete(ctx context.Context, name string) *promise.Future {
	return promise.Delete(ctx, p, name)
}
