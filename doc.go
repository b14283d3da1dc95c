// Package qconn connects two programs over a byte stream and lets each call
// into values owned by the other.
//
// Each side exposes one local root value. The peer reaches it through a
// Proxy; operations on a proxy (get, set, delete, post, apply, keys) return
// a Future. Futures accept further operations before they settle, so a chain
// of calls reaches the peer without waiting for intermediate answers.
// Functions and futures passed as arguments travel by reference and can be
// called back across the connection.
//
// # Basic Usage
//
// Expose a root value on one side:
//
//	root := map[string]any{
//	    "ping": qconn.Func(func(ctx context.Context, args ...any) (any, error) {
//	        return "pong", nil
//	    }),
//	}
//
//	conn, err := qconn.Connect(ctx, netConn, root)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close(nil)
//
// and call it from the other:
//
//	answer, err := conn.Remote().Call(ctx, "ping").Await(ctx)
//
// # Pipelining
//
// Operations on an unsettled Future are forwarded to the peer immediately:
//
//	counter := conn.Remote().Call(ctx, "counter")
//	value, err := counter.Call(ctx, "inc").Await(ctx)
//
// # Progress
//
// Local functions may return a pending Future and Notify it; the caller
// observes the notifications through Future.Subscribe.
//
// # Framing
//
// Frames are separated by three zero bytes by default. Use WithDelimiter to
// change the delimiter; both peers must agree on it.
//
// # Logging
//
// Pass a *slog.Logger with WithLogger. Without one the connection logs
// nothing.
package qconn
