package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wagiedev/qconn"
)

// countdownInterval is the pause between countdown notifications.
var countdownInterval = 100 * time.Millisecond

// demoRoot builds the root value exposed by qconn serve. Each connection
// gets its own root so counters are not shared between peers.
func demoRoot() map[string]any {
	return map[string]any{
		"ping": qconn.Func(func(_ context.Context, args ...any) (any, error) {
			if len(args) == 0 {
				return "pong", nil
			}

			n, ok := args[0].(float64)
			if !ok {
				return nil, fmt.Errorf("ping expects a number, got %T", args[0])
			}

			return n + 1, nil
		}),
		"echo": qconn.Func(func(_ context.Context, args ...any) (any, error) {
			return args, nil
		}),
		"now": qconn.Func(func(context.Context, ...any) (any, error) {
			return time.Now().UTC(), nil
		}),
		"countdown": qconn.Func(func(ctx context.Context, args ...any) (any, error) {
			n := 3
			if len(args) > 0 {
				v, ok := args[0].(float64)
				if !ok || v < 0 {
					return nil, fmt.Errorf("countdown expects a non-negative number, got %v", args[0])
				}

				n = int(v)
			}

			return countdown(ctx, n), nil
		}),
		"counter": qconn.Func(func(context.Context, ...any) (any, error) {
			return &counter{}, nil
		}),
	}
}

// countdown notifies n, n-1, ..., 1 and then resolves with "liftoff".
func countdown(ctx context.Context, n int) *qconn.Future {
	f := qconn.NewFuture()

	go func() {
		ticker := time.NewTicker(countdownInterval)
		defer ticker.Stop()

		for i := n; i > 0; i-- {
			f.Notify(float64(i))

			select {
			case <-ticker.C:
			case <-ctx.Done():
				f.Reject(ctx.Err())

				return
			}
		}

		f.Resolve("liftoff")
	}()

	return f
}

// counter is handed to peers by reference. They call inc and value on it
// through the returned proxy.
type counter struct {
	mu    sync.Mutex
	value float64
}

// Compile-time verification that counter implements qconn.Object.
var _ qconn.Object = (*counter)(nil)

// Dispatch implements qconn.Object.
func (c *counter) Dispatch(_ context.Context, op string, args []any) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch op {
	case qconn.OpPost:
		if len(args) == 0 {
			return nil, fmt.Errorf("%w: post without a method name", qconn.ErrUnsupportedOperation)
		}

		switch args[0] {
		case "inc":
			c.value++

			return c.value, nil
		case "value":
			return c.value, nil
		case "reset":
			c.value = 0

			return nil, nil
		}

		return nil, fmt.Errorf("%w: counter has no method %v", qconn.ErrUnsupportedOperation, args[0])
	case qconn.OpGet:
		if len(args) > 0 && args[0] == "value" {
			return c.value, nil
		}

		return qconn.Undefined, nil
	case qconn.OpKeys:
		return []any{"inc", "value", "reset"}, nil
	default:
		return nil, fmt.Errorf("%w: %q on counter", qconn.ErrUnsupportedOperation, op)
	}
}
