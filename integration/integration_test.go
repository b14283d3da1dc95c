//go:build integration

package integration

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/qconn"
)

// listen serves root to every connection accepted on a fresh listener and
// returns the listener address.
func listen(t *testing.T, network, address string, root func() any, opts ...qconn.Option) string {
	t.Helper()

	ln, err := net.Listen(network, address)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})

	go func() {
		defer close(done)

		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}

			if _, err := qconn.Connect(ctx, nc, root(), opts...); err != nil {
				_ = nc.Close()
			}
		}
	}()

	t.Cleanup(func() {
		cancel()
		_ = ln.Close()
		<-done
	})

	return ln.Addr().String()
}

// dial connects to a listening peer.
func dial(t *testing.T, network, address string, opts ...qconn.Option) *qconn.Conn {
	t.Helper()

	nc, err := net.DialTimeout(network, address, 5*time.Second)
	require.NoError(t, err)

	conn, err := qconn.Connect(context.Background(), nc, nil, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close(nil)
		conn.Wait()
	})

	return conn
}

func await(t *testing.T, f *qconn.Future) (any, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	return f.Await(ctx)
}

func echoRoot() any {
	return map[string]any{
		"echo": qconn.Func(func(_ context.Context, args ...any) (any, error) {
			return args[0], nil
		}),
	}
}

func socketPath(t *testing.T) string {
	t.Helper()

	return filepath.Join(t.TempDir(), "qconn.sock")
}
