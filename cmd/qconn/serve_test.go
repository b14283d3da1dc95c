package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/qconn"
)

func TestServe_AcceptsPeersUntilCancelled(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	served := make(chan error, 1)

	go func() {
		served <- serve(ctx, log, ln, []qconn.Option{qconn.WithLogger(log)})
	}()

	for range 2 {
		nc, err := net.Dial("tcp", ln.Addr().String())
		require.NoError(t, err)

		conn, err := qconn.Connect(context.Background(), nc, nil)
		require.NoError(t, err)

		v, err := awaitResult(t, conn.Remote().Call(context.Background(), "ping", 1))
		require.NoError(t, err)
		require.Equal(t, float64(2), v)

		conn.Close(nil)
		conn.Wait()
	}

	cancel()

	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}
}
