package qconn_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/qconn"
)

func awaitFuture(t *testing.T, f *qconn.Future) (any, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return f.Await(ctx)
}

func serverRoot() map[string]any {
	return map[string]any{
		"ping": qconn.Func(func(context.Context, ...any) (any, error) {
			return "pong", nil
		}),
		"echo": qconn.Func(func(_ context.Context, args ...any) (any, error) {
			return args, nil
		}),
		"hang": qconn.Func(func(context.Context, ...any) (any, error) {
			return qconn.NewFuture(), nil
		}),
	}
}

// connectPair wires two connections back to back over an in-memory pipe.
func connectPair(t *testing.T, rootA, rootB any, opts ...qconn.Option) (*qconn.Conn, *qconn.Conn) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	a, b := net.Pipe()

	connA, err := qconn.Connect(ctx, a, rootA, opts...)
	require.NoError(t, err)

	connB, err := qconn.Connect(ctx, b, rootB, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		cancel()
		connA.Wait()
		connB.Wait()
	})

	return connA, connB
}

func TestConnect_Ping(t *testing.T) {
	_, client := connectPair(t, serverRoot(), nil)

	v, err := awaitFuture(t, client.Remote().Call(context.Background(), "ping"))
	require.NoError(t, err)
	require.Equal(t, "pong", v)
}

func TestConnect_BothSidesServe(t *testing.T) {
	left := map[string]any{"side": "left"}
	right := map[string]any{"side": "right"}

	a, b := connectPair(t, left, right)

	v, err := awaitFuture(t, a.Remote().Get(context.Background(), "side"))
	require.NoError(t, err)
	require.Equal(t, "right", v)

	v, err = awaitFuture(t, b.Remote().Get(context.Background(), "side"))
	require.NoError(t, err)
	require.Equal(t, "left", v)
}

func TestConnect_CustomDelimiter(t *testing.T) {
	_, client := connectPair(t, serverRoot(), nil, qconn.WithDelimiter([]byte("\n")))

	v, err := awaitFuture(t, client.Remote().Call(context.Background(), "echo", "multi\nline"))
	require.NoError(t, err)
	require.Equal(t, []any{"multi\nline"}, v)
}

func TestConnect_FixedIDs(t *testing.T) {
	_, client := connectPair(t, serverRoot(), nil, qconn.WithIDGenerator(qconn.NewFixedGenerator("req-")))

	v, err := awaitFuture(t, client.Remote().Call(context.Background(), "ping"))
	require.NoError(t, err)
	require.Equal(t, "pong", v)
}

func TestConnectStreams_Pipes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Two unidirectional pipes, as with a child process's stdio.
	serverIn, clientOut := io.Pipe()
	clientIn, serverOut := io.Pipe()

	server, err := qconn.ConnectStreams(ctx, serverIn, serverOut, serverRoot())
	require.NoError(t, err)

	client, err := qconn.ConnectStreams(ctx, clientIn, clientOut, nil)
	require.NoError(t, err)

	v, err := awaitFuture(t, client.Remote().Call(ctx, "echo", 1, "two"))
	require.NoError(t, err)
	require.Equal(t, []any{float64(1), "two"}, v)

	require.ErrorIs(t, client.Close(nil), qconn.ErrConnectionClosed)

	select {
	case <-server.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("server did not observe the closed stream")
	}
}

func TestConnect_NilStream(t *testing.T) {
	_, err := qconn.Connect(context.Background(), nil, nil)

	var cfgErr *qconn.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestConnectStreams_MissingSink(t *testing.T) {
	r, _ := io.Pipe()

	_, err := qconn.ConnectStreams(context.Background(), r, nil, nil)

	var cfgErr *qconn.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestConnect_InvalidOptions(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	tests := []struct {
		name string
		opt  qconn.Option
	}{
		{name: "empty delimiter", opt: qconn.WithDelimiter(nil)},
		{name: "negative high water mark", opt: qconn.WithHighWaterMark(-1)},
		{name: "negative frame limit", opt: qconn.WithMaxFrameBytes(-1)},
		{name: "zero read buffer", opt: qconn.WithReadBufferSize(0)},
		{name: "negative entry limit", opt: qconn.WithMaxLocalEntries(-5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := qconn.Connect(context.Background(), a, nil, tt.opt)

			var cfgErr *qconn.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestConnect_CancelledContext(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := qconn.Connect(ctx, a, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestConn_CloseRejectsPending(t *testing.T) {
	_, client := connectPair(t, serverRoot(), nil)

	pending := client.Remote().Call(context.Background(), "hang")

	reason := errors.New("shutting down")
	require.ErrorIs(t, client.Close(reason), reason)

	_, err := awaitFuture(t, pending)
	require.ErrorIs(t, err, reason)
	require.ErrorIs(t, client.Err(), reason)
}

func TestConn_PeerCloseEndsConnection(t *testing.T) {
	server, client := connectPair(t, serverRoot(), nil)

	pending := client.Remote().Call(context.Background(), "hang")

	server.Close(nil)

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not close after the peer closed")
	}

	_, err := awaitFuture(t, pending)
	require.ErrorIs(t, err, qconn.ErrConnectionClosed)
}

func TestConn_TooManyEntries(t *testing.T) {
	_, client := connectPair(t, serverRoot(), nil, qconn.WithMaxLocalEntries(1))

	first := client.Remote().Call(context.Background(), "hang")

	_, err := awaitFuture(t, client.Remote().Call(context.Background(), "ping"))
	require.ErrorIs(t, err, qconn.ErrTooManyEntries)
	require.Equal(t, qconn.StatePending, first.State())
}

func TestConn_RemoteError(t *testing.T) {
	root := map[string]any{
		"fail": qconn.Func(func(context.Context, ...any) (any, error) {
			return nil, errors.New("disk full")
		}),
	}

	_, client := connectPair(t, root, nil)

	_, err := awaitFuture(t, client.Remote().Call(context.Background(), "fail"))

	var remoteErr *qconn.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	require.Equal(t, "disk full", remoteErr.Message)
}

func TestWithConn_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	err := qconn.WithConn(ctx, nil, nil, func(*qconn.Conn) error {
		t.Error("callback should not be called with cancelled context")

		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestWithConn_ConnectError(t *testing.T) {
	err := qconn.WithConn(context.Background(), nil, nil, func(*qconn.Conn) error {
		t.Error("callback should not be called without a stream")

		return nil
	})

	var cfgErr *qconn.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestWithConn_CallbackResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, b := net.Pipe()

	server, err := qconn.Connect(ctx, a, serverRoot())
	require.NoError(t, err)

	var conn *qconn.Conn

	sentinel := errors.New("callback failed")

	err = qconn.WithConn(ctx, b, nil, func(c *qconn.Conn) error {
		conn = c

		v, err := awaitFuture(t, c.Remote().Call(ctx, "ping"))
		require.NoError(t, err)
		require.Equal(t, "pong", v)

		return sentinel
	}, qconn.WithLogger(qconn.NopLogger()))
	require.ErrorIs(t, err, sentinel)

	// The helper closes the connection on the way out.
	require.ErrorIs(t, conn.Err(), qconn.ErrConnectionClosed)

	select {
	case <-server.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("server did not observe the closed connection")
	}
}

func TestNopLogger(t *testing.T) {
	log := qconn.NopLogger()
	require.NotNil(t, log)

	require.NotPanics(t, func() {
		log.Info("discarded", "key", "value")
	})
}

func TestConnectProcess_Loopback(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skipf("cat not available: %v", err)
	}

	// cat echoes every frame back, so this side ends up talking to itself.
	conn, err := qconn.ConnectProcess(context.Background(), "cat", nil, serverRoot())
	require.NoError(t, err)

	v, err := awaitFuture(t, conn.Remote().Call(context.Background(), "ping"))
	require.NoError(t, err)
	require.Equal(t, "pong", v)

	conn.Close(nil)
	conn.Wait()
}

func TestConnectProcess_UnknownProgram(t *testing.T) {
	_, err := qconn.ConnectProcess(context.Background(), "qconn-test-no-such-program", nil, nil)

	var cfgErr *qconn.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestConn_ConcurrentPeerWrites(t *testing.T) {
	root := map[string]any{}
	_, client := connectPair(t, root, nil)

	ctx := context.Background()
	futures := make([]*qconn.Future, 100)

	for i := range futures {
		futures[i] = client.Remote().Set(ctx, fmt.Sprintf("key-%d", i), fmt.Sprint(i))
	}

	for _, f := range futures {
		_, err := awaitFuture(t, f)
		require.NoError(t, err)
	}

	v, err := awaitFuture(t, client.Remote().Get(ctx, "key-7"))
	require.NoError(t, err)
	require.Equal(t, "7", v)
}

func TestConnectStreams_ReplyBeforePeerExit(t *testing.T) {
	ctx := context.Background()
	fromPeer, peerOut := io.Pipe()
	toPeer, ourOut := io.Pipe()

	go func() {
		_, _ = io.Copy(io.Discard, toPeer)
	}()

	conn, err := qconn.ConnectStreams(ctx, fromPeer, ourOut, nil,
		qconn.WithIDGenerator(qconn.NewFixedGenerator("r")),
	)
	require.NoError(t, err)

	pending := conn.Remote().Get(ctx, "x")

	// The peer answers and exits straight away.
	_, err = peerOut.Write([]byte(`{"type":"resolve","to":"r1","resolution":"bye"}` + "\x00\x00\x00"))
	require.NoError(t, err)
	require.NoError(t, peerOut.Close())

	v, err := awaitFuture(t, pending)
	require.NoError(t, err)
	require.Equal(t, "bye", v)

	conn.Wait()
	require.ErrorIs(t, conn.Err(), qconn.ErrConnectionClosed)
}
