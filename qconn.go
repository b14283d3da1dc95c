package qconn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/wagiedev/qconn/internal/protocol"
	"github.com/wagiedev/qconn/internal/subprocess"
	"github.com/wagiedev/qconn/internal/transport"
)

// Conn is one side of a qconn connection: a framed transport queue over the
// endpoint and the protocol engine driving it.
type Conn struct {
	log    *slog.Logger
	queue  *transport.Queue
	engine *protocol.Connection
}

// Connect starts a connection over a single duplex stream, such as a
// net.Conn, exposing local as this side's root value.
//
// Cancelling ctx closes the connection, so pass a context that lives as long
// as the connection should.
func Connect(ctx context.Context, stream io.ReadWriter, local any, opts ...Option) (*Conn, error) {
	return connect(ctx, stream, nil, local, opts)
}

// ConnectStreams starts a connection over a distinct readable source and
// writable sink, such as a child process's stdout and stdin.
func ConnectStreams(ctx context.Context, source io.Reader, sink io.Writer, local any, opts ...Option) (*Conn, error) {
	if sink == nil {
		return nil, &ConfigurationError{Reason: "sink is required alongside a source"}
	}

	return connect(ctx, source, sink, local, opts)
}

// ConnectProcess runs name with args as a child process and starts a
// connection over its stdin and stdout. The child's stderr is logged at
// debug level. Closing the connection closes the child's stdin and kills it
// if it does not exit within the grace period.
func ConnectProcess(ctx context.Context, name string, args []string, local any, opts ...Option) (*Conn, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	log := applyOptions(opts).Logger
	if log == nil {
		log = NopLogger()
	}

	proc := subprocess.New(log, subprocess.Config{
		Path: name,
		Args: args,
		Stderr: func(line string) {
			log.Debug("Peer stderr", "line", line)
		},
	})

	if err := proc.Start(ctx); err != nil {
		return nil, err
	}

	conn, err := connect(ctx, proc, nil, local, opts)
	if err != nil {
		_ = proc.Close()

		return nil, err
	}

	return conn, nil
}

func connect(ctx context.Context, source io.Reader, sink io.Writer, local any, opts []Option) (*Conn, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	options := applyOptions(opts)
	if options.Logger == nil {
		options.Logger = NopLogger()
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}

	queue, err := transport.New(options.Logger, source, sink, transport.Config{
		Delimiter:      options.Delimiter,
		HighWaterMark:  options.HighWaterMark,
		MaxFrameBytes:  options.MaxFrameBytes,
		ReadBufferSize: options.ReadBufferSize,
	})
	if err != nil {
		return nil, err
	}

	cfg := protocol.Config{MaxLocalEntries: options.MaxLocalEntries}
	if options.IDGenerator != nil {
		cfg.IDs = options.IDGenerator
	}

	engine := protocol.NewConnection(options.Logger, queue, local, cfg)

	queue.Start()

	if err := engine.Start(ctx); err != nil {
		_ = engine.Close(err)

		return nil, fmt.Errorf("start connection: %w", err)
	}

	return &Conn{
		log:    options.Logger,
		queue:  queue,
		engine: engine,
	}, nil
}

// Remote returns the proxy for the peer's root value.
func (c *Conn) Remote() *Proxy {
	return c.engine.Remote()
}

// Close closes the connection. Every pending future is rejected with err, or
// with ErrConnectionClosed when err is nil. Close is idempotent.
func (c *Conn) Close(err error) error {
	return c.engine.Close(err)
}

// Done returns a channel that is closed when the connection closes, whether
// locally, by the peer ending the stream, or by a transport failure.
func (c *Conn) Done() <-chan struct{} {
	return c.engine.Done()
}

// Err returns the reason the connection closed, or nil while it is open.
func (c *Conn) Err() error {
	return c.engine.Err()
}

// Wait blocks until the connection is closed and every local handler has
// returned. It must not be called from a handler.
func (c *Conn) Wait() {
	c.engine.Wait()
	<-c.queue.Done()
}

// WithConn manages connection lifecycle with automatic cleanup.
//
// This helper connects over stream, executes the callback function, and
// closes the connection when it returns. If Close fails with anything but
// ErrConnectionClosed, a warning is logged but does not override the
// callback's error.
//
// Example usage:
//
//	err := qconn.WithConn(ctx, conn, nil, func(c *qconn.Conn) error {
//	    answer, err := c.Remote().Call(ctx, "ping").Await(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(answer)
//	    return nil
//	},
//	    qconn.WithLogger(log),
//	)
func WithConn(ctx context.Context, stream io.ReadWriter, local any, fn func(*Conn) error, opts ...Option) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	conn, err := Connect(ctx, stream, local, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	defer func() {
		if closeErr := conn.Close(nil); closeErr != nil && !errors.Is(closeErr, ErrConnectionClosed) {
			conn.log.Warn("failed to close connection", "error", closeErr)
		}
	}()

	return fn(conn)
}
