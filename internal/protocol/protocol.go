package protocol

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/wagiedev/qconn/internal/errors"
	"github.com/wagiedev/qconn/internal/promise"
	"github.com/wagiedev/qconn/internal/qson"
)

// rootID identifies each side's exposed root value.
const rootID = ""

// errDuplicateID reports an identifier that is already registered, e.g. a
// peer request id colliding with a local entry on a loopback stream.
var errDuplicateID = stderrors.New("identifier already registered")

// Transport defines the minimal interface needed for protocol operations.
//
// This interface is satisfied by transport.Queue but allows for testing
// with mock transports.
type Transport interface {
	Put(frame []byte) bool
	Get(ctx context.Context) ([]byte, error)
	Close(err error) error
}

// Config holds the engine settings.
type Config struct {
	// IDs generates identifiers for new local entries. Defaults to ULIDs.
	IDs IDGenerator
	// MaxLocalEntries bounds the local entries table. Zero means unlimited.
	MaxLocalEntries int
}

type entryKind int

const (
	kindRoot entryKind = iota
	kindExport
	kindResponse
	kindPipeline
)

func (k entryKind) String() string {
	switch k {
	case kindRoot:
		return "root"
	case kindExport:
		return "export"
	case kindResponse:
		return "response"
	case kindPipeline:
		return "pipeline"
	default:
		return "unknown"
	}
}

// entry is a future registered under an identifier on this side.
type entry struct {
	kind   entryKind
	future *promise.Future
}

// Connection runs the symmetric promise-forwarding protocol over a transport.
//
// The Connection handles:
//   - Exposing a local root value to the peer under the identifier ""
//   - Forwarding operations on remote proxies as send messages
//   - Routing resolve and notify messages to the waiting local entries
//   - Invoking operations requested by the peer and piping the outcome back
//
// The Connection must be started with Start() before inbound messages are
// processed. Operations may be issued on proxies before that; their frames
// are queued by the transport.
type Connection struct {
	log        *slog.Logger
	transport  Transport
	ids        IDGenerator
	codec      *qson.Codec
	maxEntries int

	root   *entry
	locals *xsync.MapOf[string, *entry]
	remote *Proxy

	// Context handed to local handlers, cancelled on close
	ctx    context.Context
	cancel context.CancelFunc

	// dataMu serializes peer access to local maps and slices
	dataMu sync.Mutex

	// closeMu orders entry registration against close, so nothing is
	// registered after pending entries have been rejected.
	closeMu  sync.RWMutex
	closed   bool
	closeErr error

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewConnection creates a connection exposing local as the root value.
//
// The logger will receive debug, info, warn, and error messages during
// protocol operations.
func NewConnection(log *slog.Logger, transport Transport, local any, cfg Config) *Connection {
	if cfg.IDs == nil {
		cfg.IDs = ULIDGenerator{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Connection{
		log:        log.With("component", "protocol"),
		transport:  transport,
		ids:        cfg.IDs,
		maxEntries: cfg.MaxLocalEntries,
		root:       &entry{kind: kindRoot, future: promise.Resolved(local)},
		locals:     xsync.NewMapOf[string, *entry](),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	c.codec = qson.NewCodec(exporter{c}, importer{c})
	c.remote = &Proxy{conn: c, id: rootID, kind: qson.KindObject}

	return c
}

// Remote returns the proxy for the peer's root value.
func (c *Connection) Remote() *Proxy {
	return c.remote
}

// Start begins reading frames from the transport and dispatching messages.
//
// This method spawns a goroutine that processes inbound frames strictly in
// arrival order. Cancelling ctx closes the connection. Start returns
// ErrConnectionClosed if the connection has already been closed; calling it
// again on a running connection has no effect.
func (c *Connection) Start(ctx context.Context) error {
	if err := c.Err(); err != nil {
		return errors.ErrConnectionClosed
	}

	c.startOnce.Do(func() {
		c.log.Debug("Starting protocol connection")

		c.wg.Go(func() {
			c.readLoop(ctx)
		})

		c.log.Info("Protocol connection started")
	})

	return nil
}

// Close shuts the connection down with an optional reason.
//
// Every pending local entry is rejected with the reason, or with
// ErrConnectionClosed when err is nil. Close is idempotent and returns the
// reason of the first call.
func (c *Connection) Close(err error) error {
	c.shutdown(err)

	return c.Err()
}

// Done returns a channel that is closed when the connection closes.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Err returns the close reason, or nil while the connection is open.
func (c *Connection) Err() error {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()

	return c.closeErr
}

// Wait blocks until the connection is closed and the read loop and all
// local handlers have returned. It must not be called from a handler.
func (c *Connection) Wait() {
	<-c.done
	c.wg.Wait()
}

// Entries returns the number of registered local entries, excluding the
// root.
func (c *Connection) Entries() int {
	return c.locals.Size()
}

// shutdown closes the connection exactly once.
func (c *Connection) shutdown(err error) {
	c.closeOnce.Do(func() {
		if err == nil {
			err = errors.ErrConnectionClosed
		}

		c.closeMu.Lock()
		c.closed = true
		c.closeErr = err
		c.closeMu.Unlock()

		c.log.Debug("Closing protocol connection", "reason", err)

		c.cancel()
		c.transport.Close(err)

		rejected := 0

		c.locals.Range(func(id string, e *entry) bool {
			if e.future.Reject(err) {
				rejected++
			}

			c.locals.Delete(id)

			return true
		})

		close(c.done)

		c.log.Info("Protocol connection closed", "rejected", rejected)
	})
}

// readLoop reads frames from the transport until it closes.
func (c *Connection) readLoop(ctx context.Context) {
	defer c.log.Debug("Protocol read loop stopped")

	for {
		frame, err := c.transport.Get(ctx)
		if err != nil {
			c.log.Debug("Transport closed in protocol read loop", "error", err)
			c.shutdown(err)

			return
		}

		// Frames still buffered after a local close are not acted on.
		select {
		case <-c.done:
			return
		default:
		}

		c.handleFrame(frame)
	}
}

// handleFrame parses one frame and routes the message by type.
func (c *Connection) handleFrame(frame []byte) {
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		c.log.Warn("Dropping unparseable frame", "error", &errors.ProtocolParseError{Raw: frame, Err: err})
		framesDropped.Inc()

		return
	}

	e, ok := c.lookup(msg.To)
	if !ok {
		c.log.Debug("Ignoring message for unknown entry", "type", msg.Type, "to", msg.To)
		messagesIgnored.Inc()

		return
	}

	switch msg.Type {
	case TypeResolve:
		c.handleResolve(msg, e)

	case TypeNotify:
		c.handleNotify(msg, e)

	case TypeSend:
		c.handleSend(msg, e)

	default:
		c.log.Debug("Ignoring message of unknown type", "type", msg.Type)
		messagesIgnored.Inc()
	}
}

// handleResolve settles the addressed entry.
func (c *Connection) handleResolve(msg Message, e *entry) {
	value := c.decode(msg.Resolution)

	// The peer sends exactly one resolve per request.
	if e.kind == kindResponse {
		c.locals.Delete(msg.To)
	}

	if !e.future.Resolve(value) {
		c.log.Debug("Resolve for settled entry", "to", msg.To, "kind", e.kind)
	}
}

// handleNotify delivers progress to the addressed entry.
func (c *Connection) handleNotify(msg Message, e *entry) {
	e.future.Notify(c.decode(msg.Resolution))
}

// handleSend invokes an operation on the addressed entry and pipes the
// outcome back to the sender.
func (c *Connection) handleSend(msg Message, e *entry) {
	requestsReceived.Inc()

	var args []any
	if list, ok := c.decode(msg.Args).([]any); ok {
		args = list
	} else {
		args = []any{}
	}

	c.log.Debug("Received send", "to", msg.To, "from", msg.From, "op", msg.Op)

	response := promise.New()

	if msg.From != "" {
		// The sender may pipeline against its response before it settles.
		if err := c.register(msg.From, kindPipeline, response); err != nil {
			c.log.Debug("Response not registered for pipelining", "from", msg.From, "error", err)
		}

		c.pipe(msg.From, response)
	}

	// Run the operation in a goroutine so the read loop keeps ingesting
	c.wg.Go(func() {
		target, err := e.future.Await(c.ctx)
		if err != nil {
			response.Reject(err)

			return
		}

		response.Resolve(promise.DispatchLocked(c.ctx, &c.dataMu, target, msg.Op, args))
	})
}

// pipe forwards the outcome of a response future to the peer entry to.
// Exactly one terminal resolve is sent.
func (c *Connection) pipe(to string, response *promise.Future) {
	var (
		mu      sync.Mutex
		replied bool
	)

	terminal := func(resolution any) {
		mu.Lock()
		defer mu.Unlock()

		if replied {
			return
		}

		replied = true
		repliesSent.Inc()
		c.send(Message{Type: TypeResolve, To: to}, resolution)
	}

	response.Subscribe(promise.Observer{
		OnProgress: func(progress any) {
			tree, err := c.codec.Encode(progress)
			if err != nil {
				// Progress that cannot be represented aborts the request.
				c.log.Debug("Progress failed to encode", "to", to, "error", err)
				encodingFailures.Inc()
				terminal(c.failure(err))

				return
			}

			mu.Lock()
			defer mu.Unlock()

			if !replied {
				c.send(Message{Type: TypeNotify, To: to}, tree)
			}
		},
		OnFulfilled: func(value any) {
			tree, err := c.codec.Encode(value)
			if err != nil {
				c.log.Debug("Resolution failed to encode", "to", to, "error", err)
				encodingFailures.Inc()
				tree = c.failure(err)
			}

			terminal(tree)
		},
		OnRejected: func(reason error) {
			terminal(c.failure(reason))
		},
	})
}

// failure encodes reason in a failure wrapper. If the reason cannot be
// encoded, the encoding error is sent instead, and failing that, null.
func (c *Connection) failure(reason error) any {
	tree, err := c.codec.Encode(reason)
	if err == nil {
		return qson.Failure(tree)
	}

	tree, err = c.codec.Encode(err)
	if err == nil {
		return qson.Failure(tree)
	}

	return qson.Failure(nil)
}

// invoke sends op to the peer entry to and returns the response future.
func (c *Connection) invoke(ctx context.Context, to string, op string, args []any) *promise.Future {
	if err := ctx.Err(); err != nil {
		return promise.Rejected(err)
	}

	if args == nil {
		args = []any{}
	}

	id := c.ids.Generate()
	response := promise.NewPipelined(&Proxy{conn: c, id: id, kind: qson.KindObject})

	if err := c.register(id, kindResponse, response); err != nil {
		return promise.Rejected(err)
	}

	tree, err := c.codec.Encode(args)
	if err != nil {
		c.locals.Delete(id)
		encodingFailures.Inc()

		return promise.Rejected(err)
	}

	c.log.Debug("Sending operation", "to", to, "from", id, "op", op)
	requestsSent.Inc()
	c.send(Message{Type: TypeSend, To: to, From: id, Op: op}, tree)

	return response
}

// send renders a message with its encoded payload and queues the frame.
func (c *Connection) send(msg Message, payload any) {
	raw, err := qson.Render(payload)
	if err != nil {
		c.log.Error("Failed to render payload", "type", msg.Type, "error", err)

		return
	}

	if msg.Type == TypeSend {
		msg.Args = raw
	} else {
		msg.Resolution = raw
	}

	data, err := qson.Render(msg)
	if err != nil {
		c.log.Error("Failed to marshal message", "type", msg.Type, "error", err)

		return
	}

	if !c.transport.Put(data) {
		c.log.Debug("Transport signalled backpressure or closed", "type", msg.Type, "to", msg.To)
	}
}

// decode parses an encoded payload. A missing payload is undefined.
func (c *Connection) decode(raw json.RawMessage) any {
	if len(raw) == 0 {
		return qson.Undefined
	}

	value, err := c.codec.Unmarshal(raw)
	if err != nil {
		// The frame already parsed as JSON, so this cannot happen in practice.
		return promise.Rejected(&errors.ProtocolParseError{Raw: raw, Err: err})
	}

	return value
}

// lookup finds the entry for id; the root is always known.
func (c *Connection) lookup(id string) (*entry, bool) {
	if id == rootID {
		return c.root, true
	}

	return c.locals.Load(id)
}

// register adds a local entry, enforcing the table limit.
func (c *Connection) register(id string, kind entryKind, future *promise.Future) error {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()

	if c.closed {
		return c.closeErr
	}

	if c.maxEntries > 0 && c.locals.Size() >= c.maxEntries {
		return errors.ErrTooManyEntries
	}

	if _, loaded := c.locals.LoadOrStore(id, &entry{kind: kind, future: future}); loaded {
		return fmt.Errorf("%w: %q", errDuplicateID, id)
	}

	return nil
}

// exporter binds values that cross the boundary by reference to fresh
// local entries.
type exporter struct {
	c *Connection
}

func (x exporter) Export(value any, _ string) (string, error) {
	id := x.c.ids.Generate()

	if err := x.c.register(id, kindExport, promise.Resolved(value)); err != nil {
		return "", err
	}

	return id, nil
}

// importer turns references exported by the peer into proxies.
type importer struct {
	c *Connection
}

func (m importer) Import(id string, kind string) any {
	return &Proxy{conn: m.c, id: id, kind: kind}
}
