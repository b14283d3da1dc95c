package transport

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/wagiedev/qconn/internal/errors"
	"github.com/wagiedev/qconn/internal/fifo"
	"github.com/wagiedev/qconn/internal/splitter"
)

const (
	// DefaultHighWaterMark is the outbound buffer size above which Put reports
	// backpressure.
	DefaultHighWaterMark = 16 * 1024 // 16KB
	// DefaultReadBufferSize is the size of a single read from the source.
	DefaultReadBufferSize = 32 * 1024 // 32KB
)

// Config holds the framing and buffering parameters of a Queue.
type Config struct {
	// Delimiter separates frames on the wire.
	Delimiter []byte
	// HighWaterMark is the advisory outbound buffer threshold in bytes.
	HighWaterMark int
	// MaxFrameBytes bounds unterminated inbound bytes. Zero disables the limit.
	MaxFrameBytes int
	// ReadBufferSize is the size of a single read from the source.
	ReadBufferSize int
}

// DefaultConfig returns the configuration used when no options are given.
func DefaultConfig() Config {
	return Config{
		Delimiter:      splitter.DefaultDelimiter,
		HighWaterMark:  DefaultHighWaterMark,
		MaxFrameBytes:  splitter.DefaultMaxBuffered,
		ReadBufferSize: DefaultReadBufferSize,
	}
}

// Queue adapts a byte-stream endpoint into an asynchronous FIFO of frames.
//
// Inbound bytes are split on the delimiter and queued; outbound frames are
// written with the delimiter appended. The source reaching end-of-input and
// the sink finishing after Close both close the queue. Once closed, the
// splitter is detached and the endpoints are closed, so no new frames are
// accepted; frames queued before the close are still returned by Get.
type Queue struct {
	log       *slog.Logger
	source    io.Reader
	sink      io.Writer
	duplex    bool
	delimiter []byte
	highWater int
	readSize  int

	frames   *fifo.Queue[[]byte]
	splitter *splitter.Splitter

	// Outbound buffer, drained by writeLoop
	outMu    sync.Mutex
	outCond  *sync.Cond
	out      [][]byte
	outBytes int
	ending   bool

	startOnce sync.Once
	finished  chan struct{}
}

// New creates a transport queue over the given endpoints.
//
// Pass a single duplex endpoint as source with a nil sink, or a distinct
// readable source and writable sink. Any other combination returns a
// ConfigurationError. The queue does not read or write until Start is called.
func New(log *slog.Logger, source io.Reader, sink io.Writer, cfg Config) (*Queue, error) {
	duplex := false

	if sink == nil {
		w, ok := source.(io.Writer)
		if !ok {
			return nil, &errors.ConfigurationError{Reason: "adaptable stream(s) required"}
		}

		sink = w
		duplex = true
	}

	if source == nil {
		return nil, &errors.ConfigurationError{Reason: "adaptable stream(s) required"}
	}

	defaults := DefaultConfig()
	if len(cfg.Delimiter) == 0 {
		cfg.Delimiter = defaults.Delimiter
	}

	if cfg.HighWaterMark <= 0 {
		cfg.HighWaterMark = defaults.HighWaterMark
	}

	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = defaults.ReadBufferSize
	}

	q := &Queue{
		log:       log.With("component", "transport"),
		source:    source,
		sink:      sink,
		duplex:    duplex,
		delimiter: cfg.Delimiter,
		highWater: cfg.HighWaterMark,
		readSize:  cfg.ReadBufferSize,
		frames:    fifo.New[[]byte](),
		out:       make([][]byte, 0, 16),
		finished:  make(chan struct{}),
	}

	q.outCond = sync.NewCond(&q.outMu)
	q.splitter = splitter.New(cfg.Delimiter, cfg.MaxFrameBytes, q.onFrame)

	return q, nil
}

// Start launches the reader and writer goroutines. It is safe to call Start
// multiple times; only the first call has an effect.
func (q *Queue) Start() {
	q.startOnce.Do(func() {
		q.log.Debug("Starting transport queue", "duplex", q.duplex)

		go q.readLoop()
		go q.writeLoop()
		go q.teardown()
	})
}

// Put queues a frame for writing.
//
// The result is an advisory throttle hint: true while the outbound buffer is
// under the high-water mark. Put never blocks, and returns false once the
// queue is closed.
func (q *Queue) Put(frame []byte) bool {
	q.outMu.Lock()
	defer q.outMu.Unlock()

	if q.ending {
		return false
	}

	data := make([]byte, len(frame)+len(q.delimiter))
	copy(data, frame)
	copy(data[len(frame):], q.delimiter)

	q.out = append(q.out, data)
	q.outBytes += len(data)
	q.outCond.Signal()

	framesSent.Inc()

	if q.outBytes >= q.highWater {
		backpressure.Inc()

		return false
	}

	return true
}

// Get returns the next inbound frame, waiting while none is buffered.
func (q *Queue) Get(ctx context.Context) ([]byte, error) {
	return q.frames.Get(ctx)
}

// Close ends the sink and closes the queue with an optional reason.
//
// Close is idempotent; every call returns the outcome of the first one.
func (q *Queue) Close(err error) error {
	q.outMu.Lock()

	if !q.ending {
		q.ending = true
		q.outCond.Broadcast()
	}

	q.outMu.Unlock()

	return q.frames.Close(err)
}

// Done returns a channel that is closed when the queue closes.
func (q *Queue) Done() <-chan struct{} {
	return q.frames.Done()
}

// Err returns the close reason, or nil while the queue is open.
func (q *Queue) Err() error {
	return q.frames.Err()
}

// onFrame hands a complete inbound frame to the FIFO.
func (q *Queue) onFrame(frame []byte) {
	if q.frames.Put(frame) {
		framesReceived.Inc()
	}
}

// readLoop reads the source and feeds the splitter until end-of-input.
func (q *Queue) readLoop() {
	defer q.log.Debug("Transport read loop stopped")
	defer q.splitter.Detach()

	source := q.source
	buf := make([]byte, q.readSize)

	for {
		n, err := source.Read(buf)
		if n > 0 {
			select {
			case <-q.frames.Done():
				return
			default:
			}

			bytesReceived.Add(n)

			if perr := q.splitter.Push(buf[:n]); perr != nil {
				q.log.Warn("Inbound frame exceeds limit, closing", "buffered", q.splitter.Buffered())
				q.Close(perr)

				return
			}
		}

		if err != nil {
			if stderrors.Is(err, io.EOF) {
				q.log.Debug("Source reached end of input")
				q.Close(nil)
			} else {
				q.log.Debug("Source read failed", "error", err)
				q.Close(fmt.Errorf("read from source: %w", err))
			}

			return
		}
	}
}

// writeLoop drains the outbound buffer into the sink. After Close it flushes
// what is left, closes the sink and signals completion.
func (q *Queue) writeLoop() {
	defer close(q.finished)
	defer q.log.Debug("Transport write loop stopped")

	for {
		q.outMu.Lock()

		for len(q.out) == 0 && !q.ending {
			q.outCond.Wait()
		}

		if len(q.out) == 0 {
			q.outMu.Unlock()

			break
		}

		batch := net.Buffers(q.out)
		size := q.outBytes
		q.out = make([][]byte, 0, 16)
		q.outMu.Unlock()

		// net.Buffers combines the batch into as few writes as the sink allows
		_, err := batch.WriteTo(q.sink)

		q.outMu.Lock()
		q.outBytes -= size
		q.outMu.Unlock()

		if err != nil {
			q.log.Debug("Sink write failed", "error", err)
			q.Close(fmt.Errorf("write to sink: %w", err))
			q.discardOutbound()

			return
		}

		bytesSent.Add(size)
	}

	if c, ok := q.sink.(io.Closer); ok {
		if err := c.Close(); err != nil {
			q.log.Debug("Failed to close sink", "error", err)
		}
	}

	// Flush completion closes the queue.
	q.Close(nil)
}

// discardOutbound drops frames that can no longer be written.
func (q *Queue) discardOutbound() {
	q.outMu.Lock()
	defer q.outMu.Unlock()

	q.out = nil
	q.outBytes = 0
}

// teardown releases the endpoints once the queue is closed and flushed.
func (q *Queue) teardown() {
	<-q.frames.Done()
	<-q.finished

	// Closing the source unblocks a pending Read in readLoop. A duplex
	// endpoint was normally closed by writeLoop already.
	if c, ok := q.source.(io.Closer); ok {
		if err := c.Close(); err != nil {
			q.log.Debug("Source already closed", "error", err)
		}
	}

	q.log.Debug("Transport queue closed", "reason", q.frames.Err())
}
