// Package splitter splits a continuous byte stream into delimiter-bounded frames.
//
// Chunks may arrive in arbitrary sizes; the Splitter buffers them and emits one
// frame per delimiter occurrence, in order, without the delimiter bytes.
// Delimiter bytes inside a payload are not escaped: a payload that contains the
// delimiter sequence is split at that point.
package splitter

import (
	"bytes"

	"github.com/wagiedev/qconn/internal/errors"
)

// DefaultDelimiter separates frames on the wire.
var DefaultDelimiter = []byte{0, 0, 0}

// DefaultMaxBuffered is the default limit for unterminated buffered bytes.
const DefaultMaxBuffered = 8 * 1024 * 1024 // 8MB

// Splitter accumulates pushed bytes and emits complete frames.
//
// A Splitter is owned by a single goroutine (the transport reader) and is not
// safe for concurrent use.
type Splitter struct {
	delimiter   []byte
	maxBuffered int
	onFrame     func([]byte)

	buf []byte
	// checkpoint is how far buf is known to be delimiter-free.
	checkpoint  int
	scanPending bool
	failed      bool
}

// New creates a Splitter that calls onFrame for every complete frame.
//
// maxBuffered bounds the number of unterminated bytes the splitter holds; a
// value <= 0 disables the limit.
func New(delimiter []byte, maxBuffered int, onFrame func([]byte)) *Splitter {
	if len(delimiter) == 0 {
		delimiter = DefaultDelimiter
	}

	return &Splitter{
		delimiter:   bytes.Clone(delimiter),
		maxBuffered: maxBuffered,
		onFrame:     onFrame,
	}
}

// Push appends a chunk and emits every frame it completes.
//
// Returns ErrFrameTooLarge once the buffered remainder exceeds the limit; the
// splitter then refuses further input. A Push made from inside onFrame only
// appends and returns nil: the limit is enforced when the outermost Push
// finishes scanning, and that call reports the error.
func (s *Splitter) Push(chunk []byte) error {
	if s.failed {
		return errors.ErrFrameTooLarge
	}

	if s.onFrame == nil || len(chunk) == 0 {
		return nil
	}

	s.buf = append(s.buf, chunk...)

	// Pushes made while a scan is running (from inside onFrame) are picked up
	// by that scan's loop.
	if s.scanPending {
		return nil
	}

	s.scanPending = true
	s.scan()
	s.scanPending = false

	if s.maxBuffered > 0 && len(s.buf) > s.maxBuffered {
		s.failed = true
		s.buf = nil

		return errors.ErrFrameTooLarge
	}

	return nil
}

// scan emits frames until the remaining buffer holds no delimiter.
func (s *Splitter) scan() {
	for s.onFrame != nil {
		// A delimiter may straddle the previous end of the buffer.
		from := max(s.checkpoint-len(s.delimiter)+1, 0)

		idx := bytes.Index(s.buf[from:], s.delimiter)
		if idx < 0 {
			s.checkpoint = len(s.buf)

			return
		}

		end := from + idx
		frame := bytes.Clone(s.buf[:end])

		s.buf = s.buf[end+len(s.delimiter):]
		s.checkpoint = 0

		s.onFrame(frame)
	}
}

// Buffered returns the number of bytes waiting for a delimiter.
func (s *Splitter) Buffered() int {
	return len(s.buf)
}

// Detach drops the frame callback and the buffer. Later pushes are discarded.
func (s *Splitter) Detach() {
	s.onFrame = nil
	s.buf = nil
	s.checkpoint = 0
}
