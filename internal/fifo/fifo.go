// Package fifo provides an unbounded, closable asynchronous FIFO queue.
//
// Put never blocks. Get suspends the caller until an item is available, the
// context is cancelled, or the queue closes. Closing is permanent and refuses
// further puts, but items put before the close are still handed out in order;
// only once they are drained does Get fail with the close reason. The Done
// channel is closed exactly once, when Close is called, so teardown elsewhere
// can be driven off that single signal.
package fifo

import (
	"context"
	"sync"

	"github.com/wagiedev/qconn/internal/errors"
)

// Queue is a multi-producer FIFO of items of type T.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{} // closed and replaced whenever items or state change

	closeOnce sync.Once
	done      chan struct{}
	closeErr  error
}

// New creates an empty, open queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items:  make([]T, 0, 16),
		notify: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Put appends an item. Returns false if the queue is closed.
func (q *Queue[T]) Put(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.isClosed() {
		return false
	}

	q.items = append(q.items, item)
	q.wake()

	return true
}

// Get returns the next item in FIFO order, waiting while the queue is empty.
// After Close it keeps returning buffered items, then the close reason.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	var zero T

	for {
		q.mu.Lock()

		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()

			return item, nil
		}

		if q.isClosed() {
			err := q.closeErr
			q.mu.Unlock()

			return zero, err
		}

		wait := q.notify
		q.mu.Unlock()

		select {
		case <-wait:
		case <-q.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close permanently closes the queue with an optional reason. Items already
// buffered stay available to Get.
//
// Close is idempotent: every call returns the outcome of the first one, i.e.
// the reason Get reports after closing.
func (q *Queue[T]) Close(err error) error {
	q.closeOnce.Do(func() {
		q.mu.Lock()

		if err == nil {
			err = errors.ErrConnectionClosed
		}

		q.closeErr = err
		close(q.done)
		q.wake()
		q.mu.Unlock()
	})

	return q.Err()
}

// Done returns a channel that is closed when the queue closes, possibly
// before its buffered items are drained.
func (q *Queue[T]) Done() <-chan struct{} {
	return q.done
}

// Err returns the close reason, or nil while the queue is open.
func (q *Queue[T]) Err() error {
	select {
	case <-q.done:
	default:
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	return q.closeErr
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// isClosed reports whether done is closed. Caller holds mu.
func (q *Queue[T]) isClosed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// wake releases every goroutine waiting in Get. Caller holds mu.
func (q *Queue[T]) wake() {
	close(q.notify)
	q.notify = make(chan struct{})
}
