package promise

import (
	"context"
	"errors"
	"sync"
)

// errSelfResolution is returned when a future is resolved with itself.
var errSelfResolution = errors.New("future cannot be resolved with itself")

// State describes where a Future is in its lifecycle.
type State int

const (
	// StatePending futures have not settled yet and may still report progress.
	StatePending State = iota
	// StateFulfilled futures settled with a value.
	StateFulfilled
	// StateRejected futures settled with an error.
	StateRejected
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFulfilled:
		return "fulfilled"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Observer receives the events of a Future. Nil callbacks are skipped.
//
// Callbacks run synchronously on the goroutine that settles or notifies the
// future, or on the subscribing goroutine if the future has already settled.
type Observer struct {
	OnProgress  func(progress any)
	OnFulfilled func(value any)
	OnRejected  func(err error)
}

// Future is a completion primitive: it settles exactly once, with a value or
// an error, and may report zero or more progress events before that.
//
// A Future is itself an Invoker. Operations invoked on a settled future are
// dispatched to its value; operations invoked while it is pending are either
// forwarded to its pipeline target or deferred until it settles.
type Future struct {
	mu        sync.Mutex
	state     State
	value     any
	err       error
	following bool
	observers []Observer
	pipe      Invoker
	done      chan struct{}
}

// Compile-time verification that Future implements Invoker.
var _ Invoker = (*Future)(nil)

// New creates a pending future.
func New() *Future {
	return &Future{done: make(chan struct{})}
}

// NewPipelined creates a pending future whose operations are forwarded to
// target until it settles.
func NewPipelined(target Invoker) *Future {
	f := New()
	f.pipe = target

	return f
}

// Resolved returns a future resolved with v.
func Resolved(v any) *Future {
	f := New()
	f.Resolve(v)

	return f
}

// Rejected returns a future rejected with err.
func Rejected(err error) *Future {
	f := New()
	f.Reject(err)

	return f
}

// Resolve settles the future with v. If v is itself a *Future, this future
// follows it instead: it reports v's progress and settles the way v does.
//
// Returns false if the future was already resolved.
func (f *Future) Resolve(v any) bool {
	other, ok := v.(*Future)
	if !ok {
		return f.settle(StateFulfilled, v, nil, true)
	}

	if other == f {
		return f.Reject(errSelfResolution)
	}

	f.mu.Lock()

	if f.state != StatePending || f.following {
		f.mu.Unlock()

		return false
	}

	f.following = true
	f.mu.Unlock()

	other.Subscribe(Observer{
		OnProgress:  func(p any) { f.progress(p, false) },
		OnFulfilled: func(value any) { f.settle(StateFulfilled, value, nil, false) },
		OnRejected:  func(err error) { f.settle(StateRejected, nil, err, false) },
	})

	return true
}

// Reject settles the future with err. Returns false if it was already
// resolved, including by following another future.
func (f *Future) Reject(err error) bool {
	return f.settle(StateRejected, nil, err, true)
}

// Notify reports progress to the current observers. It has no effect once
// the future is resolved.
func (f *Future) Notify(progress any) bool {
	return f.progress(progress, true)
}

// Subscribe registers an observer. If the future has already settled, the
// matching callback runs immediately.
func (f *Future) Subscribe(o Observer) {
	f.mu.Lock()

	if f.state == StatePending {
		f.observers = append(f.observers, o)
		f.mu.Unlock()

		return
	}

	state, value, err := f.state, f.value, f.err
	f.mu.Unlock()

	deliver(o, state, value, err)
}

// Then is a shorthand for subscribing to settlement only.
func (f *Future) Then(onFulfilled func(any), onRejected func(error)) {
	f.Subscribe(Observer{OnFulfilled: onFulfilled, OnRejected: onRejected})
}

// Await blocks until the future settles or ctx is done.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()

		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done returns a channel that is closed when the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result returns the settled value and error without blocking. The boolean
// reports whether the future has settled.
func (f *Future) Result() (any, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.value, f.state != StatePending, f.err
}

// State returns the current state.
func (f *Future) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.state
}

// Invoke performs op on the eventual value of the future.
func (f *Future) Invoke(ctx context.Context, op string, args []any) *Future {
	f.mu.Lock()

	if f.state == StatePending && f.pipe != nil {
		pipe := f.pipe
		f.mu.Unlock()

		return pipe.Invoke(ctx, op, args)
	}

	f.mu.Unlock()

	result := New()

	f.Subscribe(Observer{
		OnFulfilled: func(value any) {
			// User code must not run on the goroutine that settled f.
			go result.Resolve(Dispatch(ctx, value, op, args))
		},
		OnRejected: func(err error) {
			result.Reject(err)
		},
	})

	return result
}

// Get fetches a named member of the eventual value.
func (f *Future) Get(ctx context.Context, name any) *Future {
	return Get(ctx, f, name)
}

// Call invokes a named method of the eventual value.
func (f *Future) Call(ctx context.Context, method string, args ...any) *Future {
	return Call(ctx, f, method, args...)
}

// Apply calls the eventual value as a function.
func (f *Future) Apply(ctx context.Context, args ...any) *Future {
	return Apply(ctx, f, args...)
}

// settle resolves the future once. Direct settlements come from callers of
// Resolve and Reject and are refused while the future follows another.
func (f *Future) settle(state State, value any, err error, direct bool) bool {
	f.mu.Lock()

	if f.state != StatePending || (direct && f.following) {
		f.mu.Unlock()

		return false
	}

	f.state = state
	f.value = value
	f.err = err
	f.pipe = nil
	observers := f.observers
	f.observers = nil
	close(f.done)
	f.mu.Unlock()

	for _, o := range observers {
		deliver(o, state, value, err)
	}

	return true
}

func (f *Future) progress(p any, direct bool) bool {
	f.mu.Lock()

	if f.state != StatePending || (direct && f.following) {
		f.mu.Unlock()

		return false
	}

	observers := make([]Observer, len(f.observers))
	copy(observers, f.observers)
	f.mu.Unlock()

	for _, o := range observers {
		if o.OnProgress != nil {
			o.OnProgress(p)
		}
	}

	return true
}

func deliver(o Observer, state State, value any, err error) {
	switch state {
	case StateFulfilled:
		if o.OnFulfilled != nil {
			o.OnFulfilled(value)
		}
	case StateRejected:
		if o.OnRejected != nil {
			o.OnRejected(err)
		}
	}
}
