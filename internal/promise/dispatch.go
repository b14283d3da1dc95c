package promise

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"sync"

	"github.com/wagiedev/qconn/internal/errors"
)

// Operation names understood by Dispatch and forwarded between peers.
const (
	OpGet    = "get"
	OpSet    = "set"
	OpDelete = "delete"
	OpPost   = "post"
	OpApply  = "apply"
	OpKeys   = "keys"
)

// Invoker is anything an operation can be sent to: a local future, a remote
// proxy, or a custom object.
type Invoker interface {
	Invoke(ctx context.Context, op string, args []any) *Future
}

// Func is a callable value. Functions of this signature can be called
// through "apply" and "post", locally or by a remote peer.
type Func func(ctx context.Context, args ...any) (any, error)

// Object handles operations itself instead of using the generic map, slice
// and function semantics of Dispatch.
type Object interface {
	Dispatch(ctx context.Context, op string, args []any) (any, error)
}

// Dispatch performs op on a local value and returns a future for the result.
//
// Supported values are map[string]any (get, set, delete, keys, post),
// []any (get by index, keys), Func and plain functions of the same signature
// (apply), Invokers, and Objects. Anything else rejects with
// ErrUnsupportedOperation. A result that is itself a *Future is adopted.
//
// Dispatch does not synchronize access to maps and slices; use
// DispatchLocked when several goroutines operate on the same value.
func Dispatch(ctx context.Context, value any, op string, args []any) *Future {
	return DispatchLocked(ctx, noLock{}, value, op, args)
}

// DispatchLocked is Dispatch with every read and write of map and slice
// values made while holding mu. Functions and Objects are called without
// the lock, so a slow handler does not block other operations.
func DispatchLocked(ctx context.Context, mu sync.Locker, value any, op string, args []any) (result *Future) {
	defer func() {
		if r := recover(); r != nil {
			result = Rejected(fmt.Errorf("panic during %s: %v", op, r))
		}
	}()

	switch v := value.(type) {
	case Invoker:
		return v.Invoke(ctx, op, args)
	case Object:
		return settled(v.Dispatch(ctx, op, args))
	}

	switch op {
	case OpGet:
		return settled(locked(mu, func() (any, error) { return get(value, arg(args, 0)) }))
	case OpSet:
		return settled(locked(mu, func() (any, error) { return nil, set(value, arg(args, 0), arg(args, 1)) }))
	case OpDelete:
		return settled(locked(mu, func() (any, error) { return nil, del(value, arg(args, 0)) }))
	case OpKeys:
		return settled(locked(mu, func() (any, error) { return keys(value) }))
	case OpPost:
		callArgs := argList(arg(args, 1))

		name, ok := arg(args, 0).(string)
		if !ok {
			return call(ctx, value, callArgs)
		}

		member, err := locked(mu, func() (any, error) { return get(value, name) })
		if err != nil {
			return Rejected(err)
		}

		return call(ctx, member, callArgs)
	case OpApply:
		return call(ctx, value, argList(arg(args, 1)))
	default:
		return Rejected(fmt.Errorf("%w: %q", errors.ErrUnsupportedOperation, op))
	}
}

// Get fetches a named member of the value behind target.
func Get(ctx context.Context, target Invoker, name any) *Future {
	return target.Invoke(ctx, OpGet, []any{name})
}

// Set assigns a named member of the value behind target.
func Set(ctx context.Context, target Invoker, name string, value any) *Future {
	return target.Invoke(ctx, OpSet, []any{name, value})
}

// Delete removes a named member of the value behind target.
func Delete(ctx context.Context, target Invoker, name string) *Future {
	return target.Invoke(ctx, OpDelete, []any{name})
}

// Keys lists the member names of the value behind target.
func Keys(ctx context.Context, target Invoker) *Future {
	return target.Invoke(ctx, OpKeys, []any{})
}

// Call invokes a named method of the value behind target.
func Call(ctx context.Context, target Invoker, method string, args ...any) *Future {
	return target.Invoke(ctx, OpPost, []any{method, argsOrEmpty(args)})
}

// Apply calls the value behind target as a function.
func Apply(ctx context.Context, target Invoker, args ...any) *Future {
	return target.Invoke(ctx, OpApply, []any{nil, argsOrEmpty(args)})
}

// noLock is the Locker used by Dispatch.
type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}

func locked(mu sync.Locker, fn func() (any, error)) (any, error) {
	mu.Lock()
	defer mu.Unlock()

	return fn()
}

func settled(v any, err error) *Future {
	if err != nil {
		return Rejected(err)
	}

	return Resolved(v)
}

func call(ctx context.Context, fn any, args []any) *Future {
	switch f := fn.(type) {
	case Func:
		return settled(f(ctx, args...))
	case func(context.Context, ...any) (any, error):
		return settled(f(ctx, args...))
	case Invoker:
		return f.Invoke(ctx, OpApply, []any{nil, args})
	case Object:
		return settled(f.Dispatch(ctx, OpApply, []any{nil, args}))
	default:
		return Rejected(fmt.Errorf("%w: %T is not callable", errors.ErrUnsupportedOperation, fn))
	}
}

func get(value any, name any) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		key, ok := name.(string)
		if !ok {
			key = fmt.Sprint(name)
		}

		return v[key], nil
	case []any:
		if s, ok := name.(string); ok && s == "length" {
			return float64(len(v)), nil
		}

		i, ok := index(name)
		if !ok || i < 0 || i >= len(v) {
			return nil, nil
		}

		return v[i], nil
	default:
		return nil, fmt.Errorf("%w: cannot get %v of %T", errors.ErrUnsupportedOperation, name, value)
	}
}

func set(value any, name any, member any) error {
	m, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: cannot set %v of %T", errors.ErrUnsupportedOperation, name, value)
	}

	key, ok := name.(string)
	if !ok {
		key = fmt.Sprint(name)
	}

	m[key] = member

	return nil
}

func del(value any, name any) error {
	m, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: cannot delete %v of %T", errors.ErrUnsupportedOperation, name, value)
	}

	key, ok := name.(string)
	if !ok {
		key = fmt.Sprint(name)
	}

	delete(m, key)

	return nil
}

func keys(value any) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		names := make([]string, 0, len(v))
		for k := range v {
			names = append(names, k)
		}

		slices.Sort(names)

		result := make([]any, len(names))
		for i, k := range names {
			result[i] = k
		}

		return result, nil
	case []any:
		result := make([]any, len(v))
		for i := range v {
			result[i] = strconv.Itoa(i)
		}

		return result, nil
	default:
		return nil, fmt.Errorf("%w: cannot list keys of %T", errors.ErrUnsupportedOperation, value)
	}
}

func index(name any) (int, bool) {
	switch n := name.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}

		return int(n), true
	case string:
		i, err := strconv.Atoi(n)

		return i, err == nil
	default:
		return 0, false
	}
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}

	return nil
}

func argList(v any) []any {
	if list, ok := v.([]any); ok {
		return list
	}

	return []any{}
}

func argsOrEmpty(args []any) []any {
	if args == nil {
		return []any{}
	}

	return args
}
