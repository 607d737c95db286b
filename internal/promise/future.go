// Package promise provides the awaitable Result used by every capability and
// the Promisify adapter for callback-style MiniGame natives.
package promise

import (
	"context"
	"sync"
)

// Result is a settled outcome: Err is nil for Ok.
type Result[T any] struct {
	Value T
	Err   error
}

// Ok builds a successful result.
func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

// Err builds a failed result.
func Err[T any](err error) Result[T] { return Result[T]{Err: err} }

// Future is a settle-once result slot. The first Settle wins; later writes
// are dropped.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	res  Result[T]
}

// New returns an unsettled future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future already settled with v.
func Resolved[T any](v T) *Future[T] {
	f := New[T]()
	f.Resolve(v)
	return f
}

// Rejected returns a future already settled with err.
func Rejected[T any](err error) *Future[T] {
	f := New[T]()
	f.Reject(err)
	return f
}

// Settle stores r if the future is still pending and reports whether it did.
func (f *Future[T]) Settle(r Result[T]) bool {
	settled := false
	f.once.Do(func() {
		f.res = r
		settled = true
		close(f.done)
	})
	return settled
}

// Resolve settles the future with v.
func (f *Future[T]) Resolve(v T) bool { return f.Settle(Ok(v)) }

// Reject settles the future with err.
func (f *Future[T]) Reject(err error) bool { return f.Settle(Err[T](err)) }

// Done is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Peek returns the result without blocking. ok is false while pending.
func (f *Future[T]) Peek() (r Result[T], ok bool) {
	select {
	case <-f.done:
		return f.res, true
	default:
		return r, false
	}
}

// Await blocks until the future settles or ctx is done. A cancelled ctx
// abandons the wait; it does not settle the future.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.res.Value, f.res.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then calls fn with the result once settled, on a new goroutine.
func (f *Future[T]) Then(fn func(Result[T])) {
	go func() {
		<-f.done
		fn(f.res)
	}()
}

// Map derives a future whose value is fn applied to f's value. Errors pass
// through unchanged.
func Map[T, U any](f *Future[T], fn func(T) U) *Future[U] {
	out := New[U]()
	f.Then(func(r Result[T]) {
		if r.Err != nil {
			out.Reject(r.Err)
			return
		}
		out.Resolve(fn(r.Value))
	})
	return out
}

// Discard derives a value-less future from f.
func Discard[T any](f *Future[T]) *Future[struct{}] {
	return Map(f, func(T) struct{} { return struct{}{} })
}
