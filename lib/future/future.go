// Package future provides a single-assignment future. The first call to
// Resolve or Reject settles it, every later call is ignored, so several
// completion signals can race to settle the same future safely.
package future

import (
	"context"
	"sync/atomic"
)

// Future holds the outcome of one asynchronous operation
type Future[T any] struct {
	settled atomic.Bool
	done    chan struct{}
	value   T
	err     error
}

// New creates an unsettled future
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future that is already resolved with v
func Resolved[T any](v T) *Future[T] {
	f := New[T]()
	f.Resolve(v)
	return f
}

// Rejected returns a future that is already rejected with err
func Rejected[T any](err error) *Future[T] {
	f := New[T]()
	f.Reject(err)
	return f
}

// Resolve settles the future with v. It reports whether this call settled it.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (f *Future[T]) Resolve(v T) bool {
	if !f.settled.CompareAndSwap(false, true) {
		return false
	}
	f.value = v
	close(f.done)
	return true
}

// Reject settles the future with err. It reports whether this call settled it.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (f *Future[T]) Reject(err error) bool {
	if !f.settled.CompareAndSwap(false, true) {
		return false
	}
	f.err = err
	close(f.done)
	return true
}

// Done is closed once the future is settled
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether Resolve or Reject was called
func (f *Future[T]) Settled() bool {
	return f.settled.Load()
}

// Await waits for the outcome. A done context only ends the wait, the
// operation behind the future keeps running.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the outcome without waiting. ok is false while unsettled.
func (f *Future[T]) Result() (v T, err error, ok bool) {
	select {
	case <-f.done:
		return f.value, f.err, true
	default:
		var zero T
		return zero, nil, false
	}
}
