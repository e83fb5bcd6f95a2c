// Package promise implements the single-resolution deferred result that
// every store operation returns. A promise settles exactly once, either
// with a value or with an error, when the underlying engine call delivers
// its result.
package promise

import (
	"context"
	"sync"
)

// Void is the result type of operations that produce no value.
type Void = struct{}

// Promise is a deferred result. It is created pending and settles exactly
// once; later attempts to settle it are ignored.
type Promise[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// New returns a pending promise along with its resolve and reject
// functions. Only the first call to either of them settles the promise.
func New[T any]() (*Promise[T], func(T), func(error)) {
	p := &Promise[T]{
		done: make(chan struct{}),
	}

	resolve := func(value T) {
		p.once.Do(func() {
			p.value = value
			close(p.done)
		})
	}

	reject := func(err error) {
		p.once.Do(func() {
			p.err = err
			close(p.done)
		})
	}

	return p, resolve, reject
}

// Go runs fn in its own goroutine and returns a promise that settles with
// its result.
func Go[T any](fn func() (T, error)) *Promise[T] {
	p, resolve, reject := New[T]()

	go func() {
		value, err := fn()
		if err != nil {
			reject(err)
			return
		}

		resolve(value)
	}()

	return p
}

// Resolved returns a promise already settled with the value.
func Resolved[T any](value T) *Promise[T] {
	p, resolve, _ := New[T]()
	resolve(value)

	return p
}

// Rejected returns a promise already settled with the error.
func Rejected[T any](err error) *Promise[T] {
	p, _, reject := New[T]()
	reject(err)

	return p
}

// Done returns a channel that is closed when the promise settles.
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

// Await blocks until the promise settles and returns its result, or
// returns the context error if the context ends first. The promise keeps
// its result so Await can be called multiple times.
func (p *Promise[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T

		return zero, ctx.Err()
	}
}
