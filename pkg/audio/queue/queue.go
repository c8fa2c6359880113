// Package queue provides an unbounded, goroutine-safe FIFO with a
// context-aware blocking receive.
//
// Go channels are bounded, so a producer feeding a full channel either blocks
// or drops. The merge pipeline needs the opposite trade-off: a producer must
// never stall on a slow consumer, and a consumer must be able to abandon a
// pending receive without losing an item. [Queue.Pop] either dequeues an item
// or returns an error, never both, so cancelling a wait leaves the queue
// untouched.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by [Queue.Push] and [Queue.Pop] once [Queue.Close]
// has been called.
var ErrClosed = errors.New("queue: closed")

// Queue is an unbounded FIFO. The zero value is ready to use.
//
// All methods are safe for concurrent use.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	wake   chan struct{} // closed on the next Push or Close; nil when nobody waits
	closed bool
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push appends v to the tail of the queue. It never blocks.
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, v)
	q.signalLocked()
	return nil
}

// Pop removes and returns the head of the queue, blocking until an item is
// available, the queue is closed, or ctx is done. On error nothing has been
// dequeued.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if v, ok := q.popLocked(); ok {
			q.mu.Unlock()
			return v, nil
		}
		if q.closed {
			q.mu.Unlock()
			var zero T
			return zero, ErrClosed
		}
		if q.wake == nil {
			q.wake = make(chan struct{})
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// TryPop removes and returns the head of the queue without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear discards every buffered item and returns how many were dropped.
// The queue stays open.
func (q *Queue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	q.items = nil
	return n
}

// Close discards buffered items, wakes all blocked receivers and makes every
// later Push and Pop fail with [ErrClosed]. Close is idempotent and returns
// the number of items dropped.
func (q *Queue[T]) Close() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0
	}
	q.closed = true
	n := len(q.items)
	q.items = nil
	q.signalLocked()
	return n
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// popLocked dequeues the head if present. Must be called with q.mu held.
func (q *Queue[T]) popLocked() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero // release the reference for the GC
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return v, true
}

// signalLocked wakes every goroutine blocked in Pop. Must be called with q.mu
// held.
func (q *Queue[T]) signalLocked() {
	if q.wake != nil {
		close(q.wake)
		q.wake = nil
	}
}
