// Package util provides small concurrency helpers shared by the engine layers.
//
// LockFreeMPSC is a lock-free multi-producer single-consumer queue.
//
// Features and Guarantees:
//
//   - Lock-Free linking: producers append nodes with atomic operations only,
//     waking a parked consumer takes a short lock
//   - Unbounded Size: the queue grows as needed, limited only by available memory
//   - Per-producer FIFO: values pushed by one goroutine are popped in push order.
//     Values pushed concurrently by different goroutines are ordered by whichever
//     producer linked its node first.
//   - Single Consumer: exactly one goroutine may call Pop and Wait.
package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node represents a single element in the queue
type node[T any] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// LockFreeMPSC is a lock-free multi-producer single-consumer queue.
// The consumer pulls values with Pop and parks on Wait when the queue is empty.
type LockFreeMPSC[T any] struct {
	head   atomic.Pointer[node[T]] // owned by the consumer
	tail   atomic.Pointer[node[T]]
	closed atomic.Bool
	length atomic.Int64

	// parking for the consumer
	mu   sync.Mutex
	cond *sync.Cond
}

// NewLockFreeMPSC creates an empty queue.
func NewLockFreeMPSC[T any]() *LockFreeMPSC[T] {
	sentinel := &node[T]{}

	q := &LockFreeMPSC[T]{}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	return q
}

// Push adds an item to the queue.
// Returns false if the value is nil or the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *LockFreeMPSC[T]) Push(value *T) bool {
	if value == nil || q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}

	var backoff uint8
	for {
		tailNode := q.tail.Load()
		next := tailNode.next.Load()
		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// a failed CAS here means another producer already moved the tail
				q.tail.CompareAndSwap(tailNode, newNode)
				q.length.Add(1)

				q.mu.Lock()
				q.cond.Signal()
				q.mu.Unlock()
				return true
			}
		} else {
			// help a producer that linked its node but did not move the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		// spin a little under low contention, yield under high contention
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// Pop removes the oldest value. The boolean is false if the queue is empty.
//
// Thread-safety: only the single consumer goroutine may call Pop.
func (q *LockFreeMPSC[T]) Pop() (*T, bool) {
	head := q.head.Load()
	next := head.next.Load()
	if next == nil {
		return nil, false
	}

	value := next.value
	q.head.Store(next)
	next.value = nil
	q.length.Add(-1)

	return value, true
}

// Wait blocks until the queue has at least one value or is closed.
// It returns false once the queue is closed and drained.
//
// Thread-safety: only the single consumer goroutine may call Wait.
func (q *LockFreeMPSC[T]) Wait() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.head.Load().next.Load() == nil {
		if q.closed.Load() {
			return false
		}
		q.cond.Wait()
	}
	return true
}

// Close prevents further pushes. Values already queued can still be popped.
func (q *LockFreeMPSC[T]) Close() {
	q.closed.Store(true)

	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
}

// IsClosed returns true if the queue is closed.
func (q *LockFreeMPSC[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns an approximate number of queued values.
func (q *LockFreeMPSC[T]) Len() int {
	return int(q.length.Load())
}
