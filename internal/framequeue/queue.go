// Package framequeue implements the unbounded FIFO that hands work from the
// ingest path to the decode worker. Pushing never blocks; popping blocks
// until an item is available or the queue is closed.
package framequeue

import "sync"

// Queue is a multi-producer, single-consumer FIFO. Close acts as the
// shutdown signal: items pushed before Close are still delivered, pushes
// after Close are rejected, and Pop reports ok=false once the closed queue
// is empty.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	closed bool
}

// New returns an empty open queue.
func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends v and wakes the consumer. It returns false if the queue has
// been closed.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.cond.Signal()
	q.mu.Unlock()
	return true
}

// Pop removes and returns the oldest item, blocking while the queue is
// empty and open.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		// Drop the consumed prefix once drained.
		q.items = nil
	}
	return v, true
}

// Close marks the queue closed and wakes any waiting consumer. Calling it
// more than once is a no-op.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.cond.Broadcast()
	}
	q.mu.Unlock()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
