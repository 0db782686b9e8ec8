// Package queue holds rows between the ingest path and the database writer.
package queue

import "sync"

// Queue is a mutex guarded FIFO. Writers take rows off the front in batches
// and hand them back with Requeue when a write fails, so row order survives
// a failed flush.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	peak  int
}

func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push appends rows at the back.
func (q *Queue[T]) Push(items ...T) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, items...)
	q.peak = max(q.peak, len(q.items))
	q.mu.Unlock()
}

// Requeue puts rows back at the front, ahead of anything pushed since they
// were drained.
func (q *Queue[T]) Requeue(items ...T) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	merged := make([]T, 0, len(items)+len(q.items))
	merged = append(merged, items...)
	q.items = append(merged, q.items...)
	q.peak = max(q.peak, len(q.items))
}

// Drain removes up to n rows from the front. n <= 0 takes everything.
func (q *Queue[T]) Drain(n int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 || n >= len(q.items) {
		out := q.items
		q.items = nil
		return out
	}
	out := make([]T, n)
	copy(out, q.items)
	q.items = q.items[n:]
	return out
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}

// Peak is the largest backlog seen since New.
func (q *Queue[T]) Peak() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.peak
}
