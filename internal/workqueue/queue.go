// Package workqueue provides a tagged-priority queue and a pausable,
// bounded-concurrency worker pool built on it.
//
// Higher priorities are served first. Items with equal priority are served
// in insertion order.
package workqueue

import "container/heap"

type entry[T any] struct {
	priority int
	seq      uint64
	value    T
}

type entries[T any] []entry[T]

func (e entries[T]) Len() int { return len(e) }

func (e entries[T]) Less(i, j int) bool {
	if e[i].priority != e[j].priority {
		return e[i].priority > e[j].priority
	}
	return e[i].seq < e[j].seq
}

func (e entries[T]) Swap(i, j int) { e[i], e[j] = e[j], e[i] }

func (e *entries[T]) Push(x any) { *e = append(*e, x.(entry[T])) }

func (e *entries[T]) Pop() any {
	old := *e
	n := len(old)
	it := old[n-1]
	var zero entry[T]
	old[n-1] = zero
	*e = old[:n-1]
	return it
}

// Queue is a priority queue with stable insertion-order tie-break.
// It is not safe for concurrent use.
type Queue[T any] struct {
	items entries[T]
	seq   uint64
}

// Push adds value with the given priority.
func (q *Queue[T]) Push(priority int, value T) {
	q.seq++
	heap.Push(&q.items, entry[T]{priority: priority, seq: q.seq, value: value})
}

// Pop removes and returns the highest-priority value.
// The second result is false when the queue is empty.
func (q *Queue[T]) Pop() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	it := heap.Pop(&q.items).(entry[T])
	return it.value, true
}

// Peek returns the priority of the next value without removing it.
func (q *Queue[T]) Peek() (int, bool) {
	if len(q.items) == 0 {
		return 0, false
	}
	return q.items[0].priority, true
}

// Len returns the number of queued values.
func (q *Queue[T]) Len() int {
	return len(q.items)
}
