// Package pqueue provides a fixed-capacity, array-backed binary heap whose
// items track their own slot, giving O(1) membership checks and in-place
// re-prioritisation.
package pqueue

import "errors"

var (
	// ErrEmpty is returned when popping or peeking an empty queue.
	ErrEmpty = errors.New("pqueue: queue is empty")
	// ErrFull is returned when pushing beyond the queue's capacity.
	ErrFull = errors.New("pqueue: queue is full")
	// ErrNotResident is returned when fixing an item that is not queued.
	ErrNotResident = errors.New("pqueue: item not in queue")
)

// Item is the constraint for queued values.
//
// Compare returns a positive number when the receiver should be served
// before other, negative when after, and zero on ties. The queue stamps each
// resident item with its slot through SetHeapIndex and sets it to -1 once the
// item leaves.
type Item[T any] interface {
	comparable
	Compare(other T) int
	HeapIndex() int
	SetHeapIndex(i int)
}

// Queue is a best-first heap: Pop returns the item that compares highest.
type Queue[T Item[T]] struct {
	items []T
}

// New creates a queue that holds at most capacity items.
func New[T Item[T]](capacity int) *Queue[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue[T]{items: make([]T, 0, capacity)}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int { return len(q.items) }

// Cap returns the maximum number of items.
func (q *Queue[T]) Cap() int { return cap(q.items) }

// Reset empties the queue, keeping its capacity.
func (q *Queue[T]) Reset() {
	var zero T
	for i := range q.items {
		q.items[i].SetHeapIndex(-1)
		q.items[i] = zero
	}
	q.items = q.items[:0]
}

// Push inserts item and restores heap order.
func (q *Queue[T]) Push(item T) error {
	if len(q.items) == cap(q.items) {
		return ErrFull
	}
	item.SetHeapIndex(len(q.items))
	q.items = append(q.items, item)
	q.up(len(q.items) - 1)
	return nil
}

// Pop removes and returns the highest-priority item.
func (q *Queue[T]) Pop() (T, error) {
	var zero T
	n := len(q.items)
	if n == 0 {
		return zero, ErrEmpty
	}

	first := q.items[0]
	last := n - 1
	q.swap(0, last)
	q.items[last] = zero
	q.items = q.items[:last]
	first.SetHeapIndex(-1)

	if len(q.items) > 0 {
		q.down(0)
	}
	return first, nil
}

// Peek returns the highest-priority item without removing it.
func (q *Queue[T]) Peek() (T, error) {
	if len(q.items) == 0 {
		var zero T
		return zero, ErrEmpty
	}
	return q.items[0], nil
}

// Contains reports whether item is currently queued.
func (q *Queue[T]) Contains(item T) bool {
	i := item.HeapIndex()
	return i >= 0 && i < len(q.items) && q.items[i] == item
}

// Fix restores heap order after item's priority changed.
func (q *Queue[T]) Fix(item T) error {
	if !q.Contains(item) {
		return ErrNotResident
	}
	i := item.HeapIndex()
	q.up(i)
	q.down(item.HeapIndex())
	return nil
}

func (q *Queue[T]) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if q.items[i].Compare(q.items[parent]) <= 0 {
			return
		}
		q.swap(i, parent)
		i = parent
	}
}

func (q *Queue[T]) down(i int) {
	n := len(q.items)
	for {
		left := 2*i + 1
		if left >= n {
			return
		}
		best := left
		if right := left + 1; right < n && q.items[right].Compare(q.items[left]) > 0 {
			best = right
		}
		if q.items[i].Compare(q.items[best]) >= 0 {
			return
		}
		q.swap(i, best)
		i = best
	}
}

func (q *Queue[T]) swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].SetHeapIndex(i)
	q.items[j].SetHeapIndex(j)
}
