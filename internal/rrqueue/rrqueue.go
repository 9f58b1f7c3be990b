// Package rrqueue provides a fixed-capacity, overwrite-on-overflow mailbox
// for many producers and a single consumer.
//
// Each queue is two buffers: one is always being filled while the other holds
// the snapshot handed to the last Drain. Producers only ever append, so the
// only shared step is the buffer swap, which is done under a short lock that
// is never held across I/O.
package rrqueue

import "sync"

// Queue is a round-robin double-buffer queue of capacity N.
// Enqueue never blocks on the consumer and never fails; once N items have
// been written in a fill cycle, new items overwrite the oldest ones.
type Queue[T any] struct {
	mu      sync.Mutex
	bufs    [2][]T
	fill    int  // index into bufs of the buffer being filled
	i       int  // next slot to write in the fill buffer, in [0, N]
	wrapped bool // true if the fill buffer has round-robined this cycle
}

// New creates a queue holding at most n items per drain cycle.
func New[T any](n int) *Queue[T] {
	if n <= 0 {
		panic("rrqueue: capacity must be positive")
	}
	return &Queue[T]{
		bufs: [2][]T{make([]T, n), make([]T, n)},
	}
}

// Cap returns the per-cycle capacity.
func (q *Queue[T]) Cap() int {
	return len(q.bufs[0])
}

// Enqueue copies item into the current fill buffer.
func (q *Queue[T]) Enqueue(item T) {
	q.mu.Lock()
	buf := q.bufs[q.fill]
	if q.i == len(buf) {
		q.i = 0
		q.wrapped = true
	}
	buf[q.i] = item
	q.i++
	q.mu.Unlock()
}

// Len returns the number of items a Drain would currently return.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.wrapped {
		return len(q.bufs[q.fill])
	}
	return q.i
}

// Drain returns everything written since the previous Drain, oldest first,
// and swaps producers onto the other buffer. ok is false if nothing was
// written. wrapped reports that items were lost to overflow.
//
// Drain must only be called from a single consumer goroutine.
func (q *Queue[T]) Drain() (items []T, wrapped bool, ok bool) {
	q.mu.Lock()
	if q.i == 0 && !q.wrapped {
		q.mu.Unlock()
		return nil, false, false
	}
	buf := q.bufs[q.fill]
	top := q.i
	wrapped = q.wrapped
	q.fill = 1 - q.fill
	q.i = 0
	q.wrapped = false
	q.mu.Unlock()

	// buf is now owned by this call until the next swap, which only the
	// (single) consumer can trigger.
	count := top
	if wrapped {
		count = len(buf)
	}
	items = make([]T, 0, count)
	if wrapped {
		items = append(items, buf[top:]...)
	}
	items = append(items, buf[:top]...)
	clear(buf)
	return items, wrapped, true
}
