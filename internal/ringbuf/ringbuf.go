// Package ringbuf implements a bounded ring buffer for streaming telemetry.
// When the buffer is full, new elements are rejected rather than overwriting
// old ones, so producers get backpressure instead of silent loss.
package ringbuf

import "sync"

// Ring is a fixed-capacity FIFO ring buffer safe for concurrent use.
type Ring[T any] struct {
	mu    sync.Mutex
	buf   []T
	head  int
	count int
}

// New creates a ring buffer with the given capacity. Capacity must be > 0.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// TryEnqueue appends v and reports whether it fit.
func (r *Ring[T]) TryEnqueue(v T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == len(r.buf) {
		return false
	}
	r.buf[(r.head+r.count)%len(r.buf)] = v
	r.count++
	return true
}

// TryDequeue removes and returns the oldest element.
func (r *Ring[T]) TryDequeue() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.count == 0 {
		return zero, false
	}
	v := r.buf[r.head]
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.count--
	return v, true
}

// Drain removes and returns all buffered elements in FIFO order.
func (r *Ring[T]) Drain() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, 0, r.count)
	for r.count > 0 {
		out = append(out, r.buf[r.head])
		var zero T
		r.buf[r.head] = zero
		r.head = (r.head + 1) % len(r.buf)
		r.count--
	}
	return out
}

// Len returns the number of buffered elements.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the buffer capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}
