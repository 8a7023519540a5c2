package render

// Ring is a FIFO of reusable back-buffer slots. Slots come out in the
// order they were returned.
type Ring[T any] struct {
	slots []T
	head  int
	count int
}

// NewRing creates a ring holding every slot as free.
func NewRing[T any](slots ...T) *Ring[T] {
	r := &Ring[T]{slots: make([]T, len(slots))}
	copy(r.slots, slots)
	r.count = len(slots)
	return r
}

// Cap returns the total number of slots.
func (r *Ring[T]) Cap() int {
	return len(r.slots)
}

// Free returns the number of slots available to Acquire.
func (r *Ring[T]) Free() int {
	return r.count
}

// Front returns the next slot without removing it.
func (r *Ring[T]) Front() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.slots[r.head], true
}

// Acquire removes and returns the oldest free slot. It reports false when
// every slot is in flight.
func (r *Ring[T]) Acquire() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	v := r.slots[r.head]
	r.slots[r.head] = zero
	r.head = (r.head + 1) % len(r.slots)
	r.count--
	return v, true
}

// Release returns a slot to the back of the ring. It reports false if the
// ring is already full.
func (r *Ring[T]) Release(v T) bool {
	if r.count == len(r.slots) {
		return false
	}
	r.slots[(r.head+r.count)%len(r.slots)] = v
	r.count++
	return true
}
