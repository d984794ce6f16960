package window

// RingBuffer is a fixed-capacity circular buffer.
// It is not safe for concurrent use; each tracker owns its own buffers.
type RingBuffer[T any] struct {
	data     []T
	capacity int
	size     int
	head     int // points to the next write position
}

// NewRingBuffer creates a new ring buffer with the specified capacity
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{
		data:     make([]T, capacity),
		capacity: capacity,
	}
}

// Push adds a value to the buffer
// If the buffer is full, the oldest value is overwritten
func (rb *RingBuffer[T]) Push(v T) {
	rb.data[rb.head] = v
	rb.head = (rb.head + 1) % rb.capacity
	if rb.size < rb.capacity {
		rb.size++
	}
}

// Size returns the current number of elements in the buffer
func (rb *RingBuffer[T]) Size() int {
	return rb.size
}

// IsFull returns true if the buffer is at capacity
func (rb *RingBuffer[T]) IsFull() bool {
	return rb.size == rb.capacity
}

// Capacity returns the maximum capacity of the buffer
func (rb *RingBuffer[T]) Capacity() int {
	return rb.capacity
}

// ToSlice returns all values in insertion order (oldest first)
func (rb *RingBuffer[T]) ToSlice() []T {
	result := make([]T, rb.size)
	start := rb.start()
	for i := 0; i < rb.size; i++ {
		result[i] = rb.data[(start+i)%rb.capacity]
	}
	return result
}

// Last returns the most recent value
func (rb *RingBuffer[T]) Last() (T, bool) {
	var zero T
	if rb.size == 0 {
		return zero, false
	}
	return rb.data[(rb.head-1+rb.capacity)%rb.capacity], true
}

// First returns the oldest value
func (rb *RingBuffer[T]) First() (T, bool) {
	var zero T
	if rb.size == 0 {
		return zero, false
	}
	return rb.data[rb.start()], true
}

// Clear empties the buffer
func (rb *RingBuffer[T]) Clear() {
	rb.size = 0
	rb.head = 0
}

func (rb *RingBuffer[T]) start() int {
	if rb.size == rb.capacity {
		return rb.head
	}
	return 0
}
