package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingBuffer_OverwritesOldest(t *testing.T) {
	rb := NewRingBuffer[int](3)

	_, ok := rb.Last()
	assert.False(t, ok)

	for i := 1; i <= 5; i++ {
		rb.Push(i)
	}

	assert.True(t, rb.IsFull())
	assert.Equal(t, 3, rb.Size())
	assert.Equal(t, []int{3, 4, 5}, rb.ToSlice())

	first, _ := rb.First()
	last, _ := rb.Last()
	assert.Equal(t, 3, first)
	assert.Equal(t, 5, last)

	rb.Clear()
	assert.Equal(t, 0, rb.Size())
	assert.Empty(t, rb.ToSlice())
}

func TestRingBuffer_PartiallyFilled(t *testing.T) {
	rb := NewRingBuffer[float64](4)
	rb.Push(1.5)
	rb.Push(2.5)

	assert.False(t, rb.IsFull())
	assert.Equal(t, []float64{1.5, 2.5}, rb.ToSlice())
	first, _ := rb.First()
	assert.Equal(t, 1.5, first)
}
