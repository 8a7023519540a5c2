package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingHoldsExactlyN(t *testing.T) {
	for _, n := range []int{1, 2} {
		slots := make([]int, n)
		for i := range slots {
			slots[i] = i
		}
		r := NewRing(slots...)
		assert.Equal(t, n, r.Cap())
		assert.Equal(t, n, r.Free())

		for i := 0; i < n; i++ {
			v, ok := r.Acquire()
			require.True(t, ok, "slot %d of %d", i, n)
			assert.Equal(t, i, v)
		}
		_, ok := r.Acquire()
		assert.False(t, ok, "ring of %d must report no free slot", n)
		assert.Equal(t, 0, r.Free())
	}
}

func TestRingFIFO(t *testing.T) {
	r := NewRing("a", "b")

	a, _ := r.Acquire()
	b, _ := r.Acquire()
	require.True(t, r.Release(b))
	require.True(t, r.Release(a))
	assert.False(t, r.Release("c"), "full ring rejects extra slots")

	front, ok := r.Front()
	require.True(t, ok)
	assert.Equal(t, "b", front)

	first, _ := r.Acquire()
	second, _ := r.Acquire()
	assert.Equal(t, []string{"b", "a"}, []string{first, second})
}
