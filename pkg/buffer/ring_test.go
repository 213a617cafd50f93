package buffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_AppendAndSnapshot(t *testing.T) {
	r := NewRing[int](3)

	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 3, r.Cap())

	r.Append(1)
	r.Append(2)
	assert.Equal(t, []int{1, 2}, r.Snapshot())
	assert.Equal(t, 2, r.Len())
}

func TestRing_DropOldestOnOverflow(t *testing.T) {
	r := NewRing[int](3)

	for i := 1; i <= 3; i++ {
		assert.False(t, r.Append(i))
	}
	assert.True(t, r.Append(4))
	assert.True(t, r.Append(5))

	assert.Equal(t, []int{3, 4, 5}, r.Snapshot())
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, uint64(2), r.Dropped())
}

func TestRing_Last(t *testing.T) {
	r := NewRing[int](5)
	for i := 1; i <= 5; i++ {
		r.Append(i)
	}

	assert.Equal(t, []int{4, 5}, r.Last(2))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, r.Last(10))
	assert.Nil(t, r.Last(0))
}

func TestRing_Clear(t *testing.T) {
	r := NewRing[int](4)
	r.Append(1)
	r.Append(2)

	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Snapshot())
}

func TestRing_MinimumCapacity(t *testing.T) {
	r := NewRing[string](0)
	require.Equal(t, 1, r.Cap())

	r.Append("a")
	r.Append("b")
	assert.Equal(t, []string{"b"}, r.Snapshot())
}

func TestRing_ConcurrentAppendSnapshot(t *testing.T) {
	r := NewRing[int](64)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.Append(base*1000 + i)
				_ = r.Snapshot()
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 64, r.Len())
}
