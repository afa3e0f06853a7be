package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type arenaEntity struct {
	name  string
	value int
}

func TestArenaPointersStableAcrossGrowth(t *testing.T) {
	arena := NewArena[arenaEntity](4)

	// Hold pointers from the first chunk, then force several chunk
	// allocations and verify nothing moved.
	var held []*arenaEntity
	for i := 0; i < 4; i++ {
		_, e := arena.Alloc()
		e.name = "first"
		e.value = i
		held = append(held, e)
	}
	for i := 0; i < 100; i++ {
		_, e := arena.Alloc()
		e.value = 4 + i
	}

	require.Equal(t, 104, arena.Len())
	for i, e := range held {
		assert.Same(t, arena.At(i), e)
		assert.Equal(t, "first", e.name)
		assert.Equal(t, i, e.value)
	}
}

func TestArenaAtOutOfRange(t *testing.T) {
	arena := NewArena[arenaEntity](8)
	assert.Nil(t, arena.At(0))
	arena.Alloc()
	assert.NotNil(t, arena.At(0))
	assert.Nil(t, arena.At(1))
	assert.Nil(t, arena.At(-1))
}

func TestArenaRangeOrder(t *testing.T) {
	arena := NewArena[int](3)
	for i := 0; i < 10; i++ {
		_, v := arena.Alloc()
		*v = i * i
	}

	var seen []int
	arena.Range(func(i int, v *int) bool {
		assert.Equal(t, i*i, *v)
		seen = append(seen, *v)
		return true
	})
	require.Len(t, seen, 10)

	// Early termination stops the walk.
	count := 0
	arena.Range(func(i int, v *int) bool {
		count++
		return count < 3
	})
	assert.Equal(t, 3, count)
}

func TestArenaReset(t *testing.T) {
	arena := NewArena[arenaEntity](2)
	arena.Alloc()
	arena.Alloc()
	arena.Reset()
	assert.Equal(t, 0, arena.Len())
	assert.Nil(t, arena.At(0))
}

func TestRingQueueFIFO(t *testing.T) {
	rq := NewRingQueue[float64](3)
	require.NoError(t, rq.Enqueue(1.5))
	require.NoError(t, rq.Enqueue(2.5))
	require.NoError(t, rq.Enqueue(3.5))
	assert.ErrorIs(t, rq.Enqueue(4.5), ErrQueueFull)

	v, err := rq.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	require.NoError(t, rq.Enqueue(4.5))

	var drained []float64
	rq.Range(func(v float64) { drained = append(drained, v) })
	assert.Equal(t, []float64{2.5, 3.5, 4.5}, drained)

	for !rq.IsEmpty() {
		if _, err := rq.Dequeue(); err != nil {
			t.Fatalf("dequeue: %v", err)
		}
	}
	_, err = rq.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}
