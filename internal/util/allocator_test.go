package util

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntAllocatorBasic(t *testing.T) {
	alloc := NewIntAllocator(1, 10)

	id1, ok := alloc.Allocate()
	require.True(t, ok)
	assert.GreaterOrEqual(t, id1, 1)
	assert.LessOrEqual(t, id1, 10)

	id2, ok := alloc.Allocate()
	require.True(t, ok)
	assert.NotEqual(t, id1, id2)

	assert.True(t, alloc.Free(id1))

	id3, ok := alloc.Allocate()
	require.True(t, ok)
	assert.Equal(t, id1, id3, "lowest free id should be reused")
}

func TestIntAllocatorExhaustion(t *testing.T) {
	alloc := NewIntAllocator(1, 5)

	allocated := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		id, ok := alloc.Allocate()
		require.True(t, ok)
		allocated = append(allocated, id)
	}

	_, ok := alloc.Allocate()
	assert.False(t, ok, "allocator should report exhaustion (ChannelExhausted at call site)")

	assert.True(t, alloc.Free(allocated[0]))

	_, ok = alloc.Allocate()
	assert.True(t, ok)
}

func TestIntAllocatorReserve(t *testing.T) {
	alloc := NewIntAllocator(1, 10)

	require.True(t, alloc.Reserve(5))

	allocated := make(map[int]bool)
	for i := 0; i < 9; i++ {
		id, ok := alloc.Allocate()
		require.True(t, ok)
		assert.NotEqual(t, 5, id)
		allocated[id] = true
	}
	assert.Len(t, allocated, 9)
}

func TestIntAllocatorConcurrent(t *testing.T) {
	alloc := NewIntAllocator(1, 100)

	const goroutines = 10
	const perGoroutine = 5

	var wg sync.WaitGroup
	allocated := make(chan int, goroutines*perGoroutine)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				if id, ok := alloc.Allocate(); ok {
					allocated <- id
				}
			}
		}()
	}
	wg.Wait()
	close(allocated)

	seen := make(map[int]bool)
	for id := range allocated {
		assert.False(t, seen[id], "id %d allocated twice", id)
		seen[id] = true
	}
}

func TestIntAllocatorAvailable(t *testing.T) {
	alloc := NewIntAllocator(1, 10)
	assert.Equal(t, 10, alloc.Available())

	id, _ := alloc.Allocate()
	assert.Equal(t, 9, alloc.Available())

	alloc.Free(id)
	assert.Equal(t, 10, alloc.Available())
}

func TestIntAllocatorInvalidFree(t *testing.T) {
	alloc := NewIntAllocator(1, 10)

	assert.False(t, alloc.Free(0))
	assert.False(t, alloc.Free(11))

	id, _ := alloc.Allocate()
	alloc.Free(id)
	assert.False(t, alloc.Free(id), "double free should fail")
}

func BenchmarkIntAllocator(b *testing.B) {
	alloc := NewIntAllocator(1, 1000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if id, ok := alloc.Allocate(); ok {
			alloc.Free(id)
		}
	}
}
