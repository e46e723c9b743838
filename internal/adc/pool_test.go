package adc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ringLen(r *spscRing) int {
	return int(r.tail.Load() - r.head.Load())
}

func TestNewPool_InvalidParameters(t *testing.T) {
	// Fewer than two buffers cannot sustain double buffering
	_, err := NewPool(16, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewPool(0, 1, 4)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewPool(16, 0, 4)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPool_AllBuffersStartFree(t *testing.T) {
	pool, err := NewPool(8, 2, 4)
	require.NoError(t, err)

	assert.Equal(t, 4, pool.Buffers())
	assert.Equal(t, 16, pool.BufferSize())
	assert.Equal(t, 2, pool.Channels())
	assert.True(t, pool.Writable())
	assert.False(t, pool.Readable())
	assert.Equal(t, 4, ringLen(pool.free))
	assert.Equal(t, 0, ringLen(pool.ready))
}

func TestPool_AllocWrite_ExhaustsFreeList(t *testing.T) {
	pool, err := NewPool(8, 1, 3)
	require.NoError(t, err)

	// Drain the free list
	for i := 0; i < 3; i++ {
		b := pool.Alloc(AllocWrite)
		require.NotNil(t, b)
		assert.Equal(t, ownWriteTarget, b.state)
	}

	// Exhausted pool signals by returning nil, never by blocking
	assert.Nil(t, pool.Alloc(AllocWrite))
	assert.False(t, pool.Writable())
}

func TestPool_ReadyQueueIsFIFO(t *testing.T) {
	pool, err := NewPool(4, 1, 5)
	require.NoError(t, err)

	// Produce three buffers with increasing timestamps
	base := time.Now()
	for i := 0; i < 3; i++ {
		b := pool.Alloc(AllocWrite)
		require.NotNil(t, b)
		b.SetTimestamp(base.Add(time.Duration(i) * time.Millisecond))
		b.Release() // write target -> ready queue
	}

	// Delivery order equals production order
	var last time.Time
	for i := 0; i < 3; i++ {
		b := pool.Alloc(AllocRead)
		require.NotNil(t, b)
		assert.True(t, b.Timestamp().After(last) || b.Timestamp().Equal(last),
			"timestamps must be monotonic non-decreasing")
		last = b.Timestamp()
		b.Release()
	}
	assert.False(t, pool.Readable())
}

func TestPool_Conservation(t *testing.T) {
	const n = 6
	pool, err := NewPool(4, 1, n)
	require.NoError(t, err)

	// Two in-flight targets, as the engine allocates at configure time
	inflight := [2]*SampleBuffer{pool.Alloc(AllocWrite), pool.Alloc(AllocWrite)}
	require.NotNil(t, inflight[0])
	require.NotNil(t, inflight[1])

	check := func() {
		assert.Equal(t, n, ringLen(pool.free)+ringLen(pool.ready)+2,
			"free + ready + 2 in-flight must equal pool capacity")
	}
	check()

	// Run the producer/consumer exchange across several windows
	ct := 0
	for i := 0; i < 20; i++ {
		// Producer completion
		if pool.Writable() {
			inflight[ct].Release()
			inflight[ct] = pool.Alloc(AllocWrite)
		}
		ct = 1 - ct
		check()

		// Consumer catches up every third window
		if i%3 == 2 {
			if b := pool.Alloc(AllocRead); b != nil {
				b.Release()
			}
		}
		check()
	}
}

func TestPool_FlushRecoversWritableState(t *testing.T) {
	pool, err := NewPool(4, 1, 3)
	require.NoError(t, err)

	// Fill the ready queue until the pool is exhausted
	for pool.Writable() {
		b := pool.Alloc(AllocWrite)
		require.NotNil(t, b)
		b.Release()
	}
	require.True(t, pool.Readable())

	// Flush drains the ready queue back to the free list
	pool.Flush()
	assert.False(t, pool.Readable())
	assert.True(t, pool.Writable())

	// A subsequent production cycle still succeeds
	b := pool.Alloc(AllocWrite)
	require.NotNil(t, b)
	b.Release()
	assert.True(t, pool.Readable())
}

func TestPool_AllocRead_EmptyReturnsNil(t *testing.T) {
	pool, err := NewPool(4, 1, 2)
	require.NoError(t, err)

	assert.Nil(t, pool.Alloc(AllocRead))
}

func TestPool_StorageStaysWithinAllocation(t *testing.T) {
	pool, err := NewPool(4, 2, 3)
	require.NoError(t, err)

	// Every buffer's data slice is a window into the pool's single
	// storage allocation, adjacent and non-overlapping
	size := pool.BufferSize()
	for i := range pool.buffers {
		b := &pool.buffers[i]
		assert.Equal(t, size, b.Size())
		assert.Equal(t, &pool.storage[i*size], &b.data[0])
	}
}
