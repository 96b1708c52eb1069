package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicClock_StartsAtZero(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Equal(t, int64(0), clock.Current())
}

func TestDeterministicClock_NextIncrementsMonotonically(t *testing.T) {
	clock := NewDeterministicClock()

	assert.Equal(t, int64(1), clock.Next())
	assert.Equal(t, int64(2), clock.Next())
	assert.Equal(t, int64(3), clock.Next())
	assert.Equal(t, int64(3), clock.Current())
}

func TestDeterministicClock_Now(t *testing.T) {
	clock := NewDeterministicClock()

	assert.Equal(t, time.UnixMilli(DefaultBase+1), clock.Now())
	assert.Equal(t, time.UnixMilli(DefaultBase+2), clock.Now())
}

func TestDeterministicClock_Hold(t *testing.T) {
	clock := NewDeterministicClock()
	clock.Now()

	clock.Hold()
	a := clock.Now()
	b := clock.Now()
	assert.Equal(t, a, b, "held clock produces ties")

	clock.Release()
	assert.True(t, clock.Now().After(b))
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock()
	clock.Next()
	clock.Next()
	clock.Hold()

	clock.Reset()

	assert.Equal(t, int64(0), clock.Current())
	assert.Equal(t, int64(1), clock.Next(), "reset also releases a hold")
}

func TestDeterministicClock_ConcurrentAccess(t *testing.T) {
	clock := NewDeterministicClock()

	const goroutines = 10
	const perGoroutine = 100

	var wg sync.WaitGroup
	seen := make(chan int64, goroutines*perGoroutine)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				seen <- clock.Next()
			}
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[int64]bool)
	for v := range seen {
		require.False(t, unique[v], "duplicate value %d", v)
		unique[v] = true
	}
	assert.Len(t, unique, goroutines*perGoroutine)
}
