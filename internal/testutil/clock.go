package testutil

import (
	"sync"
	"time"
)

// DeterministicClock provides a thread-safe monotonic clock for tests.
//
// Each call to Now advances the clock by one millisecond from Base, so
// consecutive enqueues get strictly increasing timestamps. Hold() freezes
// it to produce timestamp ties on purpose.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu     sync.Mutex
	base   int64
	seq    int64
	frozen bool
}

// DefaultBase is the Unix millisecond the clock starts from.
const DefaultBase int64 = 1_700_000_000_000

// NewDeterministicClock creates a new deterministic clock starting at DefaultBase.
//
// The first call to Next() returns 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{base: DefaultBase}
}

// Next increments and returns the next sequence number.
// While held, Next returns the current value without incrementing.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.frozen {
		c.seq++
	}
	return c.seq
}

// Current returns the current sequence number without incrementing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Now advances the clock and returns Base+seq milliseconds.
// It has the queue.Clock signature.
func (c *DeterministicClock) Now() time.Time {
	return time.UnixMilli(c.base + c.Next())
}

// Hold freezes the clock until Release.
func (c *DeterministicClock) Hold() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = true
}

// Release unfreezes the clock.
func (c *DeterministicClock) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = false
}

// Reset resets the clock to 0 and releases it.
//
// Used for test reuse. After Reset(), the next call to Next() returns 1.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
	c.frozen = false
}
