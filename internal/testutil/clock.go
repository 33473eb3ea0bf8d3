package testutil

import "sync"

// DeterministicClock is a resettable sequence source for tests that record
// traces. It satisfies the store's Sequencer interface.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

// NewDeterministicClock returns a clock whose first Next is 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset rewinds the clock so the next Next returns 1 again.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	c.seq = 0
	c.mu.Unlock()
}
