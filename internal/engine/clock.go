package engine

import "sync/atomic"

// Clock is a monotonic logical counter.
//
// The Controller stamps every step token with Clock.Next so tokens are
// strictly increasing, and the host uses a separate Clock to number
// execution epochs across restarts.
//
// Clock is safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock positioned at start; the next value is start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last value handed out, or the start position.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
