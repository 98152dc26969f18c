package dispatch

import "sync/atomic"

// Clock is a monotonic logical clock. Each processed command gets the next
// sequence number. It is safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock returns a clock whose first tick is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt returns a clock that resumes after start.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last value handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
