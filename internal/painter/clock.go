package painter

import "sync/atomic"

// Clock hands out command ids: 1, 2, 3, ... and never repeats one.
// A REPLY names the id it answers, so a stale reply can never match a
// later command. The zero value is ready to use.
type Clock struct {
	last atomic.Uint64
}

// NewClock returns a clock whose first id is 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns a fresh id.
func (c *Clock) Next() uint64 {
	return c.last.Add(1)
}
