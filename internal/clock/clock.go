// Package clock provides the shared market clock that defines "now" for
// every metric in a computation graph. The clock never advances on its own:
// the driving loop moves it to each bar timestamp, and everything computed
// between two advances belongs to the same tick.
package clock

import (
	"errors"
	"fmt"
)

// ErrOutOfOrderTick is returned when Advance is called with a timestamp at
// or before the current tick.
var ErrOutOfOrderTick = errors.New("tick is not after the current clock time")

// ErrNotStarted is returned when the clock is read before its first Advance.
var ErrNotStarted = errors.New("clock has not been advanced yet")

// Clock is the process-wide tick cursor. A fresh clock accepts any first
// timestamp; after that every Advance must be strictly later. The clock is
// not safe for concurrent use: the driver advances it between computation
// rounds and never during one.
type Clock struct {
	currentMs int64
	started   bool
}

// New returns an unstarted clock.
func New() *Clock {
	return &Clock{}
}

// NowMs returns the current tick in Unix milliseconds.
// Before the first Advance it returns 0; callers that need to distinguish
// use Started.
func (c *Clock) NowMs() int64 {
	return c.currentMs
}

// Started reports whether the clock has been advanced at least once.
func (c *Clock) Started() bool {
	return c.started
}

// Advance moves the clock to timestampMs. The timestamp must be strictly
// greater than the current tick; the first Advance on a fresh clock accepts
// any value.
func (c *Clock) Advance(timestampMs int64) error {
	if c.started && timestampMs <= c.currentMs {
		return fmt.Errorf("advance to %d with clock at %d: %w", timestampMs, c.currentMs, ErrOutOfOrderTick)
	}
	c.currentMs = timestampMs
	c.started = true
	return nil
}
