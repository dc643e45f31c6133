package frame

import (
	"time"

	"github.com/loov/hrtime"
)

// Clock measures time since it was created.
type Clock struct {
	now   func() time.Duration
	start time.Duration
}

func NewClock() *Clock {
	return NewClockWith(hrtime.Now)
}

// NewClockWith builds a clock over an arbitrary monotonic time source.
func NewClockWith(now func() time.Duration) *Clock {
	return &Clock{now: now, start: now()}
}

func (c *Clock) Elapsed() time.Duration {
	return c.now() - c.start
}
