package service

import (
	"time"

	"github.com/lightningnetwork/lnd/clock"
)

// Clock abstracts wall-clock access so the scheduler (spec.md §4.1) can be
// driven by a fixed sequence of timestamps in tests rather than real time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock, backed by lnd/clock's own
// DefaultClock rather than a hand-rolled time.Now() wrapper.
type SystemClock struct {
	inner clock.Clock
}

// NewSystemClock constructs the production Clock.
func NewSystemClock() SystemClock {
	return SystemClock{inner: clock.NewDefaultClock()}
}

func (c SystemClock) Now() time.Time {
	if c.inner == nil {
		return clock.NewDefaultClock().Now()
	}
	return c.inner.Now()
}

var _ Clock = SystemClock{}
