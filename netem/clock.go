package netem

import "time"

// Clock supplies an Instance's time base for delivery deadlines. The
// instance reads it separately when checking for a due delivery before
// each poll, when draining ingress and when draining egress, so one
// reactor tick may sample it more than once. Implementers
// should prefer a monotonic source — see New's default — so that test
// scenarios involving delay and jitter are deterministic and immune to
// wall-clock adjustments.
type Clock interface {
	// NowMs returns the current time in milliseconds, relative to an
	// arbitrary but fixed epoch. Only differences between calls are
	// meaningful.
	NowMs() int64
}

// systemClock is the default Clock, backed by the monotonic reading
// time.Now() carries internally. It is anchored at construction so that
// NowMs values stay small and comparable across an instance's lifetime.
type systemClock struct {
	start time.Time
}

// NewSystemClock returns the default monotonic Clock.
func NewSystemClock() Clock {
	return &systemClock{start: time.Now()}
}

func (c *systemClock) NowMs() int64 {
	return time.Since(c.start).Milliseconds()
}
