package netem

// dupCounter is the mutable integer shared by every scheduled entry
// derived from a single ingress datagram. It starts at 0, is
// incremented once per deadline the policy emits, and is decremented
// after each successful send. The buffer backing the group is released
// to the pool exactly when the counter transitions to 0 after having
// been incremented at least once (see Instance's ingress/egress
// algorithms); a datagram for which the policy emits zero deadlines
// never increments this counter at all, and its buffer is released
// immediately along the ingress path instead.
type dupCounter struct {
	n int
}

func (c *dupCounter) incr() {
	c.n++
}

// decr decrements the counter and returns its new value.
func (c *dupCounter) decr() int {
	c.n--
	return c.n
}

// scheduled is a single queued future send: the payload it carries, the
// destination peer, the deadline it becomes eligible for delivery, and
// the duplicate counter shared across every entry derived from the same
// ingress datagram. It is immutable once enqueued, except through the
// shared counter.
type scheduled struct {
	buf        *buffer
	dst        Endpoint
	deadlineMs int64
	counter    *dupCounter
}

// isReady reports whether the entry's deadline has passed as of now.
func (s *scheduled) isReady(now int64) bool {
	return s.deadlineMs <= now
}
