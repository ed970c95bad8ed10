package netem

// defaultBatchSize is the number of buffers allocated each time the pool
// runs dry. Allocations are append-only: the pool never shrinks.
const defaultBatchSize = 16

// buffer is a mutable byte region of exact capacity maxPacketSize, lent
// by the pool to exactly one group of scheduled entries at a time. len
// tracks how much of data currently holds a valid payload; data itself
// is never reallocated once created.
type buffer struct {
	data []byte
	len  int
}

// bytes returns the currently valid payload.
func (b *buffer) bytes() []byte {
	return b.data[:b.len]
}

// reset clears the buffer's valid length, leaving its backing array
// untouched (the next receive overwrites it in place).
func (b *buffer) reset() {
	b.len = 0
}

// bufferPool is a fixed-capacity, growable set of reusable buffers sized
// to an instance's configured maximum datagram length.
//
// bufferPool is touched only by the reactor goroutine for a given
// instance (ingress acquires, egress releases), so it carries no lock
// of its own.
type bufferPool struct {
	maxSize   int
	batchSize int
	free      []*buffer
	allocated int
}

// newBufferPool constructs an empty pool; the first acquire triggers the
// initial batch allocation.
func newBufferPool(maxSize int) *bufferPool {
	return &bufferPool{maxSize: maxSize, batchSize: defaultBatchSize}
}

// prealloc grows the pool by exactly one batch, regardless of current
// occupancy. Used at Instance construction time so a fresh instance
// starts with its first batch ready.
func (p *bufferPool) prealloc() {
	p.grow()
}

func (p *bufferPool) grow() {
	for i := 0; i < p.batchSize; i++ {
		p.free = append(p.free, &buffer{data: make([]byte, p.maxSize)})
		p.allocated++
	}
}

// acquire returns a cleared buffer, growing the pool by one batch first
// if it is empty.
func (p *bufferPool) acquire() *buffer {
	if len(p.free) == 0 {
		p.grow()
	}
	n := len(p.free)
	b := p.free[n-1]
	p.free[n-1] = nil
	p.free = p.free[:n-1]
	b.reset()
	return b
}

// release returns buf to the pool. Double-release is a programming error
// the pool does not detect; the invariant that a buffer is owned by
// exactly one non-empty group of scheduled entries (or sits free here)
// is the caller's responsibility to uphold — see Instance's duplicate
// counter bookkeeping.
func (p *bufferPool) release(buf *buffer) {
	buf.reset()
	p.free = append(p.free, buf)
}

// allocatedCount returns how many buffers this pool has ever allocated,
// for the buffer-conservation property tested in buffer_test.go.
func (p *bufferPool) allocatedCount() int {
	return p.allocated
}

// freeCount returns how many buffers currently sit idle in the pool.
func (p *bufferPool) freeCount() int {
	return len(p.free)
}
