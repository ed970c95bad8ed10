package netem

import (
	"context"
	"fmt"
	"sync"
)

// DefaultMaxPacketSize is the datagram capacity each Instance buffer is
// sized to when Config.MaxPacketSize is left at zero — the common MTU
// ceiling for UDP over the public internet without fragmentation.
const DefaultMaxPacketSize = 508

// Config describes one relay instance: the local address it listens on
// and the two peers whose traffic it relays between. Traffic is only
// ever relayed between PeerA and PeerB; datagrams from any other source
// are discarded (see Instance's ingress algorithm).
type Config struct {
	// Emulator is the local address the instance binds its socket to.
	Emulator Endpoint
	PeerA    Endpoint
	PeerB    Endpoint

	// MaxPacketSize bounds the size of any single relayed datagram.
	// Zero defaults to DefaultMaxPacketSize.
	MaxPacketSize int

	// Logger receives ingress/egress diagnostics for this instance. A
	// nil Logger discards everything.
	Logger Logger

	// Clock supplies this instance's delivery-deadline clock. A nil
	// Clock defaults to NewSystemClock(). Tests inject a fake Clock
	// here to make delay/jitter scenarios deterministic.
	Clock Clock
}

// Instance is one emulated lossy/delayed/duplicating link between two
// UDP peers. An Instance is created with New, started with Start, and
// is not reusable once Stop has been called on it after Start — a fresh
// Instance must be constructed for each run.
//
// All of an Instance's mutable relay state (bufferPool, deliveryQueue,
// write-interest flag) is touched only by the shared reactor goroutine
// once the instance is registered; Start and Stop themselves are safe
// to call from any goroutine, serialized by mu.
type Instance struct {
	cfg    Config
	pool   *bufferPool
	queue  *deliveryQueue
	policy Policy
	clock  Clock
	logger Logger

	pending        []int64
	pendingViewBuf []PendingEntry

	mu      sync.Mutex
	fd      int
	started bool
	stopped bool

	writeArmed bool
}

// New constructs an Instance bound to cfg with the given impairment
// Policy. It does not open a socket or touch the reactor — call Start
// for that.
func New(cfg Config, policy Policy) (*Instance, error) {
	if policy == nil {
		return nil, fmt.Errorf("netem: policy must not be nil")
	}
	if cfg.MaxPacketSize == 0 {
		cfg.MaxPacketSize = DefaultMaxPacketSize
	}
	if cfg.MaxPacketSize <= 0 {
		return nil, fmt.Errorf("netem: max packet size must be positive, got %d", cfg.MaxPacketSize)
	}
	if cfg.PeerA.Equal(cfg.PeerB) {
		return nil, fmt.Errorf("netem: peer A and peer B must be distinct endpoints")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = NewSystemClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	pool := newBufferPool(cfg.MaxPacketSize)
	pool.prealloc()

	return &Instance{
		cfg:     cfg,
		pool:    pool,
		queue:   newDeliveryQueue(),
		policy:  policy,
		clock:   clock,
		logger:  logger,
		pending: make([]int64, 0, 4),
		fd:      -1,
	}, nil
}

// Start opens the instance's socket and registers it with the shared
// reactor. It returns ErrAlreadyStarted if called twice, or
// ErrChannelClosed if the instance was previously stopped.
func (inst *Instance) Start(context.Context) error {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.stopped {
		return ErrChannelClosed
	}
	if inst.started {
		return ErrAlreadyStarted
	}

	fd, err := openDatagramSocket(inst.cfg.Emulator)
	if err != nil {
		return err
	}

	inst.fd = fd
	if err := reactorSingleton.register(inst); err != nil {
		_ = closeSocket(fd)
		inst.fd = -1
		return err
	}

	inst.started = true
	return nil
}

// Stop cancels the instance's registration and closes its socket. It
// blocks until the shared reactor worker has fully processed the
// removal if this was the last live instance in the process, unless ctx
// is cancelled first, in which case it returns ErrInterrupted. Stop is
// idempotent: calling it on an instance that was never started, or was
// already stopped, is a no-op, and a never-started instance can still be
// started afterwards. A started instance is never reusable after Stop.
func (inst *Instance) Stop(ctx context.Context) error {
	inst.mu.Lock()
	if !inst.started || inst.stopped {
		inst.mu.Unlock()
		return nil
	}
	inst.stopped = true
	fd := inst.fd
	inst.mu.Unlock()

	err := reactorSingleton.unregister(ctx, inst)
	_ = closeSocket(fd)
	return err
}

// onEvents is the poller callback registered for this instance's fd. It
// runs on the reactor goroutine: ingress is always drained before
// egress, so a datagram received and immediately due (zero delay, zero
// jitter) can be sent again within the same tick.
func (inst *Instance) onEvents(ev ioEvents) {
	if ev&eventRead != 0 {
		inst.drainIngress(inst.clock.NowMs())
	}
	if ev&eventWrite != 0 {
		inst.drainEgress(inst.clock.NowMs())
	}
}

// armWriteIfDue reports whether this instance's delivery queue currently
// has an entry due for send, arming write-readiness on the poller if
// so. Called once per reactor tick, before poll.
func (inst *Instance) armWriteIfDue(p poller) bool {
	head := inst.queue.peek()
	if head == nil || !head.isReady(inst.clock.NowMs()) {
		return false
	}
	if !inst.writeArmed {
		if err := p.modifyFD(inst.fd, eventRead|eventWrite); err == nil {
			inst.writeArmed = true
		}
	}
	return true
}

// disarmWrite clears write-readiness on the poller if it was armed by
// the current tick's armWriteIfDue. Called once per reactor tick, after
// poll and dispatch.
func (inst *Instance) disarmWrite(p poller) {
	if !inst.writeArmed {
		return
	}
	_ = p.modifyFD(inst.fd, eventRead)
	inst.writeArmed = false
}

// drainIngress repeatedly receives datagrams until the socket reports
// it has none left, scheduling a future delivery for each one accepted
// by the policy. Traffic from any source other than PeerA or PeerB is
// discarded without consulting the policy at all.
func (inst *Instance) drainIngress(now int64) {
	for {
		buf := inst.pool.acquire()

		n, src, err := recvFrom(inst.fd, buf.data)
		if err != nil {
			inst.pool.release(buf)
			if err == errWouldBlock || isBenignRace(err) {
				return
			}
			inst.logger.Error("ingress receive failed", "instance", inst.cfg.Emulator.String(), "error", err)
			return
		}
		buf.len = n

		var dst Endpoint
		switch {
		case src.Equal(inst.cfg.PeerA):
			dst = inst.cfg.PeerB
		case src.Equal(inst.cfg.PeerB):
			dst = inst.cfg.PeerA
		default:
			inst.pool.release(buf)
			continue
		}

		inst.pending = inst.pending[:0]
		deadlines := inst.policy.Compute(now, inst.pendingView(), inst.pending)

		counter := &dupCounter{}
		for _, deadline := range deadlines {
			counter.incr()
			inst.queue.push(&scheduled{buf: buf, dst: dst, deadlineMs: deadline, counter: counter})
		}
		if counter.n == 0 {
			inst.pool.release(buf)
		}
	}
}

// drainEgress repeatedly sends the queue's due entries until the queue
// is empty, no remaining entry is due yet, or the socket's send buffer
// is full. A send that would block re-queues its entry at its original
// deadline rather than dropping it.
func (inst *Instance) drainEgress(now int64) {
	for {
		head := inst.queue.peek()
		if head == nil || !head.isReady(now) {
			return
		}
		head = inst.queue.pop()

		if err := sendTo(inst.fd, head.buf.bytes(), head.dst); err != nil {
			if err == errWouldBlock {
				inst.queue.push(head)
				return
			}
			if isBenignRace(err) {
				return
			}
			inst.logger.Error("egress send failed", "instance", inst.cfg.Emulator.String(), "error", err)
			return
		}

		if head.counter.decr() == 0 {
			inst.pool.release(head.buf)
		}
	}
}

// pendingView rebuilds the read-only pending snapshot passed to
// Policy.Compute from the queue's current contents, reusing its scratch
// buffer across calls.
func (inst *Instance) pendingView() []PendingEntry {
	items := inst.queue.view()
	if cap(inst.pendingViewBuf) < len(items) {
		inst.pendingViewBuf = make([]PendingEntry, len(items))
	}
	view := inst.pendingViewBuf[:len(items)]
	for i, e := range items {
		view[i] = PendingEntry{Destination: e.dst, DeadlineMs: e.deadlineMs}
	}
	return view
}
