package netem

// ioEvents is a bitmask of readiness conditions a poller reports for a
// registered file descriptor.
type ioEvents uint32

const (
	eventRead ioEvents = 1 << iota
	eventWrite
	eventError
	eventHangup
)

// poller is the platform multiplexer abstraction the reactor drives.
// Concrete implementations wrap epoll (Linux, poller_linux.go) or kqueue
// (Darwin, poller_darwin.go).
//
// All methods except poll may be called from any goroutine; poll must
// only ever be called from the reactor goroutine. registerFD,
// unregisterFD and modifyFD are safe to race against a concurrent poll
// — a poll in flight observes either the old or the new registration,
// never a torn one.
type poller interface {
	init() error
	closePoller() error
	registerFD(fd int, events ioEvents, cb func(ioEvents)) error
	unregisterFD(fd int) error
	modifyFD(fd int, events ioEvents) error
	// poll blocks for at most timeoutMs (0 means return immediately) and
	// dispatches callbacks for every ready fd inline before returning the
	// number of ready events observed.
	poll(timeoutMs int) (int, error)
}
