//go:build linux

// Package netem — Linux poller, epoll-based: EpollCreate1/EpollCtl/
// EpollWait with inline dispatch (the fd's callback is looked up under a
// read lock and invoked after releasing it). No cache-line
// padding or version-counter bookkeeping, since a WAN emulator's fd
// count is small (one per Instance) rather than a high-frequency
// task-loop workload; a map replaces a fixed-size array for the same
// reason.
package netem

import (
	"sync"

	"golang.org/x/sys/unix"
)

type fdEntry struct {
	cb     func(ioEvents)
	events ioEvents
}

type epollPoller struct {
	epfd int
	mu   sync.RWMutex
	fds  map[int]fdEntry
	buf  [64]unix.EpollEvent
}

func newPoller() poller {
	return &epollPoller{}
}

func (p *epollPoller) init() error {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	p.epfd = fd
	p.fds = make(map[int]fdEntry)
	return nil
}

func (p *epollPoller) closePoller() error {
	return unix.Close(p.epfd)
}

func (p *epollPoller) registerFD(fd int, events ioEvents, cb func(ioEvents)) error {
	p.mu.Lock()
	p.fds[fd] = fdEntry{cb: cb, events: events}
	p.mu.Unlock()

	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: toEpollEvents(events),
		Fd:     int32(fd),
	})
	if err != nil {
		p.mu.Lock()
		delete(p.fds, fd)
		p.mu.Unlock()
		return err
	}
	return nil
}

func (p *epollPoller) unregisterFD(fd int) error {
	p.mu.Lock()
	_, ok := p.fds[fd]
	delete(p.fds, fd)
	p.mu.Unlock()
	if !ok {
		return errFDNotRegistered
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) modifyFD(fd int, events ioEvents) error {
	p.mu.Lock()
	e, ok := p.fds[fd]
	if !ok {
		p.mu.Unlock()
		return errFDNotRegistered
	}
	e.events = events
	p.fds[fd] = e
	p.mu.Unlock()

	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: toEpollEvents(events),
		Fd:     int32(fd),
	})
}

func (p *epollPoller) poll(timeoutMs int) (int, error) {
	n, err := unix.EpollWait(p.epfd, p.buf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	for i := 0; i < n; i++ {
		fd := int(p.buf[i].Fd)
		p.mu.RLock()
		e, ok := p.fds[fd]
		p.mu.RUnlock()
		if ok && e.cb != nil {
			e.cb(fromEpollEvents(p.buf[i].Events))
		}
	}
	return n, nil
}

func toEpollEvents(e ioEvents) uint32 {
	var out uint32
	if e&eventRead != 0 {
		out |= unix.EPOLLIN
	}
	if e&eventWrite != 0 {
		out |= unix.EPOLLOUT
	}
	return out
}

func fromEpollEvents(e uint32) ioEvents {
	var out ioEvents
	if e&unix.EPOLLIN != 0 {
		out |= eventRead
	}
	if e&unix.EPOLLOUT != 0 {
		out |= eventWrite
	}
	if e&unix.EPOLLERR != 0 {
		out |= eventError
	}
	if e&unix.EPOLLHUP != 0 {
		out |= eventHangup
	}
	return out
}
