//go:build darwin

// Darwin poller — kqueue-based counterpart of poller_linux.go's epoll
// poller. Where epoll changes interest with one EPOLL_CTL_MOD, modifyFD
// here issues EV_DELETE for dropped filters and EV_ADD for added ones.
// Simplified the same way (map instead of a preallocated fixed-size
// slice).
package netem

import (
	"sync"

	"golang.org/x/sys/unix"
)

type fdEntry struct {
	cb     func(ioEvents)
	events ioEvents
}

type kqueuePoller struct {
	kq  int
	mu  sync.RWMutex
	fds map[int]fdEntry
	buf [64]unix.Kevent_t
}

func newPoller() poller {
	return &kqueuePoller{}
}

func (p *kqueuePoller) init() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(kq)
	p.kq = kq
	p.fds = make(map[int]fdEntry)
	return nil
}

func (p *kqueuePoller) closePoller() error {
	return unix.Close(p.kq)
}

func (p *kqueuePoller) registerFD(fd int, events ioEvents, cb func(ioEvents)) error {
	p.mu.Lock()
	p.fds[fd] = fdEntry{cb: cb, events: events}
	p.mu.Unlock()

	kevents := eventsToKevents(fd, events, unix.EV_ADD|unix.EV_ENABLE)
	if len(kevents) == 0 {
		return nil
	}
	if _, err := unix.Kevent(p.kq, kevents, nil, nil); err != nil {
		p.mu.Lock()
		delete(p.fds, fd)
		p.mu.Unlock()
		return err
	}
	return nil
}

func (p *kqueuePoller) unregisterFD(fd int) error {
	p.mu.Lock()
	e, ok := p.fds[fd]
	delete(p.fds, fd)
	p.mu.Unlock()
	if !ok {
		return errFDNotRegistered
	}
	kevents := eventsToKevents(fd, e.events, unix.EV_DELETE)
	if len(kevents) > 0 {
		_, _ = unix.Kevent(p.kq, kevents, nil, nil)
	}
	return nil
}

func (p *kqueuePoller) modifyFD(fd int, events ioEvents) error {
	p.mu.Lock()
	e, ok := p.fds[fd]
	if !ok {
		p.mu.Unlock()
		return errFDNotRegistered
	}
	old := e.events
	e.events = events
	p.fds[fd] = e
	p.mu.Unlock()

	if old&^events != 0 {
		del := eventsToKevents(fd, old&^events, unix.EV_DELETE)
		if len(del) > 0 {
			_, _ = unix.Kevent(p.kq, del, nil, nil)
		}
	}
	if events&^old != 0 {
		add := eventsToKevents(fd, events&^old, unix.EV_ADD|unix.EV_ENABLE)
		if len(add) > 0 {
			if _, err := unix.Kevent(p.kq, add, nil, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *kqueuePoller) poll(timeoutMs int) (int, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMs / 1000),
			Nsec: int64((timeoutMs % 1000) * 1000000),
		}
	}

	n, err := unix.Kevent(p.kq, nil, p.buf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	for i := 0; i < n; i++ {
		fd := int(p.buf[i].Ident)
		p.mu.RLock()
		e, ok := p.fds[fd]
		p.mu.RUnlock()
		if ok && e.cb != nil {
			e.cb(keventToEvents(&p.buf[i]))
		}
	}
	return n, nil
}

func eventsToKevents(fd int, events ioEvents, flags uint16) []unix.Kevent_t {
	var out []unix.Kevent_t
	if events&eventRead != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if events&eventWrite != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return out
}

func keventToEvents(kev *unix.Kevent_t) ioEvents {
	var out ioEvents
	switch kev.Filter {
	case unix.EVFILT_READ:
		out |= eventRead
	case unix.EVFILT_WRITE:
		out |= eventWrite
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		out |= eventError
	}
	if kev.Flags&unix.EV_EOF != 0 {
		out |= eventHangup
	}
	return out
}
