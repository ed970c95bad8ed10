package netem

import (
	"errors"

	"golang.org/x/sys/unix"
)

var (
	// ErrChannelClosed is returned by Start when called on an instance
	// that was previously stopped. Instances are not reusable.
	ErrChannelClosed = errors.New("netem: channel closed, instance is not reusable")

	// ErrAlreadyStarted is returned by Start when called a second time on
	// an instance that is already running.
	ErrAlreadyStarted = errors.New("netem: instance already started")

	// ErrInterrupted is returned by Stop when the caller's context is
	// cancelled while waiting for the reactor worker to join.
	ErrInterrupted = errors.New("netem: interrupted waiting for reactor shutdown")

	errFDNotRegistered = errors.New("netem: fd not registered with poller")
	errPollerClosed    = errors.New("netem: poller closed")
)

// isBenignRace reports whether err is one of the structural races the
// reactor tolerates: a file descriptor cancelled or closed by another
// goroutine mid-iteration, racing Instance.Stop against the reactor's
// poll. Any other error is fatal to the reactor.
func isBenignRace(err error) bool {
	return errors.Is(err, unix.EBADF) ||
		errors.Is(err, errFDNotRegistered) ||
		errors.Is(err, errPollerClosed)
}
