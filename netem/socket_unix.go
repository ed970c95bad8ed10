//go:build unix

// Raw datagram socket plumbing shared by the Linux and Darwin builds.
// The core talks to the kernel directly with golang.org/x/sys/unix
// rather than net.UDPConn so that the reactor can register the same fd
// with epoll/kqueue and drive reads/writes itself — mirroring how the
// original Java implementation drives a java.nio.channels.DatagramChannel
// from a Selector.
package netem

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// errWouldBlock signals that a non-blocking recv/send made no progress
// because the kernel has nothing to deliver (read) or its send buffer is
// full (write) right now.
var errWouldBlock = errors.New("netem: operation would block")

// openDatagramSocket creates a non-blocking UDP socket bound to addr.
func openDatagramSocket(addr Endpoint) (int, error) {
	domain := unix.AF_INET
	if !addr.isIPv4() {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return -1, fmt.Errorf("netem: socket: %w", err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("netem: set nonblocking: %w", err)
	}

	if err := unix.Bind(fd, addr.toSockaddr()); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("netem: bind %s: %w", addr, err)
	}

	return fd, nil
}

// recvFrom performs one non-blocking receive into buf. It returns
// errWouldBlock if the socket currently has no datagram queued.
func recvFrom(fd int, buf []byte) (n int, src Endpoint, err error) {
	n, from, err := unix.Recvfrom(fd, buf, 0)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return 0, Endpoint{}, errWouldBlock
		}
		return 0, Endpoint{}, err
	}
	if from == nil {
		return n, Endpoint{}, fmt.Errorf("netem: recvfrom: missing source address")
	}
	src, err = endpointFromSockaddr(from)
	if err != nil {
		return 0, Endpoint{}, err
	}
	return n, src, nil
}

// sendTo performs one non-blocking send of data to dst. It returns
// errWouldBlock if the kernel's send buffer is currently full.
func sendTo(fd int, data []byte, dst Endpoint) error {
	err := unix.Sendto(fd, data, 0, dst.toSockaddr())
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return errWouldBlock
		}
		return err
	}
	return nil
}

func closeSocket(fd int) error {
	return unix.Close(fd)
}
