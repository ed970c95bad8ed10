package netem

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// Endpoint identifies a UDP peer by address and port. It is an opaque,
// structurally-comparable value — two Endpoints with the same IP and
// port are equal regardless of how each IP was constructed (v4-mapped
// v6 forms included, via net.IP.Equal).
type Endpoint struct {
	IP   net.IP
	Port int
}

// NewEndpoint builds an Endpoint from an IP and port directly.
func NewEndpoint(ip net.IP, port int) Endpoint {
	return Endpoint{IP: ip, Port: port}
}

// ResolveEndpoint resolves a "host:port" string to an Endpoint.
func ResolveEndpoint(addr string) (Endpoint, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return Endpoint{}, fmt.Errorf("netem: resolve endpoint %q: %w", addr, err)
	}
	ip := udpAddr.IP
	if ip == nil {
		ip = net.IPv4zero
	}
	return Endpoint{IP: ip, Port: udpAddr.Port}, nil
}

// Equal reports whether e and o identify the same peer.
func (e Endpoint) Equal(o Endpoint) bool {
	return e.Port == o.Port && e.IP.Equal(o.IP)
}

// IsZero reports whether e is the zero Endpoint.
func (e Endpoint) IsZero() bool {
	return e.Port == 0 && len(e.IP) == 0
}

func (e Endpoint) String() string {
	ip := e.IP
	if ip == nil {
		ip = net.IPv4zero
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(e.Port))
}

// isIPv4 reports whether e should be bound/sent using an AF_INET socket
// address, rather than AF_INET6.
func (e Endpoint) isIPv4() bool {
	return e.IP.To4() != nil
}

// toSockaddr converts e to the unix.Sockaddr form used by Bind, Sendto
// and returned by Recvfrom.
func (e Endpoint) toSockaddr() unix.Sockaddr {
	if e.isIPv4() {
		sa := &unix.SockaddrInet4{Port: e.Port}
		copy(sa.Addr[:], e.IP.To4())
		return sa
	}
	sa := &unix.SockaddrInet6{Port: e.Port}
	ip := e.IP.To16()
	if ip == nil {
		ip = net.IPv6zero
	}
	copy(sa.Addr[:], ip)
	return sa
}

// endpointFromSockaddr converts the kernel's sockaddr form (as returned
// by unix.Recvfrom) back to an Endpoint.
func endpointFromSockaddr(sa unix.Sockaddr) (Endpoint, error) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, 4)
		copy(ip, a.Addr[:])
		return Endpoint{IP: ip, Port: a.Port}, nil
	case *unix.SockaddrInet6:
		ip := make(net.IP, 16)
		copy(ip, a.Addr[:])
		return Endpoint{IP: ip, Port: a.Port}, nil
	default:
		return Endpoint{}, fmt.Errorf("netem: unsupported sockaddr type %T", sa)
	}
}
