// Package netem implements the impairment relay engine at the heart of a
// userspace UDP WAN emulator: a non-blocking I/O loop that reads datagrams
// from a bound UDP endpoint, assigns each a set of future delivery times
// under a pluggable impairment [Policy], enqueues the resulting deliveries
// in a per-instance time-ordered queue, and drains that queue through a
// pool of reusable byte buffers without copying payloads across
// duplicates.
//
// # Architecture
//
// An [Instance] owns one non-blocking UDP socket, a [Policy], and the
// buffer pool and delivery queue backing it. All live instances in a
// process share a single [reactor] goroutine: a cooperative, single
// threaded event loop that multiplexes read/write readiness across every
// registered instance using the platform's native poller (epoll on
// Linux, kqueue on Darwin). The reactor is reference-counted — it starts
// with the first [Instance.Start] call and exits after the last
// [Instance.Stop] call joins it.
//
// # Platform support
//
// The reactor talks to the kernel directly via golang.org/x/sys/unix
// (raw non-blocking sockets, epoll/kqueue), so this package only builds
// on Linux and Darwin. There is no Windows poller; see DESIGN.md for the
// reasoning.
//
// # Thread safety
//
// [Instance.Start] and [Instance.Stop] may be called from any goroutine.
// Everything on the hot path — the buffer pool, the delivery queue, and
// the policy's Compute call — runs exclusively on the reactor goroutine
// and is never synchronized; only policy parameter accessors (owned by
// the caller of this package, see the impair package) need to tolerate
// concurrent reads from the reactor goroutine.
package netem
