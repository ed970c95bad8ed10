package netem

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"
)

// fakeClock gives delay/jitter-sensitive tests a deterministic, test-
// controlled time base instead of real wall-clock sleeps.
type fakeClock struct {
	mu  sync.Mutex
	now int64
}

func (c *fakeClock) NowMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(n int64) {
	c.mu.Lock()
	c.now = n
	c.mu.Unlock()
}

// testPeer is a plain UDP socket standing in for an application peer in
// these tests; it never touches the reactor, only the Instance under
// test does.
type testPeer struct {
	t    *testing.T
	conn *net.UDPConn
}

func newTestPeer(t *testing.T) *testPeer {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testPeer{t: t, conn: conn}
}

func (p *testPeer) endpoint(t *testing.T) Endpoint {
	t.Helper()
	e, err := ResolveEndpoint(p.conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("resolve test peer address: %v", err)
	}
	return e
}

func (p *testPeer) sendTo(t *testing.T, dst Endpoint, payload []byte) {
	t.Helper()
	udpDst, err := net.ResolveUDPAddr("udp", dst.String())
	if err != nil {
		t.Fatalf("resolve dst: %v", err)
	}
	if _, err := p.conn.WriteTo(payload, udpDst); err != nil {
		t.Fatalf("send: %v", err)
	}
}

// recvOrTimeout returns the next datagram body received, or ok=false if
// none arrives within d.
func (p *testPeer) recvOrTimeout(d time.Duration) (body []byte, ok bool) {
	p.conn.SetReadDeadline(time.Now().Add(d))
	buf := make([]byte, 2048)
	n, _, err := p.conn.ReadFrom(buf)
	if err != nil {
		return nil, false
	}
	return buf[:n], true
}

func freeTestAddr(t *testing.T) Endpoint {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := conn.LocalAddr().String()
	conn.Close()
	e, err := ResolveEndpoint(addr)
	if err != nil {
		t.Fatalf("resolve reserved port: %v", err)
	}
	return e
}

func startInstance(t *testing.T, cfg Config, policy Policy) *Instance {
	t.Helper()
	inst, err := New(cfg, policy)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := inst.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		_ = inst.Stop(context.Background())
	})
	return inst
}

// identityPolicy relays every datagram exactly once, at nowMs (no
// delay, no jitter, no loss, no duplication).
func identityPolicy() Policy {
	return PolicyFunc(func(nowMs int64, _ []PendingEntry, out []int64) []int64 {
		return append(out, nowMs)
	})
}

func TestInstance_IdentityUnderZeroImpairment(t *testing.T) {
	peerA := newTestPeer(t)
	peerB := newTestPeer(t)
	emulator := freeTestAddr(t)

	startInstance(t, Config{
		Emulator: emulator,
		PeerA:    peerA.endpoint(t),
		PeerB:    peerB.endpoint(t),
	}, identityPolicy())

	payload := []byte{0x01}
	peerA.sendTo(t, emulator, payload)

	got, ok := peerB.recvOrTimeout(2 * time.Second)
	if !ok {
		t.Fatal("peer B never received the relayed datagram")
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("peer B got %v, want %v", got, payload)
	}

	if _, ok := peerA.recvOrTimeout(100 * time.Millisecond); ok {
		t.Fatal("peer A should never receive its own datagram back (no self-loop)")
	}
}

func TestInstance_AddressFilterDropsStrangerTraffic(t *testing.T) {
	peerA := newTestPeer(t)
	peerB := newTestPeer(t)
	stranger := newTestPeer(t)
	emulator := freeTestAddr(t)

	startInstance(t, Config{
		Emulator: emulator,
		PeerA:    peerA.endpoint(t),
		PeerB:    peerB.endpoint(t),
	}, identityPolicy())

	stranger.sendTo(t, emulator, []byte{0x99})

	if _, ok := peerA.recvOrTimeout(200 * time.Millisecond); ok {
		t.Fatal("peer A should not receive stranger traffic")
	}
	if _, ok := peerB.recvOrTimeout(200 * time.Millisecond); ok {
		t.Fatal("peer B should not receive stranger traffic")
	}
}

func TestInstance_LossSinkProducesNoEgress(t *testing.T) {
	peerA := newTestPeer(t)
	peerB := newTestPeer(t)
	emulator := freeTestAddr(t)

	dropAll := PolicyFunc(func(int64, []PendingEntry, []int64) []int64 { return nil })
	startInstance(t, Config{
		Emulator: emulator,
		PeerA:    peerA.endpoint(t),
		PeerB:    peerB.endpoint(t),
	}, dropAll)

	for i := 0; i < 20; i++ {
		peerA.sendTo(t, emulator, []byte{byte(i)})
	}

	if _, ok := peerB.recvOrTimeout(300 * time.Millisecond); ok {
		t.Fatal("a policy that always drops should never produce an egress datagram")
	}
}

func TestInstance_DuplicationProducesMultipleSends(t *testing.T) {
	peerA := newTestPeer(t)
	peerB := newTestPeer(t)
	emulator := freeTestAddr(t)

	triplicate := PolicyFunc(func(nowMs int64, _ []PendingEntry, out []int64) []int64 {
		return append(out, nowMs, nowMs, nowMs)
	})
	startInstance(t, Config{
		Emulator: emulator,
		PeerA:    peerA.endpoint(t),
		PeerB:    peerB.endpoint(t),
	}, triplicate)

	peerA.sendTo(t, emulator, []byte{0x7})

	count := 0
	for i := 0; i < 3; i++ {
		if _, ok := peerB.recvOrTimeout(2 * time.Second); ok {
			count++
		}
	}
	if count != 3 {
		t.Fatalf("expected 3 duplicate deliveries, got %d", count)
	}
}

func TestInstance_DelayHoldsDatagramUntilDeadline(t *testing.T) {
	peerA := newTestPeer(t)
	peerB := newTestPeer(t)
	emulator := freeTestAddr(t)

	clock := &fakeClock{now: 0}
	const delay = int64(1000)
	delayed := PolicyFunc(func(nowMs int64, _ []PendingEntry, out []int64) []int64 {
		return append(out, nowMs+delay)
	})

	startInstance(t, Config{
		Emulator: emulator,
		PeerA:    peerA.endpoint(t),
		PeerB:    peerB.endpoint(t),
		Clock:    clock,
	}, delayed)

	peerA.sendTo(t, emulator, []byte{0x55})

	if _, ok := peerB.recvOrTimeout(200 * time.Millisecond); ok {
		t.Fatal("datagram delivered before its deadline")
	}

	clock.Set(delay)

	got, ok := peerB.recvOrTimeout(2 * time.Second)
	if !ok {
		t.Fatal("datagram never delivered after its deadline passed")
	}
	if !bytes.Equal(got, []byte{0x55}) {
		t.Fatalf("got %v, want [0x55]", got)
	}
}

func TestInstance_StartTwiceFails(t *testing.T) {
	peerA := newTestPeer(t)
	peerB := newTestPeer(t)
	emulator := freeTestAddr(t)

	inst := startInstance(t, Config{
		Emulator: emulator,
		PeerA:    peerA.endpoint(t),
		PeerB:    peerB.endpoint(t),
	}, identityPolicy())

	if err := inst.Start(context.Background()); err != ErrAlreadyStarted {
		t.Fatalf("Start() second time = %v, want ErrAlreadyStarted", err)
	}
}

func TestInstance_StartAfterStopFails(t *testing.T) {
	peerA := newTestPeer(t)
	peerB := newTestPeer(t)
	emulator := freeTestAddr(t)

	inst, err := New(Config{
		Emulator: emulator,
		PeerA:    peerA.endpoint(t),
		PeerB:    peerB.endpoint(t),
	}, identityPolicy())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := inst.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := inst.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := inst.Start(context.Background()); err != ErrChannelClosed {
		t.Fatalf("Start() after Stop = %v, want ErrChannelClosed", err)
	}
}
