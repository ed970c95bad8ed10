// Package impair provides the sample impairment model: independent
// per-datagram loss, geometric duplication, and uniform jitter around a
// configured delay. It is a collaborator of the netem core, not part of
// it — the core only depends on the netem.Policy interface this package
// implements.
package impair

import (
	"math"
	"math/rand/v2"
	"sync/atomic"

	"github.com/mucaho/jnetemu/netem"
)

// Default parameter values, matching the emulator's documented defaults.
const (
	DefaultLoss        = 0.10
	DefaultDuplication = 0.03
	DefaultDelayMs     = 175
	DefaultJitterMs    = 75
)

// Params holds the four tunables behind Policy, stored in
// memory-ordered cells rather than behind a mutex: the reactor goroutine
// reads them once per Compute call while callers may update them from
// any other goroutine at any time. A single Compute call may therefore
// observe delay and jitter from two different Set calls that raced each
// other — harmless, since each call only ever shapes the deadlines of
// the one datagram it was invoked for.
type Params struct {
	loss        atomic.Uint64 // float64 bits
	duplication atomic.Uint64 // float64 bits
	delayMs     atomic.Int64
	jitterMs    atomic.Int64
}

// NewParams returns Params initialized to the documented defaults.
func NewParams() *Params {
	p := &Params{}
	p.SetLoss(DefaultLoss)
	p.SetDuplication(DefaultDuplication)
	p.SetDelayMs(DefaultDelayMs)
	p.SetJitterMs(DefaultJitterMs)
	return p
}

func (p *Params) Loss() float64     { return math.Float64frombits(p.loss.Load()) }
func (p *Params) SetLoss(v float64) { p.loss.Store(math.Float64bits(v)) }

func (p *Params) Duplication() float64     { return math.Float64frombits(p.duplication.Load()) }
func (p *Params) SetDuplication(v float64) { p.duplication.Store(math.Float64bits(v)) }

func (p *Params) DelayMs() int64     { return p.delayMs.Load() }
func (p *Params) SetDelayMs(v int64) { p.delayMs.Store(v) }

func (p *Params) JitterMs() int64     { return p.jitterMs.Load() }
func (p *Params) SetJitterMs(v int64) { p.jitterMs.Store(v) }

// randSource is the [0,1) uniform source a Policy draws from. Narrowed
// to a single method so tests (and NewSeeded) can swap in a seeded
// generator without the rest of the type depending on math/rand/v2
// directly.
type randSource interface {
	Float64() float64
}

// Policy is the reference impairment model described by the emulator's
// design: a do-while loop that appends a jittered deadline with
// probability 1-loss, then keeps iterating with probability
// duplication. Callers configuring duplication >= 1.0 alongside loss <
// 1.0 will block Compute forever — this is a caller error the policy
// makes no attempt to detect, matching the documented contract.
type Policy struct {
	Params *Params
	rng    randSource
}

// New builds a Policy over params (or a fresh default Params if nil)
// drawing randomness from the process-global source.
func New(params *Params) *Policy {
	if params == nil {
		params = NewParams()
	}
	return &Policy{Params: params, rng: globalRand{}}
}

// NewSeeded builds a Policy whose randomness comes from a PCG generator
// seeded deterministically, for reproducible runs and for testing the
// geometric duplication distribution.
func NewSeeded(params *Params, seed1, seed2 uint64) *Policy {
	if params == nil {
		params = NewParams()
	}
	return &Policy{Params: params, rng: rand.New(rand.NewPCG(seed1, seed2))}
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// Compute implements netem.Policy. pending is accepted but ignored — the
// reference model is stateless, as the design notes direct.
func (p *Policy) Compute(nowMs int64, _ []netem.PendingEntry, out []int64) []int64 {
	loss := p.Params.Loss()
	duplication := p.Params.Duplication()
	delay := p.Params.DelayMs()
	jitter := p.Params.JitterMs()

	for {
		if p.rng.Float64() >= loss {
			deadline := nowMs + delay - jitter
			if jitter > 0 {
				deadline += int64(p.rng.Float64() * float64(2*jitter))
			}
			out = append(out, deadline)
		}
		if p.rng.Float64() >= duplication {
			break
		}
	}
	return out
}

var _ netem.Policy = (*Policy)(nil)
