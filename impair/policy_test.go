package impair

import (
	"math"
	"testing"

	"github.com/mucaho/jnetemu/netem"
)

func TestParams_DefaultsMatchDocumentedValues(t *testing.T) {
	p := NewParams()
	if p.Loss() != DefaultLoss {
		t.Fatalf("Loss() = %v, want %v", p.Loss(), DefaultLoss)
	}
	if p.Duplication() != DefaultDuplication {
		t.Fatalf("Duplication() = %v, want %v", p.Duplication(), DefaultDuplication)
	}
	if p.DelayMs() != DefaultDelayMs {
		t.Fatalf("DelayMs() = %v, want %v", p.DelayMs(), DefaultDelayMs)
	}
	if p.JitterMs() != DefaultJitterMs {
		t.Fatalf("JitterMs() = %v, want %v", p.JitterMs(), DefaultJitterMs)
	}
}

func TestParams_SettersAreVisibleImmediately(t *testing.T) {
	p := NewParams()
	p.SetLoss(0.5)
	p.SetDuplication(0.25)
	p.SetDelayMs(42)
	p.SetJitterMs(7)

	if p.Loss() != 0.5 || p.Duplication() != 0.25 || p.DelayMs() != 42 || p.JitterMs() != 7 {
		t.Fatalf("setters not reflected: loss=%v dup=%v delay=%v jitter=%v",
			p.Loss(), p.Duplication(), p.DelayMs(), p.JitterMs())
	}
}

func TestPolicy_LossOneProducesNoDeadlines(t *testing.T) {
	params := NewParams()
	params.SetLoss(1.0)
	params.SetDuplication(0)

	policy := NewSeeded(params, 1, 2)
	for i := 0; i < 50; i++ {
		out := policy.Compute(int64(i), nil, nil)
		if len(out) != 0 {
			t.Fatalf("loss=1.0 should never emit a deadline, got %v", out)
		}
	}
}

func TestPolicy_ZeroLossAlwaysEmitsAtLeastOne(t *testing.T) {
	params := NewParams()
	params.SetLoss(0)
	params.SetDuplication(0)
	params.SetDelayMs(0)
	params.SetJitterMs(0)

	policy := NewSeeded(params, 3, 4)
	for i := 0; i < 50; i++ {
		out := policy.Compute(int64(i*10), nil, nil)
		if len(out) != 1 {
			t.Fatalf("loss=0, dup=0 should emit exactly 1 deadline, got %d", len(out))
		}
		if out[0] != int64(i*10) {
			t.Fatalf("with delay=0 jitter=0 the deadline should equal now, got %d want %d", out[0], i*10)
		}
	}
}

func TestPolicy_JitterStaysWithinBounds(t *testing.T) {
	params := NewParams()
	params.SetLoss(0)
	params.SetDuplication(0)
	params.SetDelayMs(100)
	params.SetJitterMs(50)

	policy := NewSeeded(params, 5, 6)
	for i := 0; i < 500; i++ {
		out := policy.Compute(0, nil, nil)
		if len(out) != 1 {
			t.Fatalf("expected exactly one deadline, got %d", len(out))
		}
		d := out[0]
		if d < 50 || d > 150 {
			t.Fatalf("deadline %d out of [delay-jitter, delay+jitter] = [50,150]", d)
		}
	}
}

// TestPolicy_DuplicationFollowsGeometricMean checks the reference
// model's documented law: with loss=0 and duplication=p, the number of
// deadlines emitted per call follows a geometric distribution with mean
// 1/(1-p).
func TestPolicy_DuplicationFollowsGeometricMean(t *testing.T) {
	const dup = 0.5
	params := NewParams()
	params.SetLoss(0)
	params.SetDuplication(dup)
	params.SetDelayMs(0)
	params.SetJitterMs(0)

	policy := NewSeeded(params, 42, 99)

	const trials = 20000
	var total int
	for i := 0; i < trials; i++ {
		out := policy.Compute(0, nil, nil)
		if len(out) < 1 {
			t.Fatalf("loss=0 must always emit at least one deadline")
		}
		total += len(out)
	}

	want := 1 / (1 - dup)
	got := float64(total) / trials
	if math.Abs(got-want) > 0.1 {
		t.Fatalf("mean duplicate count = %v, want close to %v", got, want)
	}
}

var _ netem.Policy = (*Policy)(nil)
