package netem

import (
	"reflect"
	"testing"
)

func TestPolicyFunc_AdaptsPlainFunction(t *testing.T) {
	var gotNow int64
	var gotPending []PendingEntry

	fn := PolicyFunc(func(nowMs int64, pending []PendingEntry, out []int64) []int64 {
		gotNow = nowMs
		gotPending = pending
		return append(out, nowMs+1, nowMs+2)
	})

	var p Policy = fn
	out := p.Compute(100, []PendingEntry{{DeadlineMs: 50}}, nil)

	if gotNow != 100 {
		t.Fatalf("nowMs = %d, want 100", gotNow)
	}
	if !reflect.DeepEqual(gotPending, []PendingEntry{{DeadlineMs: 50}}) {
		t.Fatalf("pending = %v, want one entry with DeadlineMs=50", gotPending)
	}
	if !reflect.DeepEqual(out, []int64{101, 102}) {
		t.Fatalf("out = %v, want [101 102]", out)
	}
}

func TestPolicyFunc_DropPolicyEmitsNothing(t *testing.T) {
	drop := PolicyFunc(func(int64, []PendingEntry, []int64) []int64 { return nil })
	out := drop.Compute(0, nil, nil)
	if len(out) != 0 {
		t.Fatalf("expected drop policy to emit 0 deadlines, got %d", len(out))
	}
}
