package tuner

import (
	"bytes"
	"testing"

	"github.com/michaelscutari/hyperdu/internal/knobs"
)

func TestNewDefaultsIntervalWhenNonPositive(t *testing.T) {
	k := knobs.New(4, 256, 256, 0)
	tr := New(k, 4, 0, nil)
	if tr.interval != defaultTickInterval {
		t.Fatalf("expected default interval %v, got %v", defaultTickInterval, tr.interval)
	}
}

func TestAdjustBatchBacksOffOnSQEFailures(t *testing.T) {
	k := knobs.New(2, 256, 256, 0)
	k.URingSQEFail.Store(3)
	tr := New(k, 2, 0, nil)
	tr.adjustBatch()
	if got := k.URingBatch.Load(); got != 192 {
		t.Fatalf("expected batch to drop by 64 to 192, got %d", got)
	}
}

func TestAdjustBatchNeverUnderflowsBelowMinimum(t *testing.T) {
	k := knobs.New(2, 64, 256, 0)
	k.URingSQEFail.Store(1)
	tr := New(k, 2, 0, nil)
	for i := 0; i < 5; i++ {
		tr.adjustBatch()
	}
	if got := k.URingBatch.Load(); got != uringBatchMin {
		t.Fatalf("expected batch clamped at minimum %d, got %d", uringBatchMin, got)
	}
}

func TestAdjustBatchNeverExceedsMaximum(t *testing.T) {
	k := knobs.New(2, uringBatchMax-10, 256, 0)
	tr := New(k, 2, 0, nil)
	// no failures and low average wait (0, since no completions yet) ramps up
	for i := 0; i < 10; i++ {
		tr.adjustBatch()
	}
	if got := k.URingBatch.Load(); got > uringBatchMax {
		t.Fatalf("expected batch clamped at or below maximum %d, got %d", uringBatchMax, got)
	}
}

func TestAdjustThreadsBacksOffOnFailuresOrLatency(t *testing.T) {
	k := knobs.New(8, 256, 256, 0)
	k.ActiveThreads.Store(5)
	k.URingSQEFail.Store(1)
	tr := New(k, 8, 0, nil)
	tr.adjustThreads()
	if got := k.ActiveThreads.Load(); got != 4 {
		t.Fatalf("expected active threads to drop to 4, got %d", got)
	}
}

func TestAdjustThreadsHoldsWithoutFailureOrImprovementSignal(t *testing.T) {
	k := knobs.New(8, 256, 256, 0)
	k.ActiveThreads.Store(3)
	tr := New(k, 8, 0, nil)
	// fpsChange defaults to 0: no throughput sample yet, so no ramp.
	tr.adjustThreads()
	if got := k.ActiveThreads.Load(); got != 3 {
		t.Fatalf("expected active threads to hold at 3 with no improvement signal, got %d", got)
	}
}

func TestAdjustThreadsRampsUpOnRateImprovement(t *testing.T) {
	k := knobs.New(8, 256, 256, 0)
	k.ActiveThreads.Store(3)
	tr := New(k, 8, 0, nil)
	tr.fpsChange = improvementThreshold + 0.01
	tr.adjustThreads()
	if got := k.ActiveThreads.Load(); got != 4 {
		t.Fatalf("expected active threads to ramp to 4 on a >5%% fps improvement, got %d", got)
	}
}

func TestAdjustThreadsClampsToMaxThreads(t *testing.T) {
	k := knobs.New(4, 256, 256, 0)
	k.ActiveThreads.Store(4)
	tr := New(k, 4, 0, nil)
	tr.fpsChange = improvementThreshold + 0.01
	tr.adjustThreads()
	if got := k.ActiveThreads.Load(); got != 4 {
		t.Fatalf("expected active threads clamped at maxThreads=4, got %d", got)
	}
}

func TestAdjustThreadsClampsToOne(t *testing.T) {
	k := knobs.New(4, 256, 256, 0)
	k.ActiveThreads.Store(1)
	k.URingSQEFail.Store(1)
	tr := New(k, 4, 0, nil)
	tr.adjustThreads()
	if got := k.ActiveThreads.Load(); got != 1 {
		t.Fatalf("expected active threads floored at 1, got %d", got)
	}
}

func TestLogfWritesOnlyWhenVerboseSet(t *testing.T) {
	k := knobs.New(2, 256, 256, 0)
	tr := New(k, 2, 0, nil)
	tr.logf("should not appear")

	var buf bytes.Buffer
	tr2 := New(k, 2, 0, &buf)
	tr2.logf("hello %d", 42)
	if buf.Len() == 0 {
		t.Fatal("expected logf to write to the verbose writer")
	}
	if !bytes.Contains(buf.Bytes(), []byte("hello 42")) {
		t.Fatalf("expected formatted message in output, got %q", buf.String())
	}
}

func TestClampI64(t *testing.T) {
	cases := []struct{ v, lo, hi, want int64 }{
		{5, 0, 10, 5},
		{-5, 0, 10, 0},
		{15, 0, 10, 10},
	}
	for _, c := range cases {
		if got := clampI64(c.v, c.lo, c.hi); got != c.want {
			t.Errorf("clampI64(%d,%d,%d) = %d, want %d", c.v, c.lo, c.hi, got, c.want)
		}
	}
}
