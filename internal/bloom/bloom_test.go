package bloom

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestNewSizesToPowerOfTwoWithFloor(t *testing.T) {
	f := New(1024)
	if got := f.mask + 1; got != minBits {
		t.Fatalf("expected floor of %d bits, got %d", minBits, got)
	}

	f = New(1 << 21)
	if got := f.mask + 1; got != 1<<21 {
		t.Fatalf("expected %d bits, got %d", 1<<21, got)
	}

	f = New((1 << 21) + 1)
	if got := f.mask + 1; got != 1<<22 {
		t.Fatalf("expected rounding up to %d bits, got %d", 1<<22, got)
	}
}

func TestTestAndSetFirstInsertReportsAbsent(t *testing.T) {
	f := New(minBits)
	if f.TestAndSet(1, 2) {
		t.Fatal("first insert of a fresh key must report absent")
	}
}

func TestTestAndSetRepeatInsertReportsPresent(t *testing.T) {
	f := New(minBits)
	f.TestAndSet(42, 7)
	if !f.TestAndSet(42, 7) {
		t.Fatal("second insert of the same key must report present")
	}
}

func TestTestAndSetDistinctKeysDontCollideTooOften(t *testing.T) {
	f := New(minBits)
	falsePositives := 0
	for i := uint64(0); i < 2000; i++ {
		if f.TestAndSet(i, i*31+1) {
			falsePositives++
		}
	}
	// with a 2^20-bit filter and 2000 keys the false positive rate should
	// be negligible; a large count would indicate a broken hash mix.
	if falsePositives > 50 {
		t.Fatalf("unexpectedly high false-positive count: %d/2000", falsePositives)
	}
}

func TestTestAndSetConcurrentInsertsAreRaceFree(t *testing.T) {
	f := New(minBits)
	var wg sync.WaitGroup
	for w := 0; w < 32; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				f.TestAndSet(uint64(w), uint64(i))
			}
		}(w)
	}
	wg.Wait()
}

func TestShiftRight128(t *testing.T) {
	hi, lo := shiftRight128(1, 0, 64)
	if hi != 0 || lo != 1 {
		t.Fatalf("shift by 64 of (1,0): got (%d,%d), want (0,1)", hi, lo)
	}

	hi, lo = shiftRight128(0, 1, 1)
	if hi != 0 || lo != 0 {
		t.Fatalf("shift right of 1 by 1: got (%d,%d), want (0,0)", hi, lo)
	}
}

func TestRotateLeft128RoundTrips(t *testing.T) {
	hi, lo := uint64(0xdeadbeefcafebabe), uint64(0x0123456789abcdef)
	rhi, rlo := rotateLeft128(hi, lo, 17)
	// rotating left by 17 then left by (128-17) must return the original.
	bhi, blo := rotateLeft128(rhi, rlo, 128-17)
	if bhi != hi || blo != lo {
		t.Fatalf("rotate round-trip mismatch: got (%x,%x), want (%x,%x)", bhi, blo, hi, lo)
	}
}

func TestFetchOrReturnsPriorValue(t *testing.T) {
	var a atomic.Uint64
	old := fetchOr(&a, 0b0010)
	if old != 0 {
		t.Fatalf("expected prior value 0, got %d", old)
	}
	old = fetchOr(&a, 0b0010)
	if old != 0b0010 {
		t.Fatalf("expected prior value 0b0010, got %b", old)
	}
}
