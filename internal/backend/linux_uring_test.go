//go:build linux

package backend

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/michaelscutari/hyperdu/internal/knobs"
)

func TestWriteStatxSQEEncodesFields(t *testing.T) {
	sqe := make([]byte, sqeSize)
	var out unix.Statx_t
	cPath := []byte("file.txt\x00")

	writeStatxSQE(sqe, 5, cPath, &out, 0x1234, 0x5678, 0xdeadbeef)

	if sqe[0] != ioringOpStatx {
		t.Fatalf("opcode = %d, want %d", sqe[0], ioringOpStatx)
	}
	if got := decodeU32(sqe[4:]); got != 5 {
		t.Fatalf("fd = %d, want 5", got)
	}
	if got := decodeU32(sqe[24:]); got != 0x5678 {
		t.Fatalf("len(mask) = %#x, want %#x", got, 0x5678)
	}
	if got := decodeU32(sqe[28:]); got != 0x1234 {
		t.Fatalf("statx_flags = %#x, want %#x", got, 0x1234)
	}
	if got := decodeU64(sqe[32:]); got != 0xdeadbeef {
		t.Fatalf("user_data = %#x, want %#x", got, 0xdeadbeef)
	}
	// addr2 (out buffer pointer) and addr (path pointer) must both be
	// non-zero and distinct — the kernel ABI requires both for
	// IORING_OP_STATX (path in addr, result buffer in addr2).
	addr2 := decodeU64(sqe[8:])
	addr := decodeU64(sqe[16:])
	if addr2 == 0 {
		t.Fatal("expected addr2 (output buffer pointer) to be non-zero")
	}
	if addr == 0 {
		t.Fatal("expected addr (path pointer) to be non-zero")
	}
	if addr == addr2 {
		t.Fatal("expected distinct path and output buffer pointers")
	}
}

func TestWriteStatxSQEZeroesStaleBytes(t *testing.T) {
	sqe := make([]byte, sqeSize)
	for i := range sqe {
		sqe[i] = 0xff
	}
	var out unix.Statx_t
	cPath := []byte("a\x00")
	writeStatxSQE(sqe, 1, cPath, &out, 0, 0, 0)
	if sqe[1] != 0 {
		t.Fatalf("expected stale flags byte cleared, got %#x", sqe[1])
	}
}

func TestReadCQERoundTrips(t *testing.T) {
	buf := make([]byte, 64)
	const cqesOff = 16
	putU64(buf[cqesOff:], 777)
	putU32(buf[cqesOff+8:], uint32(int32(-5)))

	userData, res := readCQE(buf, cqesOff, 0)
	if userData != 777 {
		t.Fatalf("userData = %d, want 777", userData)
	}
	if res != -5 {
		t.Fatalf("res = %d, want -5", res)
	}
}

func TestReadCQEOutOfBoundsReturnsError(t *testing.T) {
	buf := make([]byte, 8)
	_, res := readCQE(buf, 0, 5)
	if res >= 0 {
		t.Fatalf("expected a negative sentinel for an out-of-bounds read, got %d", res)
	}
}

func TestGrowWindowHintIncreasesAndCaps(t *testing.T) {
	k := knobs.New(4, 256, 1000, 0)
	lr := &linuxURing{}
	ctx := &Context{Knobs: k}

	lr.growWindowHint(ctx)
	if got := k.URingBatch.Load(); got != 257 {
		t.Fatalf("expected the window to grow by 1 from 256 to 257, got %d", got)
	}

	k.URingBatch.Store(1000)
	lr.growWindowHint(ctx)
	if got := k.URingBatch.Load(); got != 1000 {
		t.Fatalf("expected the window capped at sq_depth 1000, got %d", got)
	}
}

func decodeU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func decodeU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
