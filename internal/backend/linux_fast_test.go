//go:build linux

package backend

import (
	"encoding/binary"
	"testing"

	"golang.org/x/sys/unix"
)

// makeDirent builds a single struct dirent64 record at buf[0:], returning
// its reclen, mirroring the layout direntReclen/direntName/etc. parse.
func makeDirent(name string, dtype byte) []byte {
	nameLen := len(name) + 1 // NUL terminator
	reclen := direntNameOff + nameLen
	// round up to 8-byte alignment, as the kernel does.
	if pad := reclen % 8; pad != 0 {
		reclen += 8 - pad
	}
	buf := make([]byte, reclen)
	binary.LittleEndian.PutUint64(buf[direntInoOff:], 123)
	binary.LittleEndian.PutUint64(buf[direntOffOff:], 456)
	binary.LittleEndian.PutUint16(buf[direntReclenOff:], uint16(reclen))
	buf[direntTypeOff] = dtype
	copy(buf[direntNameOff:], name)
	return buf
}

func TestDirentFieldParsing(t *testing.T) {
	buf := makeDirent("somefile.txt", dtReg)
	reclen := direntReclen(buf, 0)
	if reclen != len(buf) {
		t.Fatalf("direntReclen = %d, want %d", reclen, len(buf))
	}
	if got := direntOffField(buf, 0); got != 456 {
		t.Fatalf("direntOffField = %d, want 456", got)
	}
	if got := direntType(buf, 0); got != dtReg {
		t.Fatalf("direntType = %d, want %d", got, dtReg)
	}
	if got := direntName(buf, 0, reclen); got != "somefile.txt" {
		t.Fatalf("direntName = %q, want %q", got, "somefile.txt")
	}
}

func TestDirentNameStopsAtNUL(t *testing.T) {
	buf := makeDirent("short", dtDir)
	// the padding bytes after the NUL terminator must not leak into the name.
	if got := direntName(buf, 0, len(buf)); got != "short" {
		t.Fatalf("direntName = %q, want %q", got, "short")
	}
}

func TestMultipleDirentsConcatenated(t *testing.T) {
	a := makeDirent("a", dtReg)
	b := makeDirent("bb", dtDir)
	buf := append(append([]byte{}, a...), b...)

	reclenA := direntReclen(buf, 0)
	if got := direntName(buf, 0, reclenA); got != "a" {
		t.Fatalf("first entry name = %q, want %q", got, "a")
	}
	if got := direntType(buf, 0); got != dtReg {
		t.Fatalf("first entry type = %d, want %d", got, dtReg)
	}

	off := reclenA
	reclenB := direntReclen(buf, off)
	if got := direntName(buf, off, reclenB); got != "bb" {
		t.Fatalf("second entry name = %q, want %q", got, "bb")
	}
	if got := direntType(buf, off); got != dtDir {
		t.Fatalf("second entry type = %d, want %d", got, dtDir)
	}
}

func TestBuildStatxMaskAlwaysIncludesInoSizeMode(t *testing.T) {
	mask := buildStatxMask(Config{})
	want := uint32(unix.STATX_SIZE | unix.STATX_MODE | unix.STATX_INO)
	if mask != want {
		t.Fatalf("buildStatxMask(minimal) = %b, want %b", mask, want)
	}
	if mask&unix.STATX_BLOCKS != 0 {
		t.Fatal("STATX_BLOCKS should not be set unless ComputePhysical is requested")
	}
}

func TestBuildStatxMaskAddsBlocksWhenPhysicalRequested(t *testing.T) {
	mask := buildStatxMask(Config{ComputePhysical: true})
	if mask&unix.STATX_BLOCKS == 0 {
		t.Fatal("expected STATX_BLOCKS to be set when ComputePhysical is true")
	}
}
