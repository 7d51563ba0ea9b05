package hyperdu

import (
	"errors"
	"os"
	"syscall"
	"testing"

	"github.com/michaelscutari/hyperdu/internal/scanerr"
)

func TestClassifyErrSyscallErrno(t *testing.T) {
	wrapped := &os.PathError{Op: "stat", Path: "/x", Err: syscall.EACCES}
	got := classifyErr("/x", wrapped)
	var perm *scanerr.PermissionDeniedError
	if !errors.As(got, &perm) {
		t.Fatalf("expected a PermissionDeniedError, got %T", got)
	}
}

func TestClassifyErrENOENT(t *testing.T) {
	wrapped := &os.PathError{Op: "open", Path: "/x", Err: syscall.ENOENT}
	got := classifyErr("/x", wrapped)
	var inval *scanerr.InvalidPathError
	if !errors.As(got, &inval) {
		t.Fatalf("expected an InvalidPathError, got %T", got)
	}
}

func TestClassifyErrGenericSyscallErrno(t *testing.T) {
	wrapped := &os.PathError{Op: "statx", Path: "/x", Err: syscall.EBUSY}
	got := classifyErr("/x", wrapped)
	var sce *scanerr.SystemCallError
	if !errors.As(got, &sce) {
		t.Fatalf("expected a SystemCallError, got %T", got)
	}
}

func TestClassifyErrPlainErrorFallsBackToIOError(t *testing.T) {
	got := classifyErr("/x", errors.New("mystery failure"))
	var ioErr *scanerr.IOError
	if !errors.As(got, &ioErr) {
		t.Fatalf("expected an IOError, got %T", got)
	}
}

func TestTunerWriterNilWhenNotVerbose(t *testing.T) {
	opts := &Options{Verbose: false, VerboseOut: os.Stderr}
	if w := tunerWriter(opts); w != nil {
		t.Fatal("expected nil writer when Verbose is false")
	}
}

func TestTunerWriterReturnsConfiguredWriterWhenVerbose(t *testing.T) {
	opts := &Options{Verbose: true, VerboseOut: os.Stdout}
	if w := tunerWriter(opts); w != os.Stdout {
		t.Fatal("expected the configured VerboseOut when Verbose is true")
	}
}
