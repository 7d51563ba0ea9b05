package hyperdu

import (
	"errors"
	"io"
	"os"
	"syscall"

	"github.com/michaelscutari/hyperdu/internal/scanerr"
)

// classifyErr wraps a raw error surfaced by a backend into the typed
// scanerr hierarchy, so scanerr.Recover can make its recovery decision
// without each backend needing to know the taxonomy itself.
func classifyErr(path string, cause error) error {
	var errno syscall.Errno
	if errors.As(cause, &errno) {
		switch errno {
		case syscall.EACCES, syscall.EPERM:
			return &scanerr.PermissionDeniedError{Path: path, Err: cause}
		case syscall.ENOENT, syscall.ENOTDIR:
			return &scanerr.InvalidPathError{Path: path, Err: cause}
		default:
			return &scanerr.SystemCallError{Syscall: "stat", Path: path, Errno: int(errno), Err: cause}
		}
	}
	if os.IsPermission(cause) {
		return &scanerr.PermissionDeniedError{Path: path, Err: cause}
	}
	if os.IsNotExist(cause) {
		return &scanerr.InvalidPathError{Path: path, Err: cause}
	}
	return &scanerr.IOError{Path: path, Err: cause}
}

// tunerWriter returns the writer the adaptive tuner should trace to, or
// nil to disable tracing, mirroring Options.Verbose/VerboseOut.
func tunerWriter(opts *Options) io.Writer {
	if !opts.Verbose {
		return nil
	}
	return opts.VerboseOut
}
