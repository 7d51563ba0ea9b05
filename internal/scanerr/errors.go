// Package scanerr implements the scanner's typed error taxonomy and the
// recovery-action mapping that decides how the orchestrator reacts to each
// failure class, grounded on
// original_source/hyperdu-core/src/error_handling.rs's ScanError/
// RecoveryAction/ErrorRecovery trio.
package scanerr

import (
	"errors"
	"fmt"
)

// RecoveryAction tells the caller what to do after an error was recorded.
type RecoveryAction int

const (
	// SkipEntry ignores the single file/directory entry and continues.
	SkipEntry RecoveryAction = iota
	// SkipDirectory abandons the whole directory the entry belongs to.
	SkipDirectory
	// Retry marks a transient failure that may succeed if attempted again.
	// Scan records it like any other per-entry error and does not
	// re-attempt the operation.
	Retry
	// Abort stops the entire scan.
	Abort
)

func (a RecoveryAction) String() string {
	switch a {
	case SkipEntry:
		return "skip_entry"
	case SkipDirectory:
		return "skip_directory"
	case Retry:
		return "retry"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// IOError wraps a generic I/O failure observed while reading a directory or
// stat'ing an entry.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string { return fmt.Sprintf("io error at %q: %v", e.Path, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// PermissionDeniedError marks an EACCES/EPERM failure.
type PermissionDeniedError struct {
	Path string
	Err  error
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied at %q: %v", e.Path, e.Err)
}
func (e *PermissionDeniedError) Unwrap() error { return e.Err }

// InvalidPathError marks an ENOENT/ENOTDIR failure — the path vanished or
// changed shape between readdir and stat.
type InvalidPathError struct {
	Path string
	Err  error
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid path %q: %v", e.Path, e.Err)
}
func (e *InvalidPathError) Unwrap() error { return e.Err }

// SystemCallError marks a raw syscall failure (statx, getdents64,
// io_uring_enter) identified by its errno.
type SystemCallError struct {
	Syscall string
	Path    string
	Errno   int
	Err     error
}

func (e *SystemCallError) Error() string {
	return fmt.Sprintf("%s(%q) failed: errno %d: %v", e.Syscall, e.Path, e.Errno, e.Err)
}
func (e *SystemCallError) Unwrap() error { return e.Err }

// Recover maps an error produced anywhere in the scan pipeline to the
// RecoveryAction the orchestrator should take, following the exact errno
// mapping in error_handling.rs's ErrorRecovery impl: EACCES/EPERM and
// ENOENT/ENOTDIR are skip-entry, EBUSY/EAGAIN are retry, everything else
// defaults to skip-entry rather than aborting the whole scan.
func Recover(err error) RecoveryAction {
	var perm *PermissionDeniedError
	if errors.As(err, &perm) {
		return SkipEntry
	}
	var inval *InvalidPathError
	if errors.As(err, &inval) {
		return SkipEntry
	}
	var sce *SystemCallError
	if errors.As(err, &sce) {
		switch sce.Errno {
		case 13, 1: // EACCES, EPERM
			return SkipEntry
		case 2, 20: // ENOENT, ENOTDIR
			return SkipEntry
		case 16, 11: // EBUSY, EAGAIN
			return Retry
		default:
			return SkipEntry
		}
	}
	return SkipEntry
}
