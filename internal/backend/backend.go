// Package backend defines the platform-specific directory-walking
// strategy interface from spec.md §4.3–§4.5, plus the shared Context every
// implementation reads its configuration and shared state from.
//
// Exactly one implementation is compiled per platform via build tags:
// linux_fast.go and linux_uring.go (linux), windows.go (windows), and
// unix_generic.go (every other target, including darwin) — the fallback
// any complete Unix-like system gets when it has neither getdents64 nor
// io_uring, grounded directly on the teacher's
// internal/scan/worker.go:ProcessDirectory, which already reads a
// directory with the equivalent portable os.ReadDir + Lstat pair.
package backend

import (
	"io"

	"github.com/michaelscutari/hyperdu/internal/dedup"
	"github.com/michaelscutari/hyperdu/internal/filter"
	"github.com/michaelscutari/hyperdu/internal/job"
	"github.com/michaelscutari/hyperdu/internal/knobs"
	"github.com/michaelscutari/hyperdu/internal/statmap"
)

// Config is the read-only, platform-independent configuration a backend
// needs, derived from Options at Scan start.
type Config struct {
	OneFileSystem   bool
	FollowSymlinks  bool
	ComputePhysical bool
	CountHardlinks  bool
	Verbose         bool
	VerboseOut      io.Writer
	// NoAutomount requests AT_NO_AUTOMOUNT on the Linux backends' statx
	// calls, mirroring CompatPosixStrict; ignored on every other
	// platform. AT_STATX_DONT_SYNC is always added on Linux regardless
	// of this flag.
	NoAutomount bool
	// MaxDepth caps how many levels below the scan root a backend will
	// push child-directory jobs; 0 means unlimited. The subdirectories of
	// the directory at j.Depth are only enqueued when j.Depth < MaxDepth, per spec.md §3's
	// depth-cap knob and §8's depth-monotonicity property.
	MaxDepth uint32
	// MinFileSize excludes regular files smaller than this from both the
	// Stat accumulation and the file count, per spec.md §8 property #1
	// ("its size >= min-file-size").
	MinFileSize uint64
	// Approximate enables spec.md §4.3's fast path: when MinFileSize is 0,
	// every regular file is counted as a fixed 4 KiB of logical and
	// physical usage with no statx/Lstat call at all. A non-zero
	// MinFileSize still needs the real size to filter by, so the shortcut
	// only applies when no size threshold is configured.
	Approximate bool
}

// Context bundles everything a backend implementation shares across every
// directory it expands during one scan: tuning knobs, the hardlink-dedup
// and visited-directory sets, the compiled exclude pipeline, and the
// config snapshot.
type Context struct {
	Cfg     Config
	Knobs   *knobs.Knobs
	Dedup   *dedup.Set
	Visited *dedup.Set
	Filters *filter.Pipeline
	RootDev uint64 // device of the scan root, for OneFileSystem comparisons
}

// Backend expands one directory job, reporting its own (non-recursive)
// Stat contribution directly into out, emitting any subdirectories found
// as new jobs via enqueueDir, and returning an error only for a failure
// to open, seek or read the directory itself — per-entry failures are
// recorded through recordErr and do not abort the directory.
type Backend interface {
	// ExpandDir reads j.Dir's immediate children, applies the exclude
	// pipeline, folds file stats into out[j.Dir], and calls enqueueDir for
	// every subdirectory that should be recursed into.
	ExpandDir(ctx *Context, j job.Job, out statmap.Map, enqueueDir func(job.Job), recordErr func(path string, err error)) error
}
