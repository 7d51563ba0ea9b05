//go:build !linux && !windows

package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/michaelscutari/hyperdu/internal/job"
	"github.com/michaelscutari/hyperdu/internal/statmap"
)

// genericUnix is the portable fallback backend for any Unix-like target
// without a platform-specific fast path (darwin, freebsd, and friends):
// os.ReadDir to list, os.Lstat per child to classify and size, exactly as
// the teacher's internal/scan/worker.go:ProcessDirectory does it.
type genericUnix struct{}

// New returns the backend for this platform. Both arguments are ignored
// here — only linux has an io_uring pipeline to select or size.
func New(useURing bool, initialSQDepth uint32) Backend {
	return &genericUnix{}
}

func (genericUnix) ExpandDir(ctx *Context, j job.Job, out statmap.Map, enqueueDir func(job.Job), recordErr func(string, error)) error {
	entries, err := os.ReadDir(j.Dir)
	if err != nil {
		return fmt.Errorf("readdir %q: %w", j.Dir, err)
	}

	// Seed a zero Stat for j.Dir so a directory with no direct files of its
	// own still appears as a key for internal/rollup.Rollup to walk.
	out.AddTo(j.Dir, statmap.Stat{})

	start := 0
	if j.Resume != nil {
		// os.ReadDir returns entries sorted by name, which is stable across
		// calls for an unmodified directory; there's no telldir/seekdir
		// equivalent exposed by the standard library on this platform, so
		// the resume cookie is approximated as an index into that sorted
		// order rather than a true directory-stream offset.
		start = int(*j.Resume)
	}

	yieldEvery := ctx.Knobs.DirYieldEvery.Load()
	for i := start; i < len(entries); i++ {
		de := entries[i]
		// Large-directory fairness (spec.md §4.3/§4.9): once this call has
		// consumed dir_yield_every entries from this starting point, save
		// the next index as a resume cookie and hand the continuation to
		// the scheduler as a high-priority job.
		if yieldEvery != 0 && i != start && uint64(i-start)%yieldEvery == 0 {
			cookie := uint64(i)
			enqueueDir(job.Job{Dir: j.Dir, Depth: j.Depth, Resume: &cookie})
			return nil
		}

		name := de.Name()
		checkPath := name
		if ctx.Filters.NeedsFullPath() {
			checkPath = filepath.Join(j.Dir, name)
		}
		if ctx.Filters.Excluded(name, checkPath) {
			continue
		}
		fullPath := filepath.Join(j.Dir, name)

		if ctx.Cfg.Approximate && ctx.Cfg.MinFileSize == 0 && de.Type().IsRegular() {
			// spec.md §4.3 fast path: skip the Lstat call entirely and
			// charge a fixed 4 KiB of logical/physical usage per file.
			out.AddTo(j.Dir, statmap.Stat{Logical: 4096, Physical: 4096, Files: 1})
			ctx.Knobs.TotalFiles.Add(1)
			continue
		}

		info, err := os.Lstat(fullPath)
		if err != nil {
			recordErr(fullPath, err)
			continue
		}

		sys, ok := info.Sys().(*syscall.Stat_t)
		if !ok {
			recordErr(fullPath, fmt.Errorf("unsupported stat_t on this platform"))
			continue
		}
		dev, ino := uint64(sys.Dev), uint64(sys.Ino)

		if info.IsDir() {
			if ctx.Cfg.OneFileSystem && dev != ctx.RootDev {
				continue
			}
			if ctx.Visited.CheckAndInsert(dev, ino) {
				continue // already visited: symlink loop or re-entrant mount
			}
			if ctx.Cfg.MaxDepth == 0 || j.Depth < ctx.Cfg.MaxDepth {
				enqueueDir(job.Job{Dir: fullPath, Depth: j.Depth + 1})
			}
			continue
		}

		if info.Mode()&os.ModeSymlink != 0 && !ctx.Cfg.FollowSymlinks {
			continue
		}

		if uint64(info.Size()) < ctx.Cfg.MinFileSize {
			continue
		}

		if !ctx.Cfg.CountHardlinks && sys.Nlink > 1 {
			if ctx.Dedup.CheckAndInsert(dev, ino) {
				continue // already counted this inode via another hardlink
			}
		}

		physBlocks := uint64(0)
		if ctx.Cfg.ComputePhysical {
			physBlocks = uint64(sys.Blocks) * 512
		}

		out.AddTo(j.Dir, statmap.Stat{
			Logical:  uint64(info.Size()),
			Physical: physBlocks,
			Files:    1,
		})
		ctx.Knobs.TotalFiles.Add(1)
	}
	return nil
}
