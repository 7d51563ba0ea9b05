package hyperdu

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/michaelscutari/hyperdu/internal/backend"
	"github.com/michaelscutari/hyperdu/internal/dedup"
	"github.com/michaelscutari/hyperdu/internal/job"
	"github.com/michaelscutari/hyperdu/internal/knobs"
	"github.com/michaelscutari/hyperdu/internal/rollup"
	"github.com/michaelscutari/hyperdu/internal/scanerr"
	"github.com/michaelscutari/hyperdu/internal/sched"
	"github.com/michaelscutari/hyperdu/internal/statmap"
	"github.com/michaelscutari/hyperdu/internal/tuner"
)

// ErrTooManyErrors is returned by Scan when the accumulated per-entry
// error count crosses Options.Output.MaxErrors, causing the scan to abort
// early per spec.md §4.8.
var ErrTooManyErrors = errors.New("hyperdu: too many errors, scan aborted")

// expectedInodeCardinality seeds the hardlink-dedup and visited-directory
// Bloom filters; oversizing is cheap (a few MB of bits) and undersizing
// only costs extra exact-map lookups, never correctness.
const expectedInodeCardinality = 1 << 20

// Scan walks root with the given Options (DefaultOptions() if nil) and
// returns the cumulative StatMap, per spec.md §6. The returned error is
// ErrTooManyErrors when the error budget was exhausted, or a wrapped
// syscall error if root itself could not be opened at all; everything
// else is recorded per-entry via the §4.8 recovery policy and does not
// fail the scan.
func Scan(ctx context.Context, root string, opts *Options) (StatMap, error) {
	if opts == nil {
		var err error
		opts, err = NewOptionsBuilder().Build()
		if err != nil {
			return nil, err
		}
	}
	filters, err := opts.compiledFilters()
	if err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}
	absRoot = filepath.Clean(absRoot)

	rootDev, err := backend.RootDevice(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root %q: %w", absRoot, err)
	}
	rootDir, err := os.Open(absRoot)
	if err != nil {
		return nil, fmt.Errorf("open root %q: %w", absRoot, err)
	}
	rootDir.Close()

	workers := opts.Perf.Workers
	if workers < 1 {
		workers = 1
	}

	k := knobs.New(workers, opts.Perf.URingBatchInit, opts.Perf.URingSQDepthInit, opts.Perf.DirYieldInit)

	bcfg := backend.Config{
		OneFileSystem:   opts.Filter.OneFileSystem,
		FollowSymlinks:  opts.Filter.FollowSymlinks,
		ComputePhysical: opts.Perf.ComputePhysical,
		CountHardlinks:  opts.Perf.CountHardlinks,
		Verbose:         opts.Verbose,
		VerboseOut:      opts.VerboseOut,
		NoAutomount:     opts.Compat.Mode == CompatPosixStrict,
		MaxDepth:        opts.Filter.MaxDepth,
		MinFileSize:     opts.Filter.MinFileSize,
		Approximate:     opts.Perf.Approximate,
	}
	bctx := &backend.Context{
		Cfg:     bcfg,
		Knobs:   k,
		Dedup:   dedup.NewSet(expectedInodeCardinality),
		Visited: dedup.NewSet(expectedInodeCardinality),
		Filters: filters,
		RootDev: rootDev,
	}

	be := backend.New(opts.Perf.UseIOUring, uint32(opts.Perf.URingSQDepthInit))
	if closer, ok := be.(interface{ Close() }); ok {
		defer closer.Close()
	}

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if opts.Tuning.Auto {
		tn := tuner.New(k, workers, opts.Tuning.Interval, tunerWriter(opts))
		go tn.Run(scanCtx)
	}

	scheduler := sched.NewScheduler(workers)
	var pending atomic.Int64
	pending.Store(1)
	scheduler.Enqueue(0, job.Job{Dir: absRoot, Depth: 0})

	var errMu sync.Mutex
	var recordedErr error
	recordErr := func(path string, cause error) {
		k.ErrorCount.Add(1)
		classified := classifyErr(path, cause)
		action := scanerr.Recover(classified)
		if opts.Verbose {
			fmt.Fprintf(opts.VerboseOut, "[SCAN] %v (action=%s)\n", classified, action)
		}
		if action == scanerr.Abort || k.ErrorCount.Load() > opts.Output.MaxErrors {
			errMu.Lock()
			if recordedErr == nil {
				recordedErr = ErrTooManyErrors
			}
			errMu.Unlock()
			cancel()
		}
	}

	partials := make([]statmap.Map, workers)
	var wg sync.WaitGroup
	for id := 0; id < workers; id++ {
		partials[id] = statmap.New()
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runWorker(scanCtx, id, scheduler, be, bctx, partials[id], &pending, recordErr)
		}(id)
	}
	wg.Wait()
	scheduler.Close()

	merged := statmap.New()
	for _, p := range partials {
		merged.Merge(p)
	}
	result := rollup.Rollup(merged)

	if recordedErr != nil {
		return result, recordedErr
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// activeThreadsThrottle is how long a worker whose index has fallen
// outside the tuner's current active_threads window sleeps before
// rechecking, per spec.md §4.2.
const activeThreadsThrottle = 5 * time.Millisecond

func runWorker(ctx context.Context, id int, scheduler *sched.Scheduler, be backend.Backend, bctx *backend.Context, out statmap.Map, pending *atomic.Int64, recordErr func(string, error)) {
	enqueue := func(j job.Job) {
		pending.Add(1)
		scheduler.Enqueue(id, j)
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if int64(id) >= bctx.Knobs.ActiveThreads.Load() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(activeThreadsThrottle):
			}
			continue
		}

		j, ok := scheduler.Fetch(id)
		if !ok {
			if pending.Load() == 0 {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(sched.BackoffDuration()):
			}
			continue
		}

		if err := be.ExpandDir(bctx, j, out, enqueue, recordErr); err != nil {
			recordErr(j.Dir, err)
		}
		pending.Add(-1)
	}
}
