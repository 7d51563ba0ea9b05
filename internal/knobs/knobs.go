// Package knobs holds the live, atomically-mutable tuning values and
// counters shared between workers, platform backends, and the adaptive
// tuner. Every field is an atomic type so the tuner can adjust live values
// without coordinating with in-flight workers, mirroring
// original_source/hyperdu-core/src/lib.rs's Options, which stores these as
// AtomicU64/AtomicUsize fields for the same reason.
package knobs

import "sync/atomic"

// Knobs is shared by reference across every goroutine touching a single
// scan. The tunable fields (DirYieldEvery, URingBatch, URingSQDepth,
// ActiveThreads) are read continuously by workers/backends and written by
// the tuner goroutine (the io_uring backend also grows URingBatch by one
// at a time, up to URingSQDepth); the counters are written by workers/backends and
// read only by the tuner.
type Knobs struct {
	DirYieldEvery atomic.Uint64
	URingBatch    atomic.Uint64
	URingSQDepth  atomic.Uint64
	ActiveThreads atomic.Int64

	URingSQEFail      atomic.Uint64
	URingSubmitWaitNs atomic.Uint64
	URingSQEEnq       atomic.Uint64
	URingCQEComp      atomic.Uint64
	URingCQEErr       atomic.Uint64

	ErrorCount atomic.Uint64
	TotalFiles atomic.Uint64

	Cancel atomic.Bool
}

// New returns a Knobs seeded with the given starting values.
func New(threads int, uringBatch, uringSQDepth, dirYieldEvery uint64) *Knobs {
	k := &Knobs{}
	k.ActiveThreads.Store(int64(threads))
	k.URingBatch.Store(uringBatch)
	k.URingSQDepth.Store(uringSQDepth)
	k.DirYieldEvery.Store(dirYieldEvery)
	return k
}
