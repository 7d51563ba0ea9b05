package sched

import (
	"sync"

	"github.com/michaelscutari/hyperdu/internal/job"
)

// Deque is a per-worker, growable work-stealing deque: the owner pushes and
// pops from the bottom (LIFO, cache-friendly depth-first descent into
// subdirectories), while other workers steal from the top (FIFO, so a
// thief takes the oldest, typically largest, unexplored subtree).
//
// Grounded on
// other_examples/f4d794bd_go-foundations-workerpool__strategies-work_stealing.go.go's
// WorkStealingDeque, generalized to grow instead of rejecting pushes when
// full.
type Deque struct {
	mu     sync.RWMutex
	buf    []job.Job
	bottom int
	top    int
}

// NewDeque returns an empty deque with a small initial capacity.
func NewDeque() *Deque {
	return &Deque{buf: make([]job.Job, 16)}
}

// PushBottom is called only by the owning worker.
func (d *Deque) PushBottom(j job.Job) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bottom >= len(d.buf) {
		d.grow()
	}
	d.buf[d.bottom] = j
	d.bottom++
}

func (d *Deque) grow() {
	next := make([]job.Job, len(d.buf)*2)
	copy(next, d.buf[d.top:d.bottom])
	d.bottom -= d.top
	d.top = 0
	d.buf = next
}

// PopBottom is called only by the owning worker; it takes the
// most-recently-pushed job.
func (d *Deque) PopBottom() (job.Job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bottom <= d.top {
		return job.Job{}, false
	}
	d.bottom--
	return d.buf[d.bottom], true
}

// Steal is called by any other worker; it takes the oldest job. It
// mutates top, so — unlike a true lock-free Chase-Lev deque — it takes the
// full lock rather than a read lock, trading some steal-side contention for
// a straightforward, race-free implementation.
func (d *Deque) Steal() (job.Job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.top >= d.bottom {
		return job.Job{}, false
	}
	j := d.buf[d.top]
	d.top++
	return j, true
}

// Len reports the number of jobs currently held.
func (d *Deque) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.bottom <= d.top {
		return 0
	}
	return d.bottom - d.top
}
