package sched

import (
	"math/rand"
	"time"

	"github.com/michaelscutari/hyperdu/internal/job"
)

// Scheduler hands each worker a private Deque and round-robins steal
// attempts across the others when both its deque and the injectors are
// empty, per spec.md §4.2.
type Scheduler struct {
	High   *Injector
	Normal *Injector
	deques []*Deque
}

// NewScheduler allocates one Deque per worker.
func NewScheduler(workers int) *Scheduler {
	s := &Scheduler{
		High:   NewInjector(),
		Normal: NewInjector(),
		deques: make([]*Deque, workers),
	}
	for i := range s.deques {
		s.deques[i] = NewDeque()
	}
	return s
}

// Deque returns the private deque owned by worker id.
func (s *Scheduler) Deque(id int) *Deque {
	return s.deques[id]
}

// Fetch implements the fetch order: own deque (LIFO) first, then the
// high-priority injector (resumed jobs), then the normal injector (fresh
// directories), then a round-robin steal attempt across every other
// worker's deque. It returns ok = false only when nothing was found
// anywhere, in which case the caller should back off briefly before
// retrying.
func (s *Scheduler) Fetch(id int) (job.Job, bool) {
	own := s.deques[id]
	if j, ok := own.PopBottom(); ok {
		return j, true
	}
	if j, ok := s.High.Pop(); ok {
		return j, true
	}
	if j, ok := s.Normal.Pop(); ok {
		return j, true
	}

	n := len(s.deques)
	if n <= 1 {
		return job.Job{}, false
	}
	start := rand.Intn(n)
	for attempt := 0; attempt < n; attempt++ {
		victim := (start + attempt) % n
		if victim == id {
			continue
		}
		if j, ok := s.deques[victim].Steal(); ok {
			return j, true
		}
	}
	return job.Job{}, false
}

// Enqueue pushes a freshly discovered directory onto the owning worker's
// own deque, preserving depth-first locality; other idle workers reach it
// via Steal or, if the owner calls Spill, via the normal injector. A
// resumed job always goes to the high-priority injector.
func (s *Scheduler) Enqueue(id int, j job.Job) {
	if j.High() {
		s.High.Push(j)
		return
	}
	s.deques[id].PushBottom(j)
}

// Spill moves half of the owning worker's local deque into the normal
// injector, giving idle workers something to steal without contending on
// the deque's lock via repeated Steal calls.
func (s *Scheduler) Spill(id int) {
	own := s.deques[id]
	half := own.Len() / 2
	for i := 0; i < half; i++ {
		j, ok := own.PopBottom()
		if !ok {
			return
		}
		s.Normal.Push(j)
	}
}

// BackoffDuration returns a small sleep for a worker that found no work
// anywhere, matching the 1ms idle sleep used by
// other_examples/f4d794bd_go-foundations-workerpool__strategies-work_stealing.go.go's
// workStealingWorker loop.
func BackoffDuration() time.Duration {
	return time.Millisecond
}

// Close marks both injectors closed and wakes their waiters, used once the
// scan has finished enqueueing all work and every worker has drained its
// local state. Push and Pop keep working on a closed injector.
func (s *Scheduler) Close() {
	s.High.Close()
	s.Normal.Close()
}
