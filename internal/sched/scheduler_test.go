package sched

import (
	"testing"
	"time"

	"github.com/michaelscutari/hyperdu/internal/job"
)

func TestSchedulerFetchOwnDequeFirst(t *testing.T) {
	s := NewScheduler(2)
	s.Enqueue(0, job.Job{Dir: "own"})
	s.Normal.Push(job.Job{Dir: "normal"})

	j, ok := s.Fetch(0)
	if !ok || j.Dir != "own" {
		t.Fatalf("expected own deque to be drained first, got %q, %v", j.Dir, ok)
	}
}

func TestSchedulerFetchHighBeforeNormal(t *testing.T) {
	s := NewScheduler(2)
	s.Normal.Push(job.Job{Dir: "normal"})
	resumeAt := uint64(5)
	s.Enqueue(0, job.Job{Dir: "resumed", Resume: &resumeAt})

	j, ok := s.Fetch(0)
	if !ok || j.Dir != "resumed" {
		t.Fatalf("expected the high-priority resumed job first, got %q, %v", j.Dir, ok)
	}
	j, ok = s.Fetch(0)
	if !ok || j.Dir != "normal" {
		t.Fatalf("expected the normal job second, got %q, %v", j.Dir, ok)
	}
}

func TestSchedulerFetchSteals(t *testing.T) {
	s := NewScheduler(2)
	s.Enqueue(1, job.Job{Dir: "stealme"})

	j, ok := s.Fetch(0)
	if !ok || j.Dir != "stealme" {
		t.Fatalf("expected worker 0 to steal from worker 1's deque, got %q, %v", j.Dir, ok)
	}
}

func TestSchedulerFetchEmptyReportsFalse(t *testing.T) {
	s := NewScheduler(3)
	if _, ok := s.Fetch(0); ok {
		t.Fatal("expected Fetch on a fully empty scheduler to report false")
	}
}

func TestSchedulerEnqueueHighJobGoesToInjector(t *testing.T) {
	s := NewScheduler(1)
	resumeAt := uint64(1)
	s.Enqueue(0, job.Job{Dir: "resumed", Resume: &resumeAt})
	if s.High.Len() != 1 {
		t.Fatalf("expected the resumed job in the high injector, got length %d", s.High.Len())
	}
	if s.Deque(0).Len() != 0 {
		t.Fatal("resumed job should not land on the local deque")
	}
}

func TestSchedulerSpillMovesHalfToNormalInjector(t *testing.T) {
	s := NewScheduler(1)
	for i := 0; i < 4; i++ {
		s.Enqueue(0, job.Job{Depth: uint32(i)})
	}
	s.Spill(0)
	if got := s.Deque(0).Len(); got != 2 {
		t.Fatalf("expected 2 jobs left on the local deque, got %d", got)
	}
	if got := s.Normal.Len(); got != 2 {
		t.Fatalf("expected 2 jobs spilled to the normal injector, got %d", got)
	}
}

func TestBackoffDurationIsPositiveAndSmall(t *testing.T) {
	d := BackoffDuration()
	if d <= 0 || d > 100*time.Millisecond {
		t.Fatalf("expected a small positive backoff, got %v", d)
	}
}

func TestSchedulerCloseLeavesInjectorsUsable(t *testing.T) {
	s := NewScheduler(1)
	s.Close()
	s.Normal.Push(job.Job{Dir: "after-close"})
	if _, ok := s.Normal.Pop(); !ok {
		t.Fatal("Push/Pop after Close should still work on the underlying list (Close only signals waiters)")
	}
}
