package partition

import (
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Body processes the half-open index range [lo, hi) on behalf of worker.
// Worker ids are dense in [0, workers).
type Body func(worker, lo, hi int)

// ParallelFor runs body over every index in [0, n) exactly once, split into
// blocks according to p, on workers goroutines. It returns after every block
// has completed. workers below 1 is treated as 1; more workers than indices
// are trimmed. A single worker runs inline on the calling goroutine.
func ParallelFor(n, workers int, p Policy, body Body) {
	if n <= 0 {
		return
	}
	workers = EffectiveWorkers(n, workers)
	if workers == 1 {
		body(0, 0, n)
		return
	}

	sched := newScheduler(n, workers, p)
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			next := sched.worker(w)
			for lo, hi, ok := next(); ok; lo, hi, ok = next() {
				body(w, lo, hi)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// EffectiveWorkers returns the number of goroutines ParallelFor forks for
// an index space of n.
func EffectiveWorkers(n, workers int) int {
	if workers < 1 {
		workers = 1
	}
	if n > 0 && workers > n {
		workers = n
	}
	return workers
}

// blockIter yields successive blocks for one worker until ok is false.
type blockIter func() (lo, hi int, ok bool)

type scheduler struct {
	n       int
	workers int
	policy  Policy
	cursor  atomic.Int64
}

func newScheduler(n, workers int, p Policy) *scheduler {
	return &scheduler{n: n, workers: workers, policy: p}
}

func (s *scheduler) worker(w int) blockIter {
	switch s.policy.kind {
	case KindStaticChunked:
		return s.staticChunked(w)
	case KindDynamic:
		return s.dynamic()
	case KindGuided:
		return s.guided()
	default:
		return s.staticEqual(w)
	}
}

func (s *scheduler) staticEqual(w int) blockIter {
	size := (s.n + s.workers - 1) / s.workers
	done := false
	return func() (int, int, bool) {
		lo := w * size
		if done || lo >= s.n {
			return 0, 0, false
		}
		done = true
		return lo, min(lo+size, s.n), true
	}
}

func (s *scheduler) staticChunked(w int) blockIter {
	c := s.policy.chunk
	block := w
	return func() (int, int, bool) {
		lo := block * c
		if lo >= s.n {
			return 0, 0, false
		}
		block += s.workers
		return lo, min(lo+c, s.n), true
	}
}

func (s *scheduler) dynamic() blockIter {
	c := int64(s.policy.Granularity())
	n := int64(s.n)
	return func() (int, int, bool) {
		lo := s.cursor.Add(c) - c
		if lo >= n {
			return 0, 0, false
		}
		return int(lo), int(min(lo+c, n)), true
	}
}

func (s *scheduler) guided() blockIter {
	floor := int64(s.policy.Granularity())
	n := int64(s.n)
	w := int64(s.workers)
	return func() (int, int, bool) {
		for {
			lo := s.cursor.Load()
			if lo >= n {
				return 0, 0, false
			}
			remaining := n - lo
			size := max((remaining+w-1)/w, floor)
			size = min(size, remaining)
			if s.cursor.CompareAndSwap(lo, lo+size) {
				return int(lo), int(lo + size), true
			}
		}
	}
}
