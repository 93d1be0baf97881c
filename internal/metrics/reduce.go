// Package metrics computes global scalars over an amplitude snapshot: total
// energy (sum of squares) and average amplitude.
//
// Every reduction runs under one of three strategies. They agree to within
// floating-point reassociation error, not bit for bit.
package metrics

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nvandessel/netwave/internal/partition"
)

// ReductionStrategy selects how per-worker partial sums are combined.
type ReductionStrategy int

const (
	// PlainReduction gives each worker a slot in a partials array and sums
	// the slots in worker order after the join.
	PlainReduction ReductionStrategy = iota
	// PrivateThenMerge accumulates into a worker-local variable and merges
	// it into a shared total under a mutex when the worker finishes.
	PrivateThenMerge
	// SharedAtomic adds every term to a single shared accumulator with an
	// atomic compare-and-swap.
	SharedAtomic
)

func (s ReductionStrategy) String() string {
	switch s {
	case PlainReduction:
		return "reduction"
	case PrivateThenMerge:
		return "private"
	case SharedAtomic:
		return "atomic"
	default:
		return fmt.Sprintf("ReductionStrategy(%d)", int(s))
	}
}

// ParseReductionStrategy maps a configuration string to a strategy.
func ParseReductionStrategy(s string) (ReductionStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reduction", "plain":
		return PlainReduction, nil
	case "private", "private-then-merge":
		return PrivateThenMerge, nil
	case "atomic", "shared-atomic":
		return SharedAtomic, nil
	default:
		return 0, fmt.Errorf("unknown reduction strategy %q (valid: reduction, private, atomic)", s)
	}
}

// Reducer computes metrics over amplitude snapshots.
type Reducer struct {
	Strategy ReductionStrategy
	Workers  int
}

// NewReducer returns a Reducer for the given strategy and worker count.
func NewReducer(strategy ReductionStrategy, workers int) Reducer {
	return Reducer{Strategy: strategy, Workers: workers}
}

// Energy returns the sum of squared amplitudes.
func (r Reducer) Energy(amplitudes []float64) float64 {
	return r.sum(amplitudes, func(a float64) float64 { return a * a })
}

// Average returns the mean amplitude, or 0 for an empty snapshot.
func (r Reducer) Average(amplitudes []float64) float64 {
	if len(amplitudes) == 0 {
		return 0
	}
	return r.sum(amplitudes, func(a float64) float64 { return a }) / float64(len(amplitudes))
}

// Energy is a convenience for a PlainReduction on one worker.
func Energy(amplitudes []float64) float64 {
	return Reducer{Strategy: PlainReduction, Workers: 1}.Energy(amplitudes)
}

// Average is a convenience for a PlainReduction on one worker.
func Average(amplitudes []float64) float64 {
	return Reducer{Strategy: PlainReduction, Workers: 1}.Average(amplitudes)
}

func (r Reducer) sum(xs []float64, term func(float64) float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	workers := partition.EffectiveWorkers(n, r.Workers)
	policy := partition.Static()

	switch r.Strategy {
	case PrivateThenMerge:
		var (
			mu    sync.Mutex
			total float64
		)
		partition.ParallelFor(n, workers, policy, func(_, lo, hi int) {
			local := 0.0
			for _, x := range xs[lo:hi] {
				local += term(x)
			}
			mu.Lock()
			total += local
			mu.Unlock()
		})
		return total

	case SharedAtomic:
		var acc atomicFloat64
		partition.ParallelFor(n, workers, policy, func(_, lo, hi int) {
			for _, x := range xs[lo:hi] {
				acc.Add(term(x))
			}
		})
		return acc.Load()

	default:
		partials := make([]float64, workers)
		partition.ParallelFor(n, workers, policy, func(w, lo, hi int) {
			local := 0.0
			for _, x := range xs[lo:hi] {
				local += term(x)
			}
			partials[w] = local
		})
		total := 0.0
		for _, p := range partials {
			total += p
		}
		return total
	}
}

// atomicFloat64 is a float64 accumulator updated by compare-and-swap on its
// bit pattern.
type atomicFloat64 struct {
	bits atomic.Uint64
}

func (f *atomicFloat64) Add(delta float64) {
	for {
		old := f.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if f.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

func (f *atomicFloat64) Load() float64 {
	return math.Float64frombits(f.bits.Load())
}
