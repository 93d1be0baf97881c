package simulation

import (
	"math"
	"testing"
)

// AssertEnergyNonIncreasing asserts that energy never grows by more than a
// relative tol between consecutive steps. Meaningful only for sourceless runs.
func AssertEnergyNonIncreasing(t *testing.T, s Summary, tol float64) {
	t.Helper()
	for i := 1; i < len(s.Energy); i++ {
		if s.Energy[i] > s.Energy[i-1]*(1+tol) {
			t.Errorf("AssertEnergyNonIncreasing: step %d: energy %.6e > previous %.6e", i, s.Energy[i], s.Energy[i-1])
		}
	}
}

// AssertFinite asserts that no recorded metric or final amplitude is NaN
// or infinite.
func AssertFinite(t *testing.T, s Summary) {
	t.Helper()
	for i, e := range s.Energy {
		if math.IsNaN(e) || math.IsInf(e, 0) {
			t.Fatalf("AssertFinite: step %d: energy %v", i, e)
		}
	}
	for i, a := range s.Final {
		if math.IsNaN(a) || math.IsInf(a, 0) {
			t.Fatalf("AssertFinite: node %d: final amplitude %v", i, a)
		}
	}
}

// AssertEnergySettles asserts that the relative energy change over the last
// lastN steps stays below tol.
func AssertEnergySettles(t *testing.T, s Summary, lastN int, tol float64) {
	t.Helper()
	if len(s.Energy) < lastN+1 {
		t.Fatalf("AssertEnergySettles: only %d snapshots, need %d", len(s.Energy), lastN+1)
	}
	tail := s.Energy[len(s.Energy)-lastN-1:]
	first, last := tail[0], tail[len(tail)-1]
	scale := math.Max(math.Abs(first), math.Abs(last))
	if scale == 0 {
		return
	}
	if rel := math.Abs(last-first) / scale; rel > tol {
		t.Errorf("AssertEnergySettles: relative change %.3e over last %d steps exceeds %.3e", rel, lastN, tol)
	}
}
