package benchmark

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/nvandessel/netwave/internal/partition"
)

// RunStat is the mean and unbiased sample standard deviation of a set of
// timing samples, in seconds.
type RunStat struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// ComputeStat summarizes samples. With no samples both fields are 0; with
// one sample Std is 0.
func ComputeStat(samples []float64) RunStat {
	switch len(samples) {
	case 0:
		return RunStat{}
	case 1:
		return RunStat{Mean: samples[0]}
	}
	mean, std := stat.MeanStdDev(samples, nil)
	return RunStat{Mean: mean, Std: std}
}

// RelativeError returns Std/Mean, or 0 when Mean is not positive.
func (s RunStat) RelativeError() float64 {
	if s.Mean <= 0 {
		return 0
	}
	return s.Std / s.Mean
}

// RunResult is one row of the benchmark grid.
type RunResult struct {
	Workers  int                `json:"workers"`
	Schedule partition.Schedule `json:"schedule"`
	Chunk    int                `json:"chunk"`
	Time     RunStat            `json:"time"`

	Speedup       float64 `json:"speedup"`
	Efficiency    float64 `json:"efficiency"`
	SpeedupErr    float64 `json:"sigma_speedup"`
	EfficiencyErr float64 `json:"sigma_efficiency"`
}

// Derive computes speedup, efficiency and their propagated uncertainties for
// a measured time against a single-worker baseline:
//
//	Sp    = T1 / Tp
//	Ep    = Sp / W
//	σSp   = Sp * sqrt((σT1/T1)² + (σTp/Tp)²)
//	σEp   = σSp / W
//
// Any ratio with a non-positive denominator is 0.
func Derive(workers int, schedule partition.Schedule, chunk int, t, baseline RunStat) RunResult {
	r := RunResult{Workers: workers, Schedule: schedule, Chunk: chunk, Time: t}

	if baseline.Mean > 0 && t.Mean > 0 {
		r.Speedup = baseline.Mean / t.Mean
	}
	relT1 := baseline.RelativeError()
	relTp := t.RelativeError()
	r.SpeedupErr = r.Speedup * math.Sqrt(relT1*relT1+relTp*relTp)

	if workers > 0 {
		r.Efficiency = r.Speedup / float64(workers)
		r.EfficiencyErr = r.SpeedupErr / float64(workers)
	}
	return r
}
