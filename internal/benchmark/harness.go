// Package benchmark times the propagation engine across a grid of
// (schedule, chunk size, worker count) configurations and derives speedup
// and efficiency, with propagated measurement uncertainty, against a
// single-worker baseline.
//
// Timed runs are strictly sequential: wall-clock measurements need an
// otherwise idle machine.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/nvandessel/netwave/internal/constants"
	"github.com/nvandessel/netwave/internal/logging"
	"github.com/nvandessel/netwave/internal/network"
	"github.com/nvandessel/netwave/internal/partition"
	"github.com/nvandessel/netwave/internal/propagation"
	"github.com/nvandessel/netwave/internal/simulation"
)

// ErrInvalidGrid is returned when a Grid cannot be run.
var ErrInvalidGrid = errors.New("invalid benchmark grid")

// Grid spans the configurations RunGrid measures.
type Grid struct {
	Schedules   []partition.Schedule
	Chunks      []int
	Workers     []int
	Repetitions int
}

// DefaultGrid returns schedules {static, dynamic, guided}, chunks
// {0, 64, 256}, workers {1, 2, 4, 8} and 10 repetitions.
func DefaultGrid() Grid {
	g := Grid{
		Chunks:      slices.Clone(constants.DefaultChunks),
		Workers:     slices.Clone(constants.DefaultWorkers),
		Repetitions: constants.DefaultRepetitions,
	}
	for _, s := range constants.DefaultSchedules {
		g.Schedules = append(g.Schedules, partition.Schedule(s))
	}
	return g
}

// Validate checks that every grid point maps to a runnable policy. Zero
// repetitions is allowed and measures nothing.
func (g Grid) Validate() error {
	if g.Repetitions < 0 {
		return fmt.Errorf("%w: repetitions must not be negative, got %d", ErrInvalidGrid, g.Repetitions)
	}
	for _, s := range g.Schedules {
		if !s.Valid() {
			return fmt.Errorf("%w: %w: %d", ErrInvalidGrid, partition.ErrUnknownSchedule, int(s))
		}
	}
	for _, c := range g.Chunks {
		if c < 0 {
			return fmt.Errorf("%w: %w: %d", ErrInvalidGrid, partition.ErrNegativeChunk, c)
		}
	}
	for _, w := range g.Workers {
		if w <= 0 {
			return fmt.Errorf("%w: worker count must be positive, got %d", ErrInvalidGrid, w)
		}
	}
	return nil
}

// Points returns the number of (schedule, chunk, workers) combinations.
func (g Grid) Points() int {
	return len(g.Schedules) * len(g.Chunks) * len(g.Workers)
}

// DefaultWorkload returns the timed workload: a 100x100 grid with the
// canonical coefficients and fixed source, advanced 100 steps.
func DefaultWorkload() simulation.Scenario {
	w := simulation.DefaultScenario()
	w.Name = "benchmark"
	w.Nodes = constants.BenchmarkGridWidth * constants.BenchmarkGridHeight
	w.Topology = network.TopologySpec{
		Kind:   network.TopologyGrid,
		Width:  constants.BenchmarkGridWidth,
		Height: constants.BenchmarkGridHeight,
	}
	w.Steps = constants.BenchmarkSteps
	return w
}

// RunFunc performs one timed run and returns its duration in seconds.
type RunFunc func(schedule partition.Schedule, chunk, workers int) (float64, error)

// Harness runs timed benchmarks of a workload.
type Harness struct {
	workload simulation.Scenario
	run      RunFunc
	logger   *slog.Logger
	events   *logging.EventLogger
	now      func() time.Time
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger used for progress records.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithEvents records one event per baseline and grid point.
func WithEvents(el *logging.EventLogger) Option {
	return func(h *Harness) { h.events = el }
}

// WithRunFunc replaces the timed run, e.g. with a synthetic timing model.
func WithRunFunc(f RunFunc) Option {
	return func(h *Harness) { h.run = f }
}

// NewHarness returns a Harness for workload.
func NewHarness(workload simulation.Scenario, opts ...Option) (*Harness, error) {
	if err := workload.Validate(); err != nil {
		return nil, fmt.Errorf("benchmark workload: %w", err)
	}
	h := &Harness{workload: workload, logger: slog.Default(), now: time.Now}
	h.run = h.RunOnceTimed
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Workload returns the scenario each timed run executes.
func (h *Harness) Workload() simulation.Scenario { return h.workload }

// RunOnceTimed builds a fresh network from the workload, advances it
// Workload().Steps times with the requested policy and worker count, and
// returns the wall-clock duration of the stepping loop in seconds. Network
// construction is not timed.
func (h *Harness) RunOnceTimed(schedule partition.Schedule, chunk, workers int) (float64, error) {
	policy, err := partition.PolicyFor(schedule, chunk)
	if err != nil {
		return 0, err
	}
	net, err := h.workload.Build(h.logger)
	if err != nil {
		return 0, err
	}
	engine := propagation.NewEngine(net, propagation.WithLogger(h.logger))
	variant := h.workload.Variant

	start := h.now()
	for range h.workload.Steps {
		if err := engine.StepVariant(variant, policy, workers); err != nil {
			return 0, err
		}
	}
	return h.now().Sub(start).Seconds(), nil
}

// Baseline times reps single-worker static runs and returns T1. Zero reps
// yields a zero T1, which makes every derived speedup and efficiency 0.
func (h *Harness) Baseline(ctx context.Context, reps int) (RunStat, error) {
	if reps < 0 {
		return RunStat{}, fmt.Errorf("%w: baseline repetitions must not be negative, got %d", ErrInvalidGrid, reps)
	}
	samples, err := h.sample(ctx, partition.ScheduleStatic, 0, 1, reps)
	if err != nil {
		return RunStat{}, fmt.Errorf("baseline: %w", err)
	}
	t1 := ComputeStat(samples)
	h.logger.Info("baseline measured", "mean", t1.Mean, "std", t1.Std, "reps", reps)
	h.events.Emit("baseline", "reps", reps, "time_mean", t1.Mean, "time_std", t1.Std)
	return t1, nil
}

// RunGrid measures every grid point Repetitions times and derives its
// statistics against baseline. Points are visited worker count first, then
// schedule, then chunk size.
func (h *Harness) RunGrid(ctx context.Context, g Grid, baseline RunStat) ([]RunResult, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	results := make([]RunResult, 0, g.Points())
	for _, workers := range g.Workers {
		for _, schedule := range g.Schedules {
			for _, chunk := range g.Chunks {
				samples, err := h.sample(ctx, schedule, chunk, workers, g.Repetitions)
				if err != nil {
					return results, fmt.Errorf("grid point workers=%d schedule=%s chunk=%d: %w", workers, schedule, chunk, err)
				}
				r := Derive(workers, schedule, chunk, ComputeStat(samples), baseline)
				results = append(results, r)

				h.logger.Debug("grid point measured",
					"workers", workers, "schedule", schedule.String(), "chunk", chunk,
					"time_mean", r.Time.Mean, "speedup", r.Speedup)
				h.events.Emit("grid_point",
					"workers", workers,
					"schedule", int(schedule),
					"chunk", chunk,
					"time_mean", r.Time.Mean,
					"time_std", r.Time.Std,
					"speedup", r.Speedup,
					"efficiency", r.Efficiency,
					"sigma_speedup", r.SpeedupErr,
					"sigma_efficiency", r.EfficiencyErr,
				)
			}
		}
	}
	return results, nil
}

func (h *Harness) sample(ctx context.Context, schedule partition.Schedule, chunk, workers, reps int) ([]float64, error) {
	samples := make([]float64, 0, reps)
	for range reps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		elapsed, err := h.run(schedule, chunk, workers)
		if err != nil {
			return nil, err
		}
		samples = append(samples, elapsed)
	}
	return samples, nil
}

// ScalingReport keeps, for each worker count, the grid row with the lowest
// mean time (the first one on ties) and recomputes its derived values from
// that row's own time statistics against baseline. Rows are ordered by
// worker count.
func ScalingReport(results []RunResult, baseline RunStat) []RunResult {
	best := make(map[int]int, len(results))
	var order []int
	for i, r := range results {
		j, ok := best[r.Workers]
		if !ok {
			best[r.Workers] = i
			order = append(order, r.Workers)
			continue
		}
		if r.Time.Mean < results[j].Time.Mean {
			best[r.Workers] = i
		}
	}

	slices.Sort(order)
	out := make([]RunResult, 0, len(order))
	for _, w := range order {
		r := results[best[w]]
		out = append(out, Derive(r.Workers, r.Schedule, r.Chunk, r.Time, baseline))
	}
	return out
}
