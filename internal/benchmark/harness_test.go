package benchmark

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/netwave/internal/constants"
	"github.com/nvandessel/netwave/internal/logging"
	"github.com/nvandessel/netwave/internal/network"
	"github.com/nvandessel/netwave/internal/partition"
	"github.com/nvandessel/netwave/internal/simulation"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) <= 1e-12*math.Max(1, math.Abs(b))
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func smallWorkload() simulation.Scenario {
	w := simulation.DefaultScenario()
	w.Nodes = 16
	w.Topology = network.TopologySpec{Kind: network.TopologyGrid, Width: 4, Height: 4}
	w.Steps = 5
	return w
}

type call struct {
	schedule partition.Schedule
	chunk    int
	workers  int
}

// syntheticRun records every call and returns a deterministic time that
// shrinks with the worker count.
func syntheticRun(calls *[]call) RunFunc {
	return func(s partition.Schedule, chunk, workers int) (float64, error) {
		*calls = append(*calls, call{s, chunk, workers})
		return 1.0/float64(workers) + float64(s)*0.01 + float64(chunk)*1e-4, nil
	}
}

func TestComputeStat(t *testing.T) {
	tests := []struct {
		name     string
		samples  []float64
		wantMean float64
		wantStd  float64
	}{
		{"empty", nil, 0, 0},
		{"single sample", []float64{0.7}, 0.7, 0},
		{"constant", []float64{2, 2, 2}, 2, 0},
		{"unbiased", []float64{1, 2, 3, 4}, 2.5, math.Sqrt(5.0 / 3.0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeStat(tt.samples)
			if !approx(got.Mean, tt.wantMean) || !approx(got.Std, tt.wantStd) {
				t.Errorf("ComputeStat(%v) = %+v, want {%v %v}", tt.samples, got, tt.wantMean, tt.wantStd)
			}
		})
	}
}

func TestDerive(t *testing.T) {
	tests := []struct {
		name     string
		workers  int
		time     RunStat
		baseline RunStat
		want     RunResult
	}{
		{
			name:     "slower than baseline",
			workers:  4,
			time:     ComputeStat([]float64{2, 2, 2}),
			baseline: RunStat{Mean: 1},
			want:     RunResult{Speedup: 0.5, Efficiency: 0.125},
		},
		{
			name:     "propagated error",
			workers:  2,
			time:     RunStat{Mean: 1, Std: 0.1},
			baseline: RunStat{Mean: 2, Std: 0.2},
			want: RunResult{
				Speedup:       2,
				Efficiency:    1,
				SpeedupErr:    2 * math.Sqrt(0.02),
				EfficiencyErr: math.Sqrt(0.02),
			},
		},
		{
			name:     "zero baseline",
			workers:  2,
			time:     RunStat{Mean: 1, Std: 0.1},
			baseline: RunStat{},
			want:     RunResult{},
		},
		{
			name:     "zero time",
			workers:  2,
			time:     RunStat{},
			baseline: RunStat{Mean: 1, Std: 0.1},
			want:     RunResult{},
		},
		{
			name:     "zero workers",
			workers:  0,
			time:     RunStat{Mean: 0.5},
			baseline: RunStat{Mean: 1},
			want:     RunResult{Speedup: 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Derive(tt.workers, partition.ScheduleDynamic, 64, tt.time, tt.baseline)
			if got.Workers != tt.workers || got.Schedule != partition.ScheduleDynamic || got.Chunk != 64 || got.Time != tt.time {
				t.Errorf("identity fields = %+v", got)
			}
			if !approx(got.Speedup, tt.want.Speedup) ||
				!approx(got.Efficiency, tt.want.Efficiency) ||
				!approx(got.SpeedupErr, tt.want.SpeedupErr) ||
				!approx(got.EfficiencyErr, tt.want.EfficiencyErr) {
				t.Errorf("Derive = Sp %v Ep %v σSp %v σEp %v, want %+v",
					got.Speedup, got.Efficiency, got.SpeedupErr, got.EfficiencyErr, tt.want)
			}
		})
	}
}

func TestScalingReport(t *testing.T) {
	baseline := RunStat{Mean: 1, Std: 0.1}
	results := []RunResult{
		{Workers: 4, Schedule: 0, Chunk: 0, Time: RunStat{Mean: 0.40}, Speedup: 99},
		{Workers: 2, Schedule: 1, Chunk: 64, Time: RunStat{Mean: 0.60, Std: 0.06}},
		{Workers: 4, Schedule: 1, Chunk: 64, Time: RunStat{Mean: 0.30, Std: 0.03}},
		{Workers: 2, Schedule: 2, Chunk: 0, Time: RunStat{Mean: 0.55}},
		{Workers: 4, Schedule: 2, Chunk: 256, Time: RunStat{Mean: 0.30, Std: 0.01}},
		{Workers: 1, Schedule: 0, Chunk: 0, Time: RunStat{Mean: 1.0}},
	}

	got := ScalingReport(results, baseline)
	if len(got) != 3 {
		t.Fatalf("got %d rows, want 3", len(got))
	}
	wantWorkers := []int{1, 2, 4}
	for i, w := range wantWorkers {
		if got[i].Workers != w {
			t.Errorf("row %d workers = %d, want %d", i, got[i].Workers, w)
		}
	}

	if got[1].Schedule != 2 || got[1].Chunk != 0 {
		t.Errorf("workers=2 picked schedule %d chunk %d, want 2/0", got[1].Schedule, got[1].Chunk)
	}
	// Tie at 0.30: the first encountered row wins.
	four := got[2]
	if four.Schedule != 1 || four.Chunk != 64 {
		t.Errorf("workers=4 picked schedule %d chunk %d, want 1/64", four.Schedule, four.Chunk)
	}
	want := Derive(4, 1, 64, RunStat{Mean: 0.30, Std: 0.03}, baseline)
	if four != want {
		t.Errorf("workers=4 row = %+v, want recomputed %+v", four, want)
	}

	if got := ScalingReport(nil, baseline); len(got) != 0 {
		t.Errorf("ScalingReport(nil) = %v", got)
	}
}

func TestRunGrid_VisitOrderAndDerivation(t *testing.T) {
	var calls []call
	h, err := NewHarness(smallWorkload(), WithLogger(quietLogger()), WithRunFunc(syntheticRun(&calls)))
	if err != nil {
		t.Fatal(err)
	}

	grid := Grid{
		Schedules:   []partition.Schedule{partition.ScheduleStatic, partition.ScheduleGuided},
		Chunks:      []int{0, 64},
		Workers:     []int{1, 4},
		Repetitions: 3,
	}
	baseline := RunStat{Mean: 1}
	results, err := h.RunGrid(t.Context(), grid, baseline)
	if err != nil {
		t.Fatalf("RunGrid: %v", err)
	}
	if len(results) != grid.Points() {
		t.Fatalf("got %d results, want %d", len(results), grid.Points())
	}
	if len(calls) != grid.Points()*grid.Repetitions {
		t.Fatalf("run called %d times, want %d", len(calls), grid.Points()*grid.Repetitions)
	}

	// Workers outermost, then schedule, then chunk.
	wantOrder := []call{
		{0, 0, 1}, {0, 64, 1}, {2, 0, 1}, {2, 64, 1},
		{0, 0, 4}, {0, 64, 4}, {2, 0, 4}, {2, 64, 4},
	}
	for i, w := range wantOrder {
		r := results[i]
		if r.Schedule != w.schedule || r.Chunk != w.chunk || r.Workers != w.workers {
			t.Errorf("result %d = (%d, %d, %d), want (%d, %d, %d)",
				i, r.Schedule, r.Chunk, r.Workers, w.schedule, w.chunk, w.workers)
		}
		if calls[3*i] != w {
			t.Errorf("call %d = %+v, want %+v", 3*i, calls[3*i], w)
		}
	}

	// Synthetic times are constant per point, so std and sigma vanish.
	r := results[4] // static, chunk 0, 4 workers: 0.25s
	if !approx(r.Time.Mean, 0.25) || r.Time.Std != 0 {
		t.Errorf("time = %+v, want {0.25 0}", r.Time)
	}
	if !approx(r.Speedup, 4) || !approx(r.Efficiency, 1) || r.SpeedupErr != 0 {
		t.Errorf("derived = Sp %v Ep %v σ %v", r.Speedup, r.Efficiency, r.SpeedupErr)
	}

	scaling := ScalingReport(results, baseline)
	if len(scaling) != 2 || scaling[1].Workers != 4 || scaling[1].Schedule != 0 || scaling[1].Chunk != 0 {
		t.Errorf("scaling report = %+v", scaling)
	}
}

func TestBaseline(t *testing.T) {
	var calls []call
	h, err := NewHarness(smallWorkload(), WithLogger(quietLogger()), WithRunFunc(syntheticRun(&calls)))
	if err != nil {
		t.Fatal(err)
	}

	t1, err := h.Baseline(t.Context(), constants.DefaultBaselineRepetitions)
	if err != nil {
		t.Fatalf("Baseline: %v", err)
	}
	if len(calls) != constants.DefaultBaselineRepetitions {
		t.Errorf("run called %d times", len(calls))
	}
	for _, c := range calls {
		if c != (call{partition.ScheduleStatic, 0, 1}) {
			t.Errorf("baseline call %+v, want static/0/1", c)
		}
	}
	if !approx(t1.Mean, 1) || t1.Std != 0 {
		t.Errorf("T1 = %+v, want {1 0}", t1)
	}

	if _, err := h.Baseline(t.Context(), -1); !errors.Is(err, ErrInvalidGrid) {
		t.Errorf("Baseline(-1) error = %v, want ErrInvalidGrid", err)
	}
}

func TestZeroRepetitions(t *testing.T) {
	var calls []call
	h, err := NewHarness(smallWorkload(), WithLogger(quietLogger()), WithRunFunc(syntheticRun(&calls)))
	if err != nil {
		t.Fatal(err)
	}

	t1, err := h.Baseline(t.Context(), 0)
	if err != nil {
		t.Fatalf("Baseline(0): %v", err)
	}
	if t1 != (RunStat{}) {
		t.Errorf("T1 = %+v, want zero", t1)
	}

	grid := Grid{
		Schedules: []partition.Schedule{partition.ScheduleStatic, partition.ScheduleDynamic},
		Chunks:    []int{0, 8},
		Workers:   []int{1, 2},
	}
	if err := grid.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	results, err := h.RunGrid(t.Context(), grid, t1)
	if err != nil {
		t.Fatalf("RunGrid: %v", err)
	}
	if len(calls) != 0 {
		t.Errorf("run called %d times, want 0", len(calls))
	}
	if len(results) != grid.Points() {
		t.Fatalf("got %d results, want %d", len(results), grid.Points())
	}
	for i, r := range results {
		if r.Time != (RunStat{}) || r.Speedup != 0 || r.Efficiency != 0 || r.SpeedupErr != 0 || r.EfficiencyErr != 0 {
			t.Errorf("result %d = %+v, want zero statistics", i, r)
		}
	}
}

func TestRunGrid_InvalidGrid(t *testing.T) {
	h, err := NewHarness(smallWorkload(), WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		grid Grid
	}{
		{"negative repetitions", Grid{Schedules: []partition.Schedule{0}, Chunks: []int{0}, Workers: []int{1}, Repetitions: -1}},
		{"bad schedule", Grid{Schedules: []partition.Schedule{3}, Chunks: []int{0}, Workers: []int{1}, Repetitions: 1}},
		{"negative chunk", Grid{Schedules: []partition.Schedule{1}, Chunks: []int{-1}, Workers: []int{1}, Repetitions: 1}},
		{"zero workers", Grid{Schedules: []partition.Schedule{1}, Chunks: []int{0}, Workers: []int{0}, Repetitions: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.RunGrid(t.Context(), tt.grid, RunStat{Mean: 1}); !errors.Is(err, ErrInvalidGrid) {
				t.Errorf("RunGrid error = %v, want ErrInvalidGrid", err)
			}
		})
	}
}

func TestRunGrid_Cancelled(t *testing.T) {
	var calls []call
	h, err := NewHarness(smallWorkload(), WithLogger(quietLogger()), WithRunFunc(syntheticRun(&calls)))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := h.RunGrid(ctx, DefaultGrid(), RunStat{Mean: 1}); !errors.Is(err, context.Canceled) {
		t.Errorf("RunGrid error = %v, want context.Canceled", err)
	}
	if len(calls) != 0 {
		t.Errorf("run called %d times after cancellation", len(calls))
	}
}

func TestRunOnceTimed(t *testing.T) {
	h, err := NewHarness(smallWorkload(), WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []partition.Schedule{partition.ScheduleStatic, partition.ScheduleDynamic, partition.ScheduleGuided} {
		elapsed, err := h.RunOnceTimed(s, 2, 3)
		if err != nil {
			t.Fatalf("RunOnceTimed(%s): %v", s, err)
		}
		if elapsed < 0 {
			t.Errorf("RunOnceTimed(%s) = %v, want non-negative", s, elapsed)
		}
	}
	if _, err := h.RunOnceTimed(partition.Schedule(7), 0, 1); !errors.Is(err, partition.ErrUnknownSchedule) {
		t.Errorf("unknown schedule error = %v", err)
	}
	if _, err := h.RunOnceTimed(partition.ScheduleDynamic, -4, 1); !errors.Is(err, partition.ErrNegativeChunk) {
		t.Errorf("negative chunk error = %v", err)
	}
}

func TestNewHarness_InvalidWorkload(t *testing.T) {
	w := smallWorkload()
	w.Nodes = 0
	if _, err := NewHarness(w); !errors.Is(err, simulation.ErrInvalidScenario) {
		t.Errorf("NewHarness error = %v, want ErrInvalidScenario", err)
	}
}

func TestDefaults(t *testing.T) {
	g := DefaultGrid()
	if g.Points() != 36 || g.Repetitions != 10 {
		t.Errorf("DefaultGrid = %+v", g)
	}
	if err := g.Validate(); err != nil {
		t.Errorf("DefaultGrid invalid: %v", err)
	}
	if err := DefaultWorkload().Validate(); err != nil {
		t.Errorf("DefaultWorkload invalid: %v", err)
	}
	if DefaultWorkload().Nodes != 10000 {
		t.Errorf("DefaultWorkload nodes = %d", DefaultWorkload().Nodes)
	}
}

func TestRunGrid_RecordsEvents(t *testing.T) {
	dir := t.TempDir()
	el := logging.NewEventLogger(dir, "trace")
	var calls []call
	h, err := NewHarness(smallWorkload(),
		WithLogger(quietLogger()), WithEvents(el), WithRunFunc(syntheticRun(&calls)))
	if err != nil {
		t.Fatal(err)
	}
	t1, err := h.Baseline(t.Context(), 2)
	if err != nil {
		t.Fatal(err)
	}
	grid := Grid{Schedules: []partition.Schedule{1}, Chunks: []int{0, 64}, Workers: []int{2}, Repetitions: 1}
	if _, err := h.RunGrid(t.Context(), grid, t1); err != nil {
		t.Fatal(err)
	}
	if err := el.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, logging.EventsFile))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), `"event":"grid_point"`); got != 2 {
		t.Errorf("grid_point events = %d, want 2", got)
	}
	if !strings.Contains(string(data), `"event":"baseline"`) {
		t.Error("missing baseline event")
	}
}
