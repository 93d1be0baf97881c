package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nvandessel/netwave/internal/logging"
	"github.com/nvandessel/netwave/internal/metrics"
	"github.com/nvandessel/netwave/internal/propagation"
)

// Snapshot is the read-only view of the network after one committed step.
// Step 0 is the initial condition.
type Snapshot struct {
	Step    int
	Time    float64
	Energy  float64
	Average float64

	// Amplitudes is reused between steps. Sinks that keep it past Record
	// must copy it.
	Amplitudes []float64
}

// Sink consumes snapshots as the simulation produces them.
type Sink interface {
	Record(Snapshot) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Snapshot) error

// Record calls f(s).
func (f SinkFunc) Record(s Snapshot) error { return f(s) }

// MultiSink fans every snapshot out to each sink in order, stopping at the
// first error.
type MultiSink []Sink

// Record forwards s to every sink.
func (m MultiSink) Record(s Snapshot) error {
	for _, sink := range m {
		if err := sink.Record(s); err != nil {
			return err
		}
	}
	return nil
}

// Summary captures the outcome of a simulation run.
type Summary struct {
	Name      string
	Nodes     int
	Steps     int
	FinalTime float64
	Elapsed   time.Duration

	// Energy and Average hold one entry per snapshot, starting at step 0.
	Energy  []float64
	Average []float64

	// Final is the amplitude field after the last step.
	Final []float64
}

// InitialEnergy returns the step-0 energy, or 0 for an empty summary.
func (s Summary) InitialEnergy() float64 {
	if len(s.Energy) == 0 {
		return 0
	}
	return s.Energy[0]
}

// FinalEnergy returns the energy after the last step, or 0 for an empty summary.
func (s Summary) FinalEnergy() float64 {
	if len(s.Energy) == 0 {
		return 0
	}
	return s.Energy[len(s.Energy)-1]
}

// Runner executes scenarios.
type Runner struct {
	logger *slog.Logger
	events *logging.EventLogger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger used for diagnostics and per-step trace records.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithEvents records one event per completed run.
func WithEvents(el *logging.EventLogger) Option {
	return func(r *Runner) { r.events = el }
}

// NewRunner creates a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run builds a fresh network from sc and advances it sc.Steps times,
// passing a Snapshot to sink (which may be nil) after the initial condition
// and after every step. The context is checked between steps.
func (r *Runner) Run(ctx context.Context, sc Scenario, sink Sink) (Summary, error) {
	net, err := sc.Build(r.logger)
	if err != nil {
		return Summary{}, err
	}
	engine := propagation.NewEngine(net, propagation.WithLogger(r.logger))
	reducer := metrics.NewReducer(sc.Reduction, sc.Workers)

	summary := Summary{
		Name:    sc.Name,
		Nodes:   net.Size(),
		Energy:  make([]float64, 0, sc.Steps+1),
		Average: make([]float64, 0, sc.Steps+1),
	}

	var buf []float64
	emit := func(step int) error {
		buf = net.AppendAmplitudes(buf[:0])
		snap := Snapshot{
			Step:       step,
			Time:       net.CurrentTime(),
			Energy:     reducer.Energy(buf),
			Average:    reducer.Average(buf),
			Amplitudes: buf,
		}
		summary.Energy = append(summary.Energy, snap.Energy)
		summary.Average = append(summary.Average, snap.Average)
		r.logger.Log(ctx, logging.LevelTrace, "step committed",
			"step", step, "time", snap.Time, "energy", snap.Energy)
		if sink == nil {
			return nil
		}
		if err := sink.Record(snap); err != nil {
			return fmt.Errorf("recording step %d: %w", step, err)
		}
		return nil
	}

	start := time.Now()
	if err := emit(0); err != nil {
		return summary, err
	}
	for step := 1; step <= sc.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("simulation stopped at step %d: %w", step-1, err)
		}
		if err := engine.StepVariant(sc.Variant, sc.Policy, sc.Workers); err != nil {
			return summary, fmt.Errorf("step %d: %w", step, err)
		}
		if err := emit(step); err != nil {
			return summary, err
		}
	}

	summary.Steps = sc.Steps
	summary.FinalTime = net.CurrentTime()
	summary.Elapsed = time.Since(start)
	summary.Final = net.Amplitudes()

	r.logger.Debug("simulation complete",
		"scenario", sc.Name, "steps", sc.Steps, "elapsed", summary.Elapsed,
		"final_energy", summary.FinalEnergy())
	r.events.Emit("simulation_run",
		"scenario", sc.Name,
		"nodes", summary.Nodes,
		"steps", summary.Steps,
		"policy", sc.Policy.String(),
		"workers", sc.Workers,
		"variant", sc.Variant.String(),
		"reduction", sc.Reduction.String(),
		"initial_energy", summary.InitialEnergy(),
		"final_energy", summary.FinalEnergy(),
		"elapsed_seconds", summary.Elapsed.Seconds(),
	)
	return summary, nil
}

// FormatSummary renders a one-line human-readable summary.
func FormatSummary(s Summary) string {
	return fmt.Sprintf("%s: %d nodes, %d steps, t=%.4f, energy %.6e -> %.6e (%s)",
		s.Name, s.Nodes, s.Steps, s.FinalTime, s.InitialEnergy(), s.FinalEnergy(), s.Elapsed.Round(time.Microsecond))
}
