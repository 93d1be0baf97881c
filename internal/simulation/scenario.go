package simulation

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/nvandessel/netwave/internal/constants"
	"github.com/nvandessel/netwave/internal/metrics"
	"github.com/nvandessel/netwave/internal/network"
	"github.com/nvandessel/netwave/internal/partition"
)

// PerturbCenter places the initial perturbation on node N/2.
const PerturbCenter = -1

// ErrInvalidScenario wraps every Scenario validation failure.
var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario defines a complete simulation experiment.
type Scenario struct {
	Name string

	Nodes     int
	Topology  network.TopologySpec
	Source    network.SourceSpec
	Diffusion float64
	Damping   float64
	TimeStep  float64
	Steps     int

	// PerturbNode receives PerturbAmplitude before the first step.
	// PerturbCenter selects node N/2.
	PerturbNode      int
	PerturbAmplitude float64

	// Seed drives random topologies. 0 leaves the network time-seeded.
	Seed uint64

	Policy    partition.Policy
	Workers   int
	Variant   constants.StepVariant
	Reduction metrics.ReductionStrategy
}

// DefaultScenario returns the canonical run: a 10x10 grid with D=6,
// gamma=0.01, dt=0.01, 1000 steps, a unit perturbation at the center node
// and a fixed source of 0.05 on every node.
func DefaultScenario() Scenario {
	return Scenario{
		Name:      "canonical",
		Nodes:     constants.DefaultGridWidth * constants.DefaultGridHeight,
		Topology:  network.TopologySpec{Kind: network.TopologyGrid, Width: constants.DefaultGridWidth, Height: constants.DefaultGridHeight},
		Source:    network.SourceSpec{Mode: network.SourceFixed, Value: constants.DefaultFixedSource},
		Diffusion: constants.DefaultDiffusion,
		Damping:   constants.DefaultDamping,
		TimeStep:  constants.DefaultTimeStep,
		Steps:     constants.DefaultSteps,

		PerturbNode:      PerturbCenter,
		PerturbAmplitude: constants.DefaultPerturbation,

		Policy:    partition.Static(),
		Workers:   1,
		Variant:   constants.VariantNodes,
		Reduction: metrics.PlainReduction,
	}
}

// Validate checks the scenario for values Build would reject or that make
// no sense to run.
func (s Scenario) Validate() error {
	switch {
	case s.Nodes <= 0:
		return fmt.Errorf("%w: nodes must be positive, got %d", ErrInvalidScenario, s.Nodes)
	case s.Steps < 0:
		return fmt.Errorf("%w: steps must be non-negative, got %d", ErrInvalidScenario, s.Steps)
	case s.Diffusion < 0 || s.Damping < 0:
		return fmt.Errorf("%w: coefficients must be non-negative (D=%g, gamma=%g)", ErrInvalidScenario, s.Diffusion, s.Damping)
	case s.Workers < 0:
		return fmt.Errorf("%w: workers must be non-negative, got %d", ErrInvalidScenario, s.Workers)
	case s.PerturbNode < PerturbCenter || s.PerturbNode >= s.Nodes:
		return fmt.Errorf("%w: perturb node %d outside [0, %d)", ErrInvalidScenario, s.PerturbNode, s.Nodes)
	}
	if s.Variant != "" && !s.Variant.Valid() {
		return fmt.Errorf("%w: unknown step variant %q", ErrInvalidScenario, s.Variant)
	}
	if s.Variant.RequiresGrid() && s.Topology.Kind != network.TopologyGrid {
		return fmt.Errorf("%w: %s variant needs a grid topology, got %q", ErrInvalidScenario, s.Variant, s.Topology.Kind)
	}
	if s.Topology.Kind == network.TopologyGrid && s.Topology.Width*s.Topology.Height != s.Nodes {
		return fmt.Errorf("%w: grid %dx%d does not hold %d nodes", ErrInvalidScenario, s.Topology.Width, s.Topology.Height, s.Nodes)
	}
	return nil
}

// Build constructs a fresh network in the scenario's initial condition.
// Every call returns an independent network.
func (s Scenario) Build(logger *slog.Logger) (*network.Network, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	var opts []network.Option
	if s.Seed != 0 {
		opts = append(opts, network.WithSeed(s.Seed))
	}
	if logger != nil {
		opts = append(opts, network.WithLogger(logger))
	}

	net, err := network.New(s.Nodes, s.Diffusion, s.Damping, opts...)
	if err != nil {
		return nil, fmt.Errorf("building network: %w", err)
	}
	if err := net.Initialize(s.Topology); err != nil {
		return nil, fmt.Errorf("building %s topology: %w", s.Topology.Kind, err)
	}
	if err := net.ApplySource(s.Source); err != nil {
		return nil, fmt.Errorf("configuring source: %w", err)
	}
	net.SetTimeStep(s.TimeStep)

	if err := net.SetAmplitude(s.perturbIndex(), s.PerturbAmplitude); err != nil {
		return nil, fmt.Errorf("perturbing initial condition: %w", err)
	}
	return net, nil
}

func (s Scenario) perturbIndex() int {
	if s.PerturbNode == PerturbCenter {
		return s.Nodes / 2
	}
	return s.PerturbNode
}
