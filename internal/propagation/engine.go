// Package propagation advances the amplitude field of a network by explicit
// Euler steps of a linear diffusion-damping-source update. For every node i:
//
//	new_A_i = A_i + dt * (D * sum_j (A_j - A_i) - gamma*A_i + s_i(t))
//
// Every step is a Jacobi update: all new values are computed from the
// pre-step amplitudes into a scratch buffer, and only after that compute
// phase has joined are they committed back to the nodes. Workers write
// disjoint ranges of the scratch buffer, so the result is bit-for-bit
// identical for every partitioning policy, chunk size and worker count.
package propagation

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/nvandessel/netwave/internal/constants"
	"github.com/nvandessel/netwave/internal/network"
	"github.com/nvandessel/netwave/internal/partition"
)

// FallbackTimeStep replaces a non-positive time step at propagation time.
const FallbackTimeStep = 0.01

// ErrNotGrid is returned by the grid-specific step variants when the network
// was not built by InitializeGrid.
var ErrNotGrid = errors.New("network is not a 2-D grid")

// ErrUnknownVariant is returned by StepVariant for unrecognized loop shapes.
var ErrUnknownVariant = errors.New("unknown step variant")

// Engine performs propagation steps over a single network. It owns the
// scratch buffer reused across steps and is not safe for concurrent use;
// steps are strictly sequential.
type Engine struct {
	net     *network.Network
	scratch []float64
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger overrides the network's logger for engine diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine bound to net.
func NewEngine(net *network.Network, opts ...Option) *Engine {
	e := &Engine{
		net:     net,
		scratch: make([]float64, net.Size()),
		logger:  net.Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Network returns the network the engine advances.
func (e *Engine) Network() *network.Network { return e.net }

// Step advances every node by one Euler step, partitioning the node loop
// with policy over workers goroutines, and advances the clock by dt.
//
// Propagating an uninitialized network or with a non-positive time step is
// reported and handled best-effort: the former proceeds with whatever
// neighbor lists exist, the latter installs FallbackTimeStep on the network.
func (e *Engine) Step(policy partition.Policy, workers int) {
	dt, t := e.prepare()
	n := e.net.Size()

	partition.ParallelFor(n, workers, policy, func(_, lo, hi int) {
		for i := lo; i < hi; i++ {
			e.scratch[i] = e.update(i, dt, t)
		}
	})

	e.commit(workers)
	e.net.Advance(dt)
}

// StepGrid advances a grid network by one step, partitioning only the outer
// row loop; each block of rows is swept column by column.
func (e *Engine) StepGrid(policy partition.Policy, workers int) error {
	if !e.net.IsGrid() {
		return fmt.Errorf("grid step: %w", ErrNotGrid)
	}
	dt, t := e.prepare()
	width, height := e.net.GridWidth(), e.net.GridHeight()

	partition.ParallelFor(height, workers, policy, func(_, lo, hi int) {
		for r := lo; r < hi; r++ {
			for c := 0; c < width; c++ {
				i := r*width + c
				e.scratch[i] = e.update(i, dt, t)
			}
		}
	})

	e.commit(workers)
	e.net.Advance(dt)
	return nil
}

// StepCollapsed advances a grid network by one step, flattening the
// (row, col) loop into a single index space of width*height before
// partitioning. This keeps every worker busy when width is small relative to
// the worker count.
func (e *Engine) StepCollapsed(policy partition.Policy, workers int) error {
	if !e.net.IsGrid() {
		return fmt.Errorf("collapsed step: %w", ErrNotGrid)
	}
	dt, t := e.prepare()
	width, height := e.net.GridWidth(), e.net.GridHeight()

	partition.ParallelFor(width*height, workers, policy, func(_, lo, hi int) {
		// Row-major layout: flat index k is node row*width + col.
		for k := lo; k < hi; k++ {
			e.scratch[k] = e.update(k, dt, t)
		}
	})

	e.commit(workers)
	e.net.Advance(dt)
	return nil
}

// StepVariant advances the network with the loop shape named by v.
func (e *Engine) StepVariant(v constants.StepVariant, policy partition.Policy, workers int) error {
	switch v {
	case constants.VariantNodes, "":
		e.Step(policy, workers)
		return nil
	case constants.VariantRows:
		return e.StepGrid(policy, workers)
	case constants.VariantCollapsed:
		return e.StepCollapsed(policy, workers)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownVariant, v)
	}
}

// Run performs steps consecutive Step calls. observe, when non-nil, is
// called after each committed step with its 1-based index.
func (e *Engine) Run(steps int, policy partition.Policy, workers int, observe func(step int)) {
	for s := 1; s <= steps; s++ {
		e.Step(policy, workers)
		if observe != nil {
			observe(s)
		}
	}
}

// prepare emits usage diagnostics and returns the step's dt and the time at
// which the source is evaluated.
func (e *Engine) prepare() (dt, t float64) {
	if !e.net.Initialized() {
		e.logger.Warn("propagating before topology initialization; nodes have no neighbors",
			"nodes", e.net.Size())
	}
	if e.net.TimeStep() <= 0 {
		e.logger.Warn("time step not configured; using fallback",
			"time_step", e.net.TimeStep(), "fallback", FallbackTimeStep)
		e.net.SetTimeStep(FallbackTimeStep)
	}
	if len(e.scratch) != e.net.Size() {
		e.scratch = make([]float64, e.net.Size())
	}
	return e.net.TimeStep(), e.net.CurrentTime()
}

// update computes node i's next amplitude from the current snapshot.
func (e *Engine) update(i int, dt, t float64) float64 {
	nodes := e.net.Nodes()
	node := &nodes[i]
	a := node.Amplitude()

	sum := 0.0
	for _, j := range node.Neighbors() {
		sum += nodes[j].Amplitude() - a
	}

	diffusion := e.net.DiffusionCoeff() * sum
	damping := -e.net.DampingCoeff() * a
	src := e.net.SourceAt(i, t)
	return a + dt*(diffusion+damping+src)
}

// commit copies the scratch buffer into the nodes. It runs only after the
// compute phase has fully joined.
func (e *Engine) commit(workers int) {
	nodes := e.net.Nodes()
	partition.ParallelFor(len(nodes), workers, partition.Static(), func(_, lo, hi int) {
		for i := lo; i < hi; i++ {
			nodes[i].Commit(e.scratch[i])
		}
	})
}
