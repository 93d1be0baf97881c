// Package network holds the graph that the amplitude field lives on: the node
// arena, the topology builders, the global physical parameters and the
// external source configuration.
//
// A Network moves through two states. It is created Uninitialized with every
// node isolated; exactly one topology call (InitializeLinear, InitializeGrid,
// InitializeRandom, InitializeSmallWorld or Initialize) populates neighbor
// lists and moves it to Initialized. A second topology call fails with
// ErrAlreadyInitialized until Reset is called.
package network

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// State is the lifecycle state of a Network's topology.
type State int

const (
	Uninitialized State = iota
	Initialized
)

func (s State) String() string {
	if s == Initialized {
		return "initialized"
	}
	return "uninitialized"
}

// Network owns every Node and the parameters of the diffusion update.
type Network struct {
	nodes []Node

	diffusion float64
	damping   float64

	timeStep    float64
	currentTime float64

	width  int
	height int

	topology TopologyKind
	state    State

	source source

	rng    *rand.Rand
	logger *slog.Logger
}

// Option configures optional Network collaborators.
type Option func(*Network)

// WithSeed makes the random topology builders deterministic.
func WithSeed(seed uint64) Option {
	return func(n *Network) {
		n.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithLogger sets the logger used for usage diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(n *Network) {
		if l != nil {
			n.logger = l
		}
	}
}

// New creates an Uninitialized network of size isolated nodes with zero
// amplitude and a Zero source.
func New(size int, diffusion, damping float64, opts ...Option) (*Network, error) {
	if size < 0 {
		return nil, fmt.Errorf("creating network of size %d: %w", size, ErrInvalidSize)
	}
	if diffusion < 0 || damping < 0 {
		return nil, fmt.Errorf("creating network (D=%g, gamma=%g): %w", diffusion, damping, ErrInvalidCoefficient)
	}

	n := &Network{
		nodes:     make([]Node, size),
		diffusion: diffusion,
		damping:   damping,
		topology:  TopologyNone,
		logger:    slog.Default(),
	}
	for i := range n.nodes {
		n.nodes[i] = newNode(i, 0)
	}
	n.source = zeroSource(size)

	for _, opt := range opts {
		opt(n)
	}
	if n.rng == nil {
		WithSeed(uint64(time.Now().UnixNano()))(n)
	}
	return n, nil
}

// Size returns the number of nodes.
func (n *Network) Size() int { return len(n.nodes) }

// DiffusionCoeff returns D.
func (n *Network) DiffusionCoeff() float64 { return n.diffusion }

// DampingCoeff returns gamma.
func (n *Network) DampingCoeff() float64 { return n.damping }

// TimeStep returns dt. Zero means unset.
func (n *Network) TimeStep() float64 { return n.timeStep }

// SetTimeStep sets dt. Non-positive values are accepted here and reported by
// the propagation engine when it runs.
func (n *Network) SetTimeStep(dt float64) { n.timeStep = dt }

// CurrentTime returns the simulation clock.
func (n *Network) CurrentTime() float64 { return n.currentTime }

// Advance moves the simulation clock forward by dt. The propagation engine
// calls it once per committed step.
func (n *Network) Advance(dt float64) { n.currentTime += dt }

// State returns the topology lifecycle state.
func (n *Network) State() State { return n.state }

// Initialized reports whether a topology call has completed.
func (n *Network) Initialized() bool { return n.state == Initialized }

// Topology returns the kind of topology built, or TopologyNone.
func (n *Network) Topology() TopologyKind { return n.topology }

// GridWidth returns the grid width, or 0 for non-grid topologies.
func (n *Network) GridWidth() int { return n.width }

// GridHeight returns the grid height, or 0 for non-grid topologies.
func (n *Network) GridHeight() int { return n.height }

// IsGrid reports whether the network was built by InitializeGrid.
func (n *Network) IsGrid() bool {
	return n.topology == TopologyGrid && n.width*n.height == len(n.nodes)
}

// Logger returns the diagnostics logger.
func (n *Network) Logger() *slog.Logger { return n.logger }

// Nodes returns the node arena. Elements may be mutated through pointer
// methods; the slice itself must not be resized.
func (n *Network) Nodes() []Node { return n.nodes }

// Node returns a pointer to the node with the given id.
func (n *Network) Node(id int) (*Node, error) {
	if id < 0 || id >= len(n.nodes) {
		return nil, fmt.Errorf("node %d of %d: %w", id, len(n.nodes), ErrNodeOutOfRange)
	}
	return &n.nodes[id], nil
}

// SetAmplitude sets the current amplitude of node id, typically to place an
// initial perturbation.
func (n *Network) SetAmplitude(id int, a float64) error {
	node, err := n.Node(id)
	if err != nil {
		return err
	}
	node.SetAmplitude(a)
	return nil
}

// Amplitudes returns a copy of the current amplitudes ordered by node id.
func (n *Network) Amplitudes() []float64 {
	return n.AppendAmplitudes(make([]float64, 0, len(n.nodes)))
}

// AppendAmplitudes appends the current amplitudes to dst and returns it.
func (n *Network) AppendAmplitudes(dst []float64) []float64 {
	for i := range n.nodes {
		dst = append(dst, n.nodes[i].amplitude)
	}
	return dst
}

// Reset clears every neighbor list, amplitude and the clock, and returns the
// network to Uninitialized. Physical coefficients, dt and the source
// configuration are kept.
func (n *Network) Reset() {
	for i := range n.nodes {
		n.nodes[i] = newNode(i, 0)
	}
	n.currentTime = 0
	n.width, n.height = 0, 0
	n.topology = TopologyNone
	n.state = Uninitialized
}

// Stats summarizes the topology.
type Stats struct {
	Nodes      int
	Edges      int // undirected edges, counting each neighbor pair once
	MinDegree  int
	MaxDegree  int
	MeanDegree float64
	Isolated   int
}

// Stats computes degree statistics over the current neighbor lists.
func (n *Network) Stats() Stats {
	s := Stats{Nodes: len(n.nodes)}
	if len(n.nodes) == 0 {
		return s
	}
	total := 0
	s.MinDegree = n.nodes[0].Degree()
	for i := range n.nodes {
		d := n.nodes[i].Degree()
		total += d
		s.MinDegree = min(s.MinDegree, d)
		s.MaxDegree = max(s.MaxDegree, d)
		if d == 0 {
			s.Isolated++
		}
	}
	s.Edges = total / 2
	s.MeanDegree = float64(total) / float64(len(n.nodes))
	return s
}
