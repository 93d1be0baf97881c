package network

import (
	"fmt"
	"strings"
)

// TopologyKind names a topology builder.
type TopologyKind string

const (
	TopologyNone       TopologyKind = ""
	TopologyLinear     TopologyKind = "linear"
	TopologyGrid       TopologyKind = "grid"
	TopologyRandom     TopologyKind = "random"
	TopologySmallWorld TopologyKind = "small-world"
)

// ParseTopology maps a configuration string to a TopologyKind.
func ParseTopology(s string) (TopologyKind, error) {
	switch k := TopologyKind(strings.ToLower(strings.TrimSpace(s))); k {
	case TopologyLinear, TopologyGrid, TopologyRandom, TopologySmallWorld:
		return k, nil
	case "smallworld", "small_world":
		return TopologySmallWorld, nil
	case "2d", "grid2d":
		return TopologyGrid, nil
	default:
		return TopologyNone, fmt.Errorf("%w: %q (valid: linear, grid, random, small-world)", ErrUnknownTopology, s)
	}
}

// TopologySpec describes one topology-initialization call. Only the fields
// relevant to Kind are read.
type TopologySpec struct {
	Kind        TopologyKind
	Width       int     // grid
	Height      int     // grid
	Probability float64 // random
	K           int     // small-world ring degree
	Beta        float64 // small-world rewiring probability
}

// Initialize dispatches to the builder named by spec.Kind.
func (n *Network) Initialize(spec TopologySpec) error {
	switch spec.Kind {
	case TopologyLinear:
		return n.InitializeLinear()
	case TopologyGrid:
		return n.InitializeGrid(spec.Width, spec.Height)
	case TopologyRandom:
		return n.InitializeRandom(spec.Probability)
	case TopologySmallWorld:
		return n.InitializeSmallWorld(spec.K, spec.Beta)
	default:
		return fmt.Errorf("initializing network: %w: %q", ErrUnknownTopology, spec.Kind)
	}
}

// InitializeRegular builds a linear chain (dimensions == 1) or a
// width x height grid (dimensions == 2).
func (n *Network) InitializeRegular(dimensions, width, height int) error {
	switch dimensions {
	case 1:
		return n.InitializeLinear()
	case 2:
		return n.InitializeGrid(width, height)
	default:
		return fmt.Errorf("initializing %d-dimensional network: %w", dimensions, ErrUnsupportedDimension)
	}
}

// InitializeLinear connects node i to i-1 and i+1 when they exist.
func (n *Network) InitializeLinear() error {
	if err := n.requireUninitialized(); err != nil {
		return err
	}
	size := len(n.nodes)
	for i := 0; i < size; i++ {
		if i > 0 {
			n.nodes[i].addNeighbor(i - 1)
		}
		if i < size-1 {
			n.nodes[i].addNeighbor(i + 1)
		}
	}
	n.markInitialized(TopologyLinear)
	return nil
}

// InitializeGrid lays the nodes out row-major on a width x height lattice,
// node id = row*width + col, and connects each cell to its up to four axis
// neighbors.
func (n *Network) InitializeGrid(width, height int) error {
	if err := n.requireUninitialized(); err != nil {
		return err
	}
	if width <= 0 || height <= 0 || width*height != len(n.nodes) {
		return fmt.Errorf("initializing %dx%d grid over %d nodes: %w", width, height, len(n.nodes), ErrDimensionMismatch)
	}

	idx := func(r, c int) int { return r*width + c }
	for r := 0; r < height; r++ {
		for c := 0; c < width; c++ {
			node := &n.nodes[idx(r, c)]
			if r > 0 {
				node.addNeighbor(idx(r-1, c))
			}
			if r < height-1 {
				node.addNeighbor(idx(r+1, c))
			}
			if c > 0 {
				node.addNeighbor(idx(r, c-1))
			}
			if c < width-1 {
				node.addNeighbor(idx(r, c+1))
			}
		}
	}

	n.width, n.height = width, height
	n.markInitialized(TopologyGrid)
	return nil
}

// InitializeRandom builds an Erdos-Renyi graph: every unordered pair gets an
// undirected edge independently with probability p.
func (n *Network) InitializeRandom(p float64) error {
	if err := n.requireUninitialized(); err != nil {
		return err
	}
	if p < 0 || p > 1 {
		return fmt.Errorf("initializing random network with p=%g: %w", p, ErrInvalidProbability)
	}

	size := len(n.nodes)
	for i := 0; i < size; i++ {
		for j := i + 1; j < size; j++ {
			if n.rng.Float64() < p {
				n.connect(i, j)
			}
		}
	}
	n.markInitialized(TopologyRandom)
	return nil
}

// InitializeSmallWorld builds a Watts-Strogatz graph: a ring where every node
// links to its k/2 nearest neighbors on each side, after which each ring edge
// is independently rewired with probability beta to a uniformly chosen
// non-neighbor. Degrees are only approximately k afterwards.
func (n *Network) InitializeSmallWorld(k int, beta float64) error {
	if err := n.requireUninitialized(); err != nil {
		return err
	}
	size := len(n.nodes)
	if k < 0 || k%2 != 0 || (size > 0 && k >= size) {
		return fmt.Errorf("initializing small-world network with k=%d over %d nodes: %w", k, size, ErrInvalidDegree)
	}
	if beta < 0 || beta > 1 {
		return fmt.Errorf("initializing small-world network with beta=%g: %w", beta, ErrInvalidProbability)
	}

	half := k / 2
	for i := 0; i < size; i++ {
		for j := 1; j <= half; j++ {
			t := (i + j) % size
			if !n.nodes[i].IsNeighbor(t) {
				n.connect(i, t)
			}
		}
	}

	candidates := make([]int, 0, size)
	for i := 0; i < size; i++ {
		for j := 1; j <= half; j++ {
			if n.rng.Float64() >= beta {
				continue
			}
			t := (i + j) % size
			// Already rewired away by an earlier pass.
			if !n.nodes[i].IsNeighbor(t) {
				continue
			}

			candidates = candidates[:0]
			for m := 0; m < size; m++ {
				if m != i && !n.nodes[i].IsNeighbor(m) {
					candidates = append(candidates, m)
				}
			}
			if len(candidates) == 0 {
				continue
			}
			m := candidates[n.rng.IntN(len(candidates))]

			n.disconnect(i, t)
			n.connect(i, m)
		}
	}

	n.markInitialized(TopologySmallWorld)
	return nil
}

// GridDegreeViolation describes a grid cell whose degree disagrees with its
// position.
type GridDegreeViolation struct {
	Node     int
	Row, Col int
	Degree   int
	Expected int
}

// VerifyGrid checks that interior cells have 4 neighbors, non-corner edge
// cells 3 and corners 2 (fewer on degenerate 1-wide grids). It returns the
// violations found, or nil.
func (n *Network) VerifyGrid() ([]GridDegreeViolation, error) {
	if !n.IsGrid() {
		return nil, fmt.Errorf("verifying grid: topology is %q: %w", n.topology, ErrDimensionMismatch)
	}
	var out []GridDegreeViolation
	for r := 0; r < n.height; r++ {
		for c := 0; c < n.width; c++ {
			want := 0
			if r > 0 {
				want++
			}
			if r < n.height-1 {
				want++
			}
			if c > 0 {
				want++
			}
			if c < n.width-1 {
				want++
			}
			id := r*n.width + c
			if got := n.nodes[id].Degree(); got != want {
				out = append(out, GridDegreeViolation{Node: id, Row: r, Col: c, Degree: got, Expected: want})
			}
		}
	}
	return out, nil
}

func (n *Network) requireUninitialized() error {
	if n.state == Initialized {
		return fmt.Errorf("network built as %q: %w", n.topology, ErrAlreadyInitialized)
	}
	return nil
}

func (n *Network) markInitialized(kind TopologyKind) {
	n.topology = kind
	n.state = Initialized
}

func (n *Network) connect(a, b int) {
	n.nodes[a].addNeighbor(b)
	n.nodes[b].addNeighbor(a)
}

func (n *Network) disconnect(a, b int) {
	n.nodes[a].removeNeighbor(b)
	n.nodes[b].removeNeighbor(a)
}

// Connect adds the undirected edge a-b. It is a no-op when the edge exists.
// Self-loops are rejected.
func (n *Network) Connect(a, b int) error {
	if err := n.checkEdge(a, b); err != nil {
		return err
	}
	if !n.nodes[a].IsNeighbor(b) {
		n.connect(a, b)
	}
	return nil
}

// Disconnect removes the undirected edge a-b if present.
func (n *Network) Disconnect(a, b int) error {
	if err := n.checkEdge(a, b); err != nil {
		return err
	}
	n.disconnect(a, b)
	return nil
}

func (n *Network) checkEdge(a, b int) error {
	if a < 0 || a >= len(n.nodes) || b < 0 || b >= len(n.nodes) {
		return fmt.Errorf("edge %d-%d: %w", a, b, ErrNodeOutOfRange)
	}
	if a == b {
		return fmt.Errorf("edge %d-%d: self-loop: %w", a, b, ErrInvalidDegree)
	}
	return nil
}
