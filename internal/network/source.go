package network

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
)

// SourceMode selects how the external source term is evaluated.
type SourceMode int

const (
	SourceZero SourceMode = iota
	SourceFixed
	SourceRandom
	SourceSine
)

func (m SourceMode) String() string {
	switch m {
	case SourceZero:
		return "zero"
	case SourceFixed:
		return "fixed"
	case SourceRandom:
		return "random"
	case SourceSine:
		return "sine"
	default:
		return fmt.Sprintf("SourceMode(%d)", int(m))
	}
}

// ParseSourceMode maps a configuration string to a SourceMode.
func ParseSourceMode(s string) (SourceMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "zero", "none":
		return SourceZero, nil
	case "fixed":
		return SourceFixed, nil
	case "random":
		return SourceRandom, nil
	case "sine", "sin":
		return SourceSine, nil
	default:
		return SourceZero, fmt.Errorf("%w: %q (valid: zero, fixed, random, sine)", ErrUnknownSourceMode, s)
	}
}

type source struct {
	mode      SourceMode
	values    []float64 // per-node constants for Fixed and Random
	amplitude float64   // Sine
	omega     float64   // Sine
}

func zeroSource(size int) source {
	return source{mode: SourceZero, values: make([]float64, size)}
}

// SourceMode returns the active source mode.
func (n *Network) SourceMode() SourceMode { return n.source.mode }

// Sources returns a copy of the per-node source vector. For Zero and Sine
// modes it is all zeros.
func (n *Network) Sources() []float64 { return slices.Clone(n.source.values) }

// SineParameters returns the amplitude and angular frequency of the Sine
// source.
func (n *Network) SineParameters() (amplitude, omega float64) {
	return n.source.amplitude, n.source.omega
}

// SetZeroSource switches the source off.
func (n *Network) SetZeroSource() {
	n.source = zeroSource(len(n.nodes))
}

// SetFixedSource installs a per-node constant source. values must have one
// entry per node.
func (n *Network) SetFixedSource(values []float64) error {
	if len(values) != len(n.nodes) {
		return fmt.Errorf("fixed source of length %d for %d nodes: %w", len(values), len(n.nodes), ErrSourceLength)
	}
	n.source = source{mode: SourceFixed, values: slices.Clone(values)}
	return nil
}

// SetUniformSource installs the same Fixed source value on every node.
func (n *Network) SetUniformSource(value float64) {
	values := make([]float64, len(n.nodes))
	for i := range values {
		values[i] = value
	}
	n.source = source{mode: SourceFixed, values: values}
}

// SetRandomSource draws a per-node constant uniformly from [lo, hi). The
// same seed always yields the same vector.
func (n *Network) SetRandomSource(lo, hi float64, seed uint64) error {
	if lo > hi {
		return fmt.Errorf("random source range [%g, %g): %w", lo, hi, ErrInvalidRange)
	}
	r := rand.New(rand.NewPCG(seed, seed))
	values := make([]float64, len(n.nodes))
	for i := range values {
		values[i] = lo + (hi-lo)*r.Float64()
	}
	n.source = source{mode: SourceRandom, values: values}
	return nil
}

// SetSineSource installs amplitude*sin(omega*t), identical on every node.
func (n *Network) SetSineSource(amplitude, omega float64) {
	n.source = source{
		mode:      SourceSine,
		values:    make([]float64, len(n.nodes)),
		amplitude: amplitude,
		omega:     omega,
	}
}

// SourceAt evaluates the source term of node i at time t.
func (n *Network) SourceAt(i int, t float64) float64 {
	switch n.source.mode {
	case SourceFixed, SourceRandom:
		return n.source.values[i]
	case SourceSine:
		return n.source.amplitude * math.Sin(n.source.omega*t)
	default:
		return 0
	}
}

// SourceSpec describes one source-configuration call.
type SourceSpec struct {
	Mode SourceMode

	// Fixed: Values wins when non-nil, otherwise Value is applied to every node.
	Value  float64
	Values []float64

	// Random
	Min  float64
	Max  float64
	Seed uint64

	// Sine
	Amplitude float64
	Omega     float64
}

// ApplySource dispatches to the setter named by spec.Mode, replacing any
// previously active source.
func (n *Network) ApplySource(spec SourceSpec) error {
	switch spec.Mode {
	case SourceZero:
		n.SetZeroSource()
	case SourceFixed:
		if spec.Values != nil {
			return n.SetFixedSource(spec.Values)
		}
		n.SetUniformSource(spec.Value)
	case SourceRandom:
		return n.SetRandomSource(spec.Min, spec.Max, spec.Seed)
	case SourceSine:
		n.SetSineSource(spec.Amplitude, spec.Omega)
	default:
		return fmt.Errorf("applying source: %w: %v", ErrUnknownSourceMode, spec.Mode)
	}
	return nil
}
