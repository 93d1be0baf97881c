package network

import "slices"

// Node is a single vertex of a Network. Its id doubles as its index into
// every per-node array the network and the propagation engine keep.
type Node struct {
	id                int
	amplitude         float64
	previousAmplitude float64
	neighbors         []int
}

func newNode(id int, amplitude float64) Node {
	return Node{id: id, amplitude: amplitude, previousAmplitude: amplitude}
}

// ID returns the node's stable identifier.
func (n *Node) ID() int { return n.id }

// Amplitude returns the current field value.
func (n *Node) Amplitude() float64 { return n.amplitude }

// PreviousAmplitude returns the value held before the last committed step.
func (n *Node) PreviousAmplitude() float64 { return n.previousAmplitude }

// SetAmplitude overwrites the current value without touching the previous one.
// Used to place initial conditions.
func (n *Node) SetAmplitude(a float64) { n.amplitude = a }

// Commit shifts the current value into previous and installs next.
func (n *Node) Commit(next float64) {
	n.previousAmplitude = n.amplitude
	n.amplitude = next
}

// Neighbors returns the neighbor ids in insertion order. The slice is shared
// with the node; callers must not modify it.
func (n *Node) Neighbors() []int { return n.neighbors }

// Degree returns the number of neighbor entries.
func (n *Node) Degree() int { return len(n.neighbors) }

// IsNeighbor reports whether id appears in the neighbor list.
func (n *Node) IsNeighbor(id int) bool {
	return slices.Contains(n.neighbors, id)
}

func (n *Node) addNeighbor(id int) {
	n.neighbors = append(n.neighbors, id)
}

// removeNeighbor drops the first occurrence of id, preserving order.
func (n *Node) removeNeighbor(id int) bool {
	i := slices.Index(n.neighbors, id)
	if i < 0 {
		return false
	}
	n.neighbors = slices.Delete(n.neighbors, i, i+1)
	return true
}
