// Package visualization renders diffusion networks in various output formats.
package visualization

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/nvandessel/netwave/internal/network"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// ParseFormat accepts "dot" or "json"; "" selects DOT.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatDOT:
		return FormatDOT, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown graph format %q (want dot or json)", s)
	}
}

// GraphNode is one vertex in the JSON rendering.
type GraphNode struct {
	ID        int     `json:"id"`
	Amplitude float64 `json:"amplitude"`
	Degree    int     `json:"degree"`
	Color     string  `json:"color"`
	X         *int    `json:"x,omitempty"`
	Y         *int    `json:"y,omitempty"`
}

// GraphEdge is one undirected edge, reported with Source < Target.
type GraphEdge struct {
	Source int `json:"source"`
	Target int `json:"target"`
}

// Graph is the JSON rendering of a network.
type Graph struct {
	Topology  string      `json:"topology"`
	Time      float64     `json:"time"`
	Nodes     []GraphNode `json:"nodes"`
	Edges     []GraphEdge `json:"edges"`
	NodeCount int         `json:"node_count"`
	EdgeCount int         `json:"edge_count"`
}

// Render produces the network in the requested format.
func Render(net *network.Network, format Format) ([]byte, error) {
	switch format {
	case FormatDOT, "":
		return []byte(RenderDOT(net)), nil
	case FormatJSON:
		data, err := json.MarshalIndent(RenderJSON(net), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal graph: %w", err)
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unknown graph format %q", format)
	}
}

// RenderDOT produces an undirected Graphviz representation of the network.
// Nodes are filled on a blue-white-red scale by amplitude; grid nodes carry
// pinned positions for neato.
func RenderDOT(net *network.Network) string {
	amps := net.Amplitudes()
	scale := maxAbs(amps)

	var b strings.Builder
	b.WriteString("graph netwave {\n")
	fmt.Fprintf(&b, "  label=%q;\n", fmt.Sprintf("%s t=%g", topologyName(net), net.CurrentTime()))
	b.WriteString("  node [shape=circle, style=filled, fontname=\"Helvetica\", fontsize=8];\n\n")

	for i, a := range amps {
		fmt.Fprintf(&b, "  %d [fillcolor=%q, tooltip=\"amplitude=%.6g\"", i, amplitudeColor(a, scale), a)
		if x, y, ok := gridPos(net, i); ok {
			fmt.Fprintf(&b, ", pos=\"%d,%d!\"", x, y)
		}
		b.WriteString("];\n")
	}
	b.WriteString("\n")

	for _, e := range CollectEdges(net) {
		fmt.Fprintf(&b, "  %d -- %d;\n", e.Source, e.Target)
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces a Graph with node amplitudes and deduplicated edges.
func RenderJSON(net *network.Network) Graph {
	amps := net.Amplitudes()
	scale := maxAbs(amps)
	nodes := net.Nodes()

	g := Graph{
		Topology: topologyName(net),
		Time:     net.CurrentTime(),
		Nodes:    make([]GraphNode, 0, len(nodes)),
	}
	for i := range nodes {
		gn := GraphNode{
			ID:        i,
			Amplitude: amps[i],
			Degree:    nodes[i].Degree(),
			Color:     amplitudeColor(amps[i], scale),
		}
		if x, y, ok := gridPos(net, i); ok {
			gn.X, gn.Y = &x, &y
		}
		g.Nodes = append(g.Nodes, gn)
	}
	g.Edges = CollectEdges(net)
	g.NodeCount = len(g.Nodes)
	g.EdgeCount = len(g.Edges)
	return g
}

// CollectEdges gathers each undirected neighbor pair once, ordered by source
// then by the source's neighbor order.
func CollectEdges(net *network.Network) []GraphEdge {
	seen := make(map[[2]int]bool)
	result := []GraphEdge{}
	for i, node := range net.Nodes() {
		for _, j := range node.Neighbors() {
			key := [2]int{min(i, j), max(i, j)}
			if seen[key] {
				continue
			}
			seen[key] = true
			result = append(result, GraphEdge{Source: key[0], Target: key[1]})
		}
	}
	return result
}

// amplitudeColor maps a in [-scale, scale] to blue (negative), white (zero)
// or red (positive).
func amplitudeColor(a, scale float64) string {
	if scale == 0 || math.IsNaN(a) {
		return "#ffffff"
	}
	t := math.Max(-1, math.Min(1, a/scale))
	fade := uint8(math.Round(255 * (1 - math.Abs(t))))
	if t >= 0 {
		return fmt.Sprintf("#ff%02x%02x", fade, fade)
	}
	return fmt.Sprintf("#%02x%02xff", fade, fade)
}

func maxAbs(xs []float64) float64 {
	m := 0.0
	for _, x := range xs {
		m = math.Max(m, math.Abs(x))
	}
	return m
}

func gridPos(net *network.Network, i int) (x, y int, ok bool) {
	if !net.IsGrid() || net.GridWidth() == 0 {
		return 0, 0, false
	}
	return i % net.GridWidth(), i / net.GridWidth(), true
}

func topologyName(net *network.Network) string {
	if k := net.Topology(); k != "" {
		return string(k)
	}
	return "uninitialized"
}
