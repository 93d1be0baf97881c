package main

import (
	"fmt"

	"github.com/nvandessel/netwave/internal/config"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
)

// addModelFlags registers the model overrides shared by simulate, benchmark
// and graph.
func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().String("topology", "", "Topology: linear, grid, random or small-world")
	cmd.Flags().Int("nodes", 0, "Node count (grids derive it from width*height)")
	cmd.Flags().Int("width", 0, "Grid width")
	cmd.Flags().Int("height", 0, "Grid height")
	cmd.Flags().Int("steps", 0, "Number of time steps")
	cmd.Flags().String("source", "", "Source mode: zero, fixed, random or sine")
	cmd.Flags().Uint64("seed", 0, "Seed for random topologies")
}

func modelOverrides(cmd *cobra.Command) config.ModelOverrides {
	var o config.ModelOverrides
	o.Topology, _ = cmd.Flags().GetString("topology")
	o.Nodes, _ = cmd.Flags().GetInt("nodes")
	o.Width, _ = cmd.Flags().GetInt("width")
	o.Height, _ = cmd.Flags().GetInt("height")
	o.Steps, _ = cmd.Flags().GetInt("steps")
	o.Source, _ = cmd.Flags().GetString("source")
	o.Seed, _ = cmd.Flags().GetUint64("seed")
	return o
}

func addProfileFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("cpuprofile", false, "Write a CPU profile to the output directory")
	cmd.Flags().Bool("memprofile", false, "Write a heap profile to the output directory")
}

// startProfile starts the profiler selected by the profile flags. The
// returned stop function is never nil.
func startProfile(cmd *cobra.Command, dir string) (stop func(), err error) {
	cpu, _ := cmd.Flags().GetBool("cpuprofile")
	mem, _ := cmd.Flags().GetBool("memprofile")

	var mode func(*profile.Profile)
	switch {
	case cpu && mem:
		return func() {}, fmt.Errorf("--cpuprofile and --memprofile cannot be combined")
	case cpu:
		mode = profile.CPUProfile
	case mem:
		mode = profile.MemProfile
	default:
		return func() {}, nil
	}

	p := profile.Start(mode, profile.ProfilePath(dir), profile.Quiet, profile.NoShutdownHook)
	return p.Stop, nil
}
