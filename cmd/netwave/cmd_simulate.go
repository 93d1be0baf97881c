package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/netwave/internal/constants"
	"github.com/nvandessel/netwave/internal/report"
	"github.com/nvandessel/netwave/internal/simulation"
	"github.com/nvandessel/netwave/internal/store"
	"github.com/nvandessel/netwave/internal/visualization"
	"github.com/spf13/cobra"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a diffusion simulation and write its reports",
		Long: `Run the configured simulation and write results.csv,
"wave evolution.dat" and "energy conservation.dat" to the output directory.
The energy trace is recorded in the results database unless --no-save is set.

Examples:
  netwave simulate                              # Canonical 10x10 grid, 1000 steps
  netwave simulate --workers 4 --schedule dynamic --chunk 16
  netwave simulate --topology small-world --nodes 200 --seed 7 --dot`,
		RunE: runSimulate,
	}

	addModelFlags(cmd)
	addProfileFlags(cmd)
	cmd.Flags().String("schedule", "", "Partition schedule: static, dynamic, guided or 0, 1, 2")
	cmd.Flags().Int("chunk", 0, "Chunk size for the schedule")
	cmd.Flags().Int("workers", 0, "Worker count")
	cmd.Flags().String("reduction", "", "Energy reduction: reduction, private or atomic")
	cmd.Flags().Bool("no-save", false, "Don't record the run in the results database")
	cmd.Flags().Bool("dot", false, "Also write the final state as "+constants.DOTFile)

	return cmd
}

type simulateResult struct {
	Scenario      string  `json:"scenario"`
	Nodes         int     `json:"nodes"`
	Steps         int     `json:"steps"`
	FinalTime     float64 `json:"final_time"`
	InitialEnergy float64 `json:"initial_energy"`
	FinalEnergy   float64 `json:"final_energy"`
	ElapsedMs     int64   `json:"elapsed_ms"`
	OutputDir     string  `json:"output_dir"`
	RunID         string  `json:"run_id,omitempty"`
}

func runSimulate(cmd *cobra.Command, args []string) (retErr error) {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	simCfg := settings.Simulation
	simCfg.ModelConfig, err = simCfg.ModelConfig.With(modelOverrides(cmd))
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("schedule"); v != "" {
		simCfg.Schedule = v
	}
	if v, _ := cmd.Flags().GetInt("chunk"); v > 0 {
		simCfg.Chunk = v
	}
	if v, _ := cmd.Flags().GetInt("workers"); v > 0 {
		simCfg.Workers = v
	}
	if v, _ := cmd.Flags().GetString("reduction"); v != "" {
		simCfg.Reduction = v
	}
	sc, err := simCfg.Scenario()
	if err != nil {
		return fmt.Errorf("invalid simulation: %w", err)
	}

	rt := newRuntime(cmd, settings)
	defer rt.Close()

	outDir := settings.Output.Dir
	files, err := report.CreateSimulationFiles(outDir, sc.Nodes)
	if err != nil {
		return err
	}

	stop, err := startProfile(cmd, outDir)
	if err != nil {
		files.Close()
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	runner := simulation.NewRunner(simulation.WithLogger(rt.logger), simulation.WithEvents(rt.events))
	summary, err := runner.Run(ctx, sc, files)
	stop()
	if err = errors.Join(err, files.Close()); err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}

	if dot, _ := cmd.Flags().GetBool("dot"); dot {
		if err := writeFinalDOT(outDir, sc, summary); err != nil {
			return err
		}
	}

	result := simulateResult{
		Scenario:      summary.Name,
		Nodes:         summary.Nodes,
		Steps:         summary.Steps,
		FinalTime:     summary.FinalTime,
		InitialEnergy: summary.InitialEnergy(),
		FinalEnergy:   summary.FinalEnergy(),
		ElapsedMs:     summary.Elapsed.Milliseconds(),
		OutputDir:     outDir,
	}

	if noSave, _ := cmd.Flags().GetBool("no-save"); !noSave {
		st, err := store.Open(settings.Output.DatabasePath())
		if err != nil {
			return fmt.Errorf("open results store: %w", err)
		}
		defer func() { retErr = errors.Join(retErr, st.Close()) }()

		result.RunID, err = st.SaveSimulation(ctx, sc, summary)
		if err != nil {
			return fmt.Errorf("save simulation: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return json.NewEncoder(out).Encode(result)
	}
	fmt.Fprintln(out, simulation.FormatSummary(summary))
	fmt.Fprintf(out, "Reports written to %s\n", outDir)
	if result.RunID != "" {
		fmt.Fprintf(out, "Recorded run %s\n", result.RunID)
	}
	return nil
}

// writeFinalDOT renders the network as it stands after the run.
func writeFinalDOT(dir string, sc simulation.Scenario, summary simulation.Summary) error {
	nw, err := visualization.FinalState(sc, summary)
	if err != nil {
		return fmt.Errorf("rebuild final state: %w", err)
	}
	path := filepath.Join(dir, constants.DOTFile)
	if err := os.WriteFile(path, []byte(visualization.RenderDOT(nw)), 0644); err != nil {
		return fmt.Errorf("write %s: %w", constants.DOTFile, err)
	}
	return nil
}
