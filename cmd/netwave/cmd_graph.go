package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/nvandessel/netwave/internal/network"
	"github.com/nvandessel/netwave/internal/simulation"
	"github.com/nvandessel/netwave/internal/visualization"
	"github.com/spf13/cobra"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the network topology",
		Long: `Output the simulation network in DOT (Graphviz) or JSON format, with
nodes coloured by amplitude. By default the initial condition is rendered;
--final runs the simulation first and renders its last step.

With --serve, a local HTTP server exposes /graph.dot, /graph.json and
/api/simulate?steps=N until interrupted.

Examples:
  netwave graph | dot -Tsvg > network.svg
  netwave graph --format json --topology small-world --nodes 50 --seed 3
  netwave graph --final --steps 200 --file final.dot
  netwave graph --serve --addr localhost:8080`,
		RunE: runGraph,
	}

	addModelFlags(cmd)
	cmd.Flags().String("format", "dot", "Output format: dot or json")
	cmd.Flags().StringP("file", "f", "", "Write to a file instead of stdout")
	cmd.Flags().Bool("final", false, "Render the state after running the simulation")
	cmd.Flags().Bool("serve", false, "Serve the graph over HTTP until interrupted")
	cmd.Flags().String("addr", "localhost:0", "Listen address for --serve")

	return cmd
}

func runGraph(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	simCfg := settings.Simulation
	simCfg.ModelConfig, err = simCfg.ModelConfig.With(modelOverrides(cmd))
	if err != nil {
		return err
	}
	sc, err := simCfg.Scenario()
	if err != nil {
		return fmt.Errorf("invalid simulation: %w", err)
	}

	rt := newRuntime(cmd, settings)
	defer rt.Close()
	runner := simulation.NewRunner(simulation.WithLogger(rt.logger), simulation.WithEvents(rt.events))

	if serve, _ := cmd.Flags().GetBool("serve"); serve {
		addr, _ := cmd.Flags().GetString("addr")
		return runGraphServer(cmd, sc, runner, rt, addr)
	}

	format, _ := cmd.Flags().GetString("format")
	f, err := visualization.ParseFormat(format)
	if err != nil {
		return err
	}

	var nw *network.Network
	if final, _ := cmd.Flags().GetBool("final"); final {
		summary, err := runner.Run(cmd.Context(), sc, nil)
		if err != nil {
			return fmt.Errorf("simulation failed: %w", err)
		}
		nw, err = visualization.FinalState(sc, summary)
		if err != nil {
			return err
		}
	} else {
		nw, err = sc.Build(rt.logger)
		if err != nil {
			return err
		}
	}

	data, err := visualization.Render(nw, f)
	if err != nil {
		return fmt.Errorf("render %s: %w", f, err)
	}

	if file, _ := cmd.Flags().GetString("file"); file != "" {
		if err := os.WriteFile(file, data, 0644); err != nil {
			return fmt.Errorf("write graph file: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Graph written to %s\n", file)
		return nil
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

// runGraphServer starts the graph server and blocks until Ctrl-C.
func runGraphServer(cmd *cobra.Command, sc simulation.Scenario, runner *simulation.Runner, rt *runtime, addr string) error {
	srv := visualization.NewServer(sc, runner,
		visualization.WithListenAddr(addr),
		visualization.WithServerLogger(rt.logger))

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	if err := waitForAddr(ctx, srv, errCh); err != nil {
		return err
	}

	url := "http://" + srv.Addr()
	fmt.Fprintf(cmd.OutOrStdout(), "Graph server running at %s\n", url)
	fmt.Fprintf(cmd.OutOrStdout(), "Press Ctrl-C to stop.\n")

	if err := <-errCh; err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// waitForAddr blocks until the server has bound its listener.
func waitForAddr(ctx context.Context, srv *visualization.Server, errCh <-chan error) error {
	deadline := time.Now().Add(3 * time.Second)
	for srv.Addr() == "" {
		select {
		case err := <-errCh:
			if err == nil {
				err = ctx.Err()
			}
			return fmt.Errorf("server failed to start: %w", err)
		case <-time.After(10 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("server failed to start")
		}
	}
	return nil
}
