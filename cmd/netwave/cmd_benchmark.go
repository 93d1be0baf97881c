package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/nvandessel/netwave/internal/benchmark"
	"github.com/nvandessel/netwave/internal/report"
	"github.com/nvandessel/netwave/internal/store"
	"github.com/spf13/cobra"
)

func newBenchmarkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Measure step scaling across schedules, chunk sizes and workers",
		Long: `Time the benchmark workload single-threaded to establish the baseline,
then once per (schedule, chunk, workers) grid point, and derive speedup and
efficiency with their propagated errors.

"benchmark results.dat" receives the full grid and "scaling analysis.dat"
the best configuration per worker count. Each run is recorded as a session
in the results database.

Examples:
  netwave benchmark                                   # Default grid
  netwave benchmark --schedules 0,1 --chunks 0,64 --workers 1,2,4 --repetitions 5
  netwave benchmark --list                            # Stored sessions
  netwave benchmark --show bench-1a2b3c4d5e6f7a8b     # Rows of one session`,
		RunE: runBenchmark,
	}

	addModelFlags(cmd)
	addProfileFlags(cmd)
	cmd.Flags().IntSlice("schedules", nil, "Schedule selectors to sweep (0 static, 1 dynamic, 2 guided)")
	cmd.Flags().IntSlice("chunks", nil, "Chunk sizes to sweep")
	cmd.Flags().IntSlice("workers", nil, "Worker counts to sweep")
	cmd.Flags().Int("repetitions", 0, "Timed repetitions per grid point")
	cmd.Flags().Int("baseline-repetitions", 0, "Timed repetitions of the single-worker baseline")
	cmd.Flags().Bool("no-save", false, "Don't record the session in the results database")
	cmd.Flags().Bool("list", false, "List stored benchmark sessions and exit")
	cmd.Flags().String("show", "", "Print the rows of a stored session and exit")

	return cmd
}

func runBenchmark(cmd *cobra.Command, args []string) (retErr error) {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	list, _ := cmd.Flags().GetBool("list")
	show, _ := cmd.Flags().GetString("show")
	if list || show != "" {
		st, err := store.Open(settings.Output.DatabasePath())
		if err != nil {
			return fmt.Errorf("open results store: %w", err)
		}
		defer func() { retErr = errors.Join(retErr, st.Close()) }()
		if show != "" {
			return showSession(cmd, st, show)
		}
		return listSessions(cmd, st)
	}

	benchCfg := settings.Benchmark
	benchCfg.ModelConfig, err = benchCfg.ModelConfig.With(modelOverrides(cmd))
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetIntSlice("schedules"); len(v) > 0 {
		benchCfg.Schedules = v
	}
	if v, _ := cmd.Flags().GetIntSlice("chunks"); len(v) > 0 {
		benchCfg.Chunks = v
	}
	if v, _ := cmd.Flags().GetIntSlice("workers"); len(v) > 0 {
		benchCfg.Workers = v
	}
	if v, _ := cmd.Flags().GetInt("repetitions"); v > 0 {
		benchCfg.Repetitions = v
	}
	if v, _ := cmd.Flags().GetInt("baseline-repetitions"); v > 0 {
		benchCfg.BaselineRepetitions = v
	}

	workload, err := benchCfg.Workload()
	if err != nil {
		return fmt.Errorf("invalid workload: %w", err)
	}
	grid := benchCfg.Grid()
	if err := grid.Validate(); err != nil {
		return err
	}

	rt := newRuntime(cmd, settings)
	defer rt.Close()

	h, err := benchmark.NewHarness(workload, benchmark.WithLogger(rt.logger), benchmark.WithEvents(rt.events))
	if err != nil {
		return err
	}

	outDir := settings.Output.Dir
	stop, err := startProfile(cmd, outDir)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	rt.logger.Info("benchmark started", "nodes", workload.Nodes, "steps", workload.Steps, "grid_points", grid.Points())
	baseline, err := h.Baseline(ctx, benchCfg.BaselineRepetitions)
	if err != nil {
		stop()
		return fmt.Errorf("baseline: %w", err)
	}
	results, err := h.RunGrid(ctx, grid, baseline)
	stop()
	if err != nil {
		return fmt.Errorf("benchmark grid: %w", err)
	}
	scaling := benchmark.ScalingReport(results, baseline)

	if err := report.WriteBenchmarkFiles(outDir, results, scaling); err != nil {
		return err
	}

	session := &store.BenchmarkSession{
		Workload: store.RecordScenario(workload),
		Grid:     grid,
		Baseline: baseline,
		Results:  results,
		Scaling:  scaling,
	}
	if noSave, _ := cmd.Flags().GetBool("no-save"); !noSave {
		st, err := store.Open(settings.Output.DatabasePath())
		if err != nil {
			return fmt.Errorf("open results store: %w", err)
		}
		defer func() { retErr = errors.Join(retErr, st.Close()) }()
		if _, err := st.SaveBenchmark(ctx, session); err != nil {
			return fmt.Errorf("save benchmark: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return json.NewEncoder(out).Encode(session)
	}
	fmt.Fprintf(out, "Baseline: %.6g s ± %.2g (%d runs)\n\n", baseline.Mean, baseline.Std, benchCfg.BaselineRepetitions)
	if err := report.WriteScalingTable(out, scaling); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nReports written to %s\n", outDir)
	if session.ID != "" {
		fmt.Fprintf(out, "Recorded session %s\n", session.ID)
	}
	return nil
}

func listSessions(cmd *cobra.Command, st *store.SQLiteResultStore) error {
	sessions, err := st.ListBenchmarks(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		if sessions == nil {
			sessions = []store.BenchmarkSession{}
		}
		return json.NewEncoder(out).Encode(sessions)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No benchmark sessions recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tNODES\tSTEPS\tBASELINE (s)")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.6g\n",
			s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04:05"), s.Workload.Nodes, s.Workload.Steps, s.Baseline.Mean)
	}
	return tw.Flush()
}

func showSession(cmd *cobra.Command, st *store.SQLiteResultStore, id string) error {
	session, err := st.LoadBenchmark(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("load session %s: %w", id, err)
	}

	out := cmd.OutOrStdout()
	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return json.NewEncoder(out).Encode(session)
	}
	fmt.Fprintf(out, "Session %s (%s)\n", session.ID, session.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Workload: %s, %d nodes, %d steps\n", session.Workload.Topology, session.Workload.Nodes, session.Workload.Steps)
	fmt.Fprintf(out, "Baseline: %.6g s ± %.2g\n", session.Baseline.Mean, session.Baseline.Std)
	return writeSessionTables(out, session)
}

func writeSessionTables(out io.Writer, session *store.BenchmarkSession) error {
	fmt.Fprintln(out, "\nScaling:")
	if err := report.WriteScalingTable(out, session.Scaling); err != nil {
		return err
	}
	fmt.Fprintln(out, "\nGrid:")
	return report.WriteBenchmarkTable(out, session.Results)
}
