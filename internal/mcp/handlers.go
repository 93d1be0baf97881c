package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/netwave/internal/benchmark"
	"github.com/nvandessel/netwave/internal/config"
	"github.com/nvandessel/netwave/internal/ratelimit"
	"github.com/nvandessel/netwave/internal/simulation"
	"github.com/nvandessel/netwave/internal/store"
	"github.com/nvandessel/netwave/internal/visualization"
)

const latestBenchmarkURI = "netwave://benchmarks/latest"

// registerTools registers all netwave MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "netwave_simulate",
		Description: "Run a damped diffusion simulation on a network and report its energy decay",
	}, s.handleSimulate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "netwave_benchmark",
		Description: "Time the propagation step over a grid of schedules, chunk sizes and worker counts and report speedup and efficiency",
	}, s.handleBenchmark)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "netwave_graph",
		Description: "Render the network's initial condition in DOT (Graphviz) or JSON format",
	}, s.handleGraph)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "netwave_results",
		Description: "List stored benchmark sessions and simulation runs, or load one session's rows",
	}, s.handleResults)
}

// registerResources registers MCP resources for auto-loading into context.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         latestBenchmarkURI,
		Name:        "netwave-latest-benchmark",
		Description: "Scaling table of the most recent stored benchmark session.",
		MIMEType:    "text/markdown",
	}, s.handleLatestBenchmarkResource)
}

func (s *Server) handleSimulate(ctx context.Context, req *sdk.CallToolRequest, args SimulateInput) (_ *sdk.CallToolResult, _ SimulateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("netwave_simulate", start, retErr, "workers", args.Workers, "schedule", args.Schedule, "save", args.Save)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "netwave_simulate"); err != nil {
		return nil, SimulateOutput{}, err
	}

	simCfg := s.settings.Simulation
	model, err := simCfg.ModelConfig.With(overrides(args.Model))
	if err != nil {
		return nil, SimulateOutput{}, err
	}
	simCfg.ModelConfig = model
	if args.Schedule != "" {
		simCfg.Schedule = args.Schedule
	}
	if args.Chunk > 0 {
		simCfg.Chunk = args.Chunk
	}
	if args.Workers > 0 {
		simCfg.Workers = args.Workers
	}
	sc, err := simCfg.Scenario()
	if err != nil {
		return nil, SimulateOutput{}, fmt.Errorf("invalid simulation: %w", err)
	}

	runner := simulation.NewRunner(simulation.WithLogger(s.logger), simulation.WithEvents(s.events))
	summary, err := runner.Run(ctx, sc, nil)
	if err != nil {
		return nil, SimulateOutput{}, err
	}

	out := SimulateOutput{
		Scenario:      summary.Name,
		Nodes:         summary.Nodes,
		Steps:         summary.Steps,
		FinalTime:     summary.FinalTime,
		InitialEnergy: summary.InitialEnergy(),
		FinalEnergy:   summary.FinalEnergy(),
		ElapsedMs:     summary.Elapsed.Milliseconds(),
	}
	if n := len(summary.Average); n > 0 {
		out.FinalAverage = summary.Average[n-1]
	}
	if args.TraceStride > 0 {
		for i := 0; i < len(summary.Energy); i += args.TraceStride {
			out.Trace = append(out.Trace, TracePoint{Step: i, Energy: summary.Energy[i], Average: summary.Average[i]})
		}
	}
	if args.Save {
		id, err := s.store.SaveSimulation(ctx, sc, summary)
		if err != nil {
			return nil, SimulateOutput{}, fmt.Errorf("save simulation: %w", err)
		}
		out.RunID = id
	}
	return nil, out, nil
}

func (s *Server) handleBenchmark(ctx context.Context, req *sdk.CallToolRequest, args BenchmarkInput) (_ *sdk.CallToolResult, _ BenchmarkOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("netwave_benchmark", start, retErr, "repetitions", args.Repetitions, "save", args.Save)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "netwave_benchmark"); err != nil {
		return nil, BenchmarkOutput{}, err
	}

	benchCfg := s.settings.Benchmark
	model, err := benchCfg.ModelConfig.With(overrides(args.Model))
	if err != nil {
		return nil, BenchmarkOutput{}, err
	}
	benchCfg.ModelConfig = model
	if len(args.Schedules) > 0 {
		benchCfg.Schedules = args.Schedules
	}
	if len(args.Chunks) > 0 {
		benchCfg.Chunks = args.Chunks
	}
	if len(args.Workers) > 0 {
		benchCfg.Workers = args.Workers
	}
	if args.Repetitions > 0 {
		benchCfg.Repetitions = args.Repetitions
	}
	if args.BaselineRepetitions > 0 {
		benchCfg.BaselineRepetitions = args.BaselineRepetitions
	}

	workload, err := benchCfg.Workload()
	if err != nil {
		return nil, BenchmarkOutput{}, fmt.Errorf("invalid workload: %w", err)
	}
	grid := benchCfg.Grid()
	if err := grid.Validate(); err != nil {
		return nil, BenchmarkOutput{}, err
	}

	h, err := benchmark.NewHarness(workload, benchmark.WithLogger(s.logger), benchmark.WithEvents(s.events))
	if err != nil {
		return nil, BenchmarkOutput{}, err
	}
	baseline, err := h.Baseline(ctx, benchCfg.BaselineRepetitions)
	if err != nil {
		return nil, BenchmarkOutput{}, err
	}
	results, err := h.RunGrid(ctx, grid, baseline)
	if err != nil {
		return nil, BenchmarkOutput{}, err
	}
	scaling := benchmark.ScalingReport(results, baseline)

	out := BenchmarkOutput{
		BaselineMean: baseline.Mean,
		BaselineStd:  baseline.Std,
		GridPoints:   len(results),
		Scaling:      toRows(scaling),
	}
	if args.Save {
		id, err := s.store.SaveBenchmark(ctx, &store.BenchmarkSession{
			Workload: store.RecordScenario(workload),
			Grid:     grid,
			Baseline: baseline,
			Results:  results,
			Scaling:  scaling,
		})
		if err != nil {
			return nil, BenchmarkOutput{}, fmt.Errorf("save benchmark: %w", err)
		}
		out.SessionID = id
	}
	return nil, out, nil
}

func (s *Server) handleGraph(ctx context.Context, req *sdk.CallToolRequest, args GraphInput) (_ *sdk.CallToolResult, _ GraphOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("netwave_graph", start, retErr, "format", args.Format)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "netwave_graph"); err != nil {
		return nil, GraphOutput{}, err
	}

	format := args.Format
	if format == "" {
		format = string(visualization.FormatJSON)
	}
	f, err := visualization.ParseFormat(format)
	if err != nil {
		return nil, GraphOutput{}, err
	}

	simCfg := s.settings.Simulation
	model, err := simCfg.ModelConfig.With(overrides(args.Model))
	if err != nil {
		return nil, GraphOutput{}, err
	}
	simCfg.ModelConfig = model
	sc, err := simCfg.Scenario()
	if err != nil {
		return nil, GraphOutput{}, fmt.Errorf("invalid simulation: %w", err)
	}
	nw, err := sc.Build(s.logger)
	if err != nil {
		return nil, GraphOutput{}, err
	}

	g := visualization.RenderJSON(nw)
	out := GraphOutput{Format: string(f), Graph: g, NodeCount: g.NodeCount, EdgeCount: g.EdgeCount}
	if f == visualization.FormatDOT {
		out.Graph = visualization.RenderDOT(nw)
	}
	return nil, out, nil
}

func (s *Server) handleResults(ctx context.Context, req *sdk.CallToolRequest, args ResultsInput) (_ *sdk.CallToolResult, _ ResultsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("netwave_results", start, retErr, "session", args.SessionID != "")
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "netwave_results"); err != nil {
		return nil, ResultsOutput{}, err
	}

	if args.SessionID != "" {
		session, err := s.store.LoadBenchmark(ctx, args.SessionID)
		if err != nil {
			return nil, ResultsOutput{}, err
		}
		return nil, ResultsOutput{
			Benchmarks: []SessionItem{sessionItem(*session)},
			Scaling:    toRows(session.Scaling),
			Grid:       toRows(session.Results),
		}, nil
	}

	sessions, err := s.store.ListBenchmarks(ctx)
	if err != nil {
		return nil, ResultsOutput{}, err
	}
	runs, err := s.store.ListSimulations(ctx)
	if err != nil {
		return nil, ResultsOutput{}, err
	}

	var out ResultsOutput
	for _, session := range sessions {
		out.Benchmarks = append(out.Benchmarks, sessionItem(session))
	}
	for _, run := range runs {
		out.Simulations = append(out.Simulations, RunItem{
			ID:        run.ID,
			CreatedAt: run.CreatedAt,
			Name:      run.Name,
			Nodes:     run.Nodes,
			Steps:     run.Steps,
		})
	}
	return nil, out, nil
}

// handleLatestBenchmarkResource renders the newest session's scaling table.
func (s *Server) handleLatestBenchmarkResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	sessions, err := s.store.ListBenchmarks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list benchmarks: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("# Latest netwave benchmark\n\n")
	if len(sessions) == 0 {
		sb.WriteString("No benchmark sessions stored yet. Run `netwave_benchmark` with `save: true`.\n")
	} else {
		session, err := s.store.LoadBenchmark(ctx, sessions[0].ID)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&sb, "Session `%s`, %s, baseline %.6g s ± %.2g\n\n",
			session.ID, describeWorkload(session.Workload), session.Baseline.Mean, session.Baseline.Std)
		sb.WriteString("| workers | schedule | chunk | time (s) | speedup | efficiency |\n")
		sb.WriteString("|---|---|---|---|---|---|\n")
		for _, r := range session.Scaling {
			fmt.Fprintf(&sb, "| %d | %s | %d | %.6g ± %.2g | %.3f ± %.3f | %.3f ± %.3f |\n",
				r.Workers, r.Schedule, r.Chunk, r.Time.Mean, r.Time.Std,
				r.Speedup, r.SpeedupErr, r.Efficiency, r.EfficiencyErr)
		}
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      latestBenchmarkURI,
				MIMEType: "text/markdown",
				Text:     sb.String(),
			},
		},
	}, nil
}

func overrides(in ModelInput) config.ModelOverrides {
	return config.ModelOverrides{
		Topology: in.Topology,
		Nodes:    in.Nodes,
		Width:    in.Width,
		Height:   in.Height,
		Steps:    in.Steps,
		Source:   in.Source,
		Seed:     in.Seed,
	}
}

func toRows(results []benchmark.RunResult) []ResultRow {
	rows := make([]ResultRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, ResultRow{
			Workers:         r.Workers,
			Schedule:        int(r.Schedule),
			Chunk:           r.Chunk,
			TimeMean:        r.Time.Mean,
			TimeStd:         r.Time.Std,
			Speedup:         r.Speedup,
			Efficiency:      r.Efficiency,
			SigmaSpeedup:    r.SpeedupErr,
			SigmaEfficiency: r.EfficiencyErr,
		})
	}
	return rows
}

func sessionItem(session store.BenchmarkSession) SessionItem {
	return SessionItem{
		ID:           session.ID,
		CreatedAt:    session.CreatedAt,
		Workload:     describeWorkload(session.Workload),
		BaselineMean: session.Baseline.Mean,
	}
}

func describeWorkload(w store.ScenarioRecord) string {
	return fmt.Sprintf("%s, %d nodes, %d steps", w.Topology, w.Nodes, w.Steps)
}
