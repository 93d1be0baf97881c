package mcp

import "time"

// ModelInput overrides the configured model. Zero fields keep the configured value.
type ModelInput struct {
	Topology string `json:"topology,omitempty" jsonschema:"Topology kind: linear, grid, random or small-world"`
	Nodes    int    `json:"nodes,omitempty" jsonschema:"Node count (derived from width*height for grids when omitted)"`
	Width    int    `json:"width,omitempty" jsonschema:"Grid width"`
	Height   int    `json:"height,omitempty" jsonschema:"Grid height"`
	Steps    int    `json:"steps,omitempty" jsonschema:"Number of time steps"`
	Source   string `json:"source,omitempty" jsonschema:"Source mode: zero, fixed, random or sine"`
	Seed     uint64 `json:"seed,omitempty" jsonschema:"Seed for random topologies"`
}

// SimulateInput defines the input for the netwave_simulate tool.
type SimulateInput struct {
	Model       ModelInput `json:"model,omitempty" jsonschema:"Model overrides"`
	Schedule    string     `json:"schedule,omitempty" jsonschema:"Partition schedule: static, dynamic, guided or 0, 1, 2"`
	Chunk       int        `json:"chunk,omitempty" jsonschema:"Chunk size for the schedule"`
	Workers     int        `json:"workers,omitempty" jsonschema:"Worker count"`
	TraceStride int        `json:"trace_stride,omitempty" jsonschema:"Return every n-th energy trace point (0 returns none)"`
	Save        bool       `json:"save,omitempty" jsonschema:"Persist the run in the results database"`
}

// TracePoint is one sampled step of a run.
type TracePoint struct {
	Step    int     `json:"step"`
	Energy  float64 `json:"energy"`
	Average float64 `json:"average"`
}

// SimulateOutput defines the output for the netwave_simulate tool.
type SimulateOutput struct {
	Scenario      string       `json:"scenario" jsonschema:"Scenario name"`
	Nodes         int          `json:"nodes" jsonschema:"Node count"`
	Steps         int          `json:"steps" jsonschema:"Steps executed"`
	FinalTime     float64      `json:"final_time" jsonschema:"Simulated time after the last step"`
	InitialEnergy float64      `json:"initial_energy" jsonschema:"Energy at step 0"`
	FinalEnergy   float64      `json:"final_energy" jsonschema:"Energy after the last step"`
	FinalAverage  float64      `json:"final_average" jsonschema:"Mean amplitude after the last step"`
	ElapsedMs     int64        `json:"elapsed_ms" jsonschema:"Wall-clock time of the run"`
	Trace         []TracePoint `json:"trace,omitempty" jsonschema:"Sampled energy trace"`
	RunID         string       `json:"run_id,omitempty" jsonschema:"Results database id when saved"`
}

// BenchmarkInput defines the input for the netwave_benchmark tool.
type BenchmarkInput struct {
	Model               ModelInput `json:"model,omitempty" jsonschema:"Workload overrides"`
	Schedules           []int      `json:"schedules,omitempty" jsonschema:"Schedule selectors to sweep (0 static, 1 dynamic, 2 guided)"`
	Chunks              []int      `json:"chunks,omitempty" jsonschema:"Chunk sizes to sweep"`
	Workers             []int      `json:"workers,omitempty" jsonschema:"Worker counts to sweep"`
	Repetitions         int        `json:"repetitions,omitempty" jsonschema:"Timed repetitions per grid point"`
	BaselineRepetitions int        `json:"baseline_repetitions,omitempty" jsonschema:"Timed repetitions of the single-worker baseline"`
	Save                bool       `json:"save,omitempty" jsonschema:"Persist the session in the results database"`
}

// ResultRow is one benchmark row.
type ResultRow struct {
	Workers         int     `json:"workers"`
	Schedule        int     `json:"schedule"`
	Chunk           int     `json:"chunk"`
	TimeMean        float64 `json:"time_mean"`
	TimeStd         float64 `json:"time_std"`
	Speedup         float64 `json:"speedup"`
	Efficiency      float64 `json:"efficiency"`
	SigmaSpeedup    float64 `json:"sigma_speedup"`
	SigmaEfficiency float64 `json:"sigma_efficiency"`
}

// BenchmarkOutput defines the output for the netwave_benchmark tool.
type BenchmarkOutput struct {
	BaselineMean float64     `json:"baseline_mean" jsonschema:"Mean single-worker time in seconds"`
	BaselineStd  float64     `json:"baseline_std" jsonschema:"Standard deviation of the baseline"`
	GridPoints   int         `json:"grid_points" jsonschema:"Number of measured grid points"`
	Scaling      []ResultRow `json:"scaling" jsonschema:"Best row per worker count"`
	SessionID    string      `json:"session_id,omitempty" jsonschema:"Results database id when saved"`
}

// GraphInput defines the input for the netwave_graph tool.
type GraphInput struct {
	Model  ModelInput `json:"model,omitempty" jsonschema:"Model overrides"`
	Format string     `json:"format,omitempty" jsonschema:"Output format: dot or json (default json)"`
}

// GraphOutput defines the output for the netwave_graph tool.
type GraphOutput struct {
	Format    string `json:"format" jsonschema:"Rendered format"`
	Graph     any    `json:"graph" jsonschema:"DOT text or JSON graph"`
	NodeCount int    `json:"node_count" jsonschema:"Number of nodes"`
	EdgeCount int    `json:"edge_count" jsonschema:"Number of undirected edges"`
}

// ResultsInput defines the input for the netwave_results tool.
type ResultsInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"Load one benchmark session with its rows"`
}

// SessionItem is a list view of a stored benchmark session.
type SessionItem struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Workload     string    `json:"workload"`
	BaselineMean float64   `json:"baseline_mean"`
}

// RunItem is a list view of a stored simulation run.
type RunItem struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Name      string    `json:"name"`
	Nodes     int       `json:"nodes"`
	Steps     int       `json:"steps"`
}

// ResultsOutput defines the output for the netwave_results tool.
type ResultsOutput struct {
	Benchmarks  []SessionItem `json:"benchmarks,omitempty" jsonschema:"Stored benchmark sessions, newest first"`
	Simulations []RunItem     `json:"simulations,omitempty" jsonschema:"Stored simulation runs, newest first"`
	Scaling     []ResultRow   `json:"scaling,omitempty" jsonschema:"Scaling rows of the requested session"`
	Grid        []ResultRow   `json:"grid,omitempty" jsonschema:"Grid rows of the requested session"`
}
