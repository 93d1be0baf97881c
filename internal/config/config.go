// Package config provides unified configuration loading for netwave.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvandessel/netwave/internal/benchmark"
	"github.com/nvandessel/netwave/internal/constants"
	"github.com/nvandessel/netwave/internal/metrics"
	"github.com/nvandessel/netwave/internal/network"
	"github.com/nvandessel/netwave/internal/partition"
	"github.com/nvandessel/netwave/internal/simulation"
	"gopkg.in/yaml.v3"
)

// NetwaveConfig contains all netwave configuration settings.
type NetwaveConfig struct {
	// Simulation configures the simulate command.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Benchmark configures the timed workload and the benchmark grid.
	Benchmark BenchmarkConfig `json:"benchmark" yaml:"benchmark"`

	// Output configures where reports and the results database go.
	Output OutputConfig `json:"output" yaml:"output"`

	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Backup configures results database archives.
	Backup BackupConfig `json:"backup" yaml:"backup"`
}

// BackupConfig configures where archives go and how many are kept.
type BackupConfig struct {
	// Dir is the default archive directory. Empty means ~/.netwave/backups.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`

	Retention RetentionConfig `json:"retention" yaml:"retention"`
}

// RetentionConfig bounds the archives kept in a backup directory. An
// archive survives if any configured limit keeps it.
type RetentionConfig struct {
	MaxCount int `json:"max_count" yaml:"max_count"`

	// MaxAge accepts Go durations plus "d" and "w" suffixes, e.g. "30d".
	MaxAge string `json:"max_age,omitempty" yaml:"max_age,omitempty"`

	// MaxTotalSize accepts B, KB, MB and GB suffixes, e.g. "100MB".
	MaxTotalSize string `json:"max_total_size,omitempty" yaml:"max_total_size,omitempty"`
}

// LoggingConfig configures netwave's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables event logging to <output dir>/events.jsonl.
	// "trace" additionally logs every committed step.
	Level string `json:"level" yaml:"level"`
}

// OutputConfig locates report files and the results database.
type OutputConfig struct {
	// Dir receives report files. Supports ${VAR} expansion.
	Dir string `json:"dir" yaml:"dir"`

	// Database is the SQLite results database path. Empty means
	// <Dir>/netwave.db.
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
}

// DatabasePath returns the effective database path.
func (o OutputConfig) DatabasePath() string {
	if o.Database != "" {
		return o.Database
	}
	return filepath.Join(o.Dir, constants.DatabaseFile)
}

// TopologyConfig selects and parameterizes a topology builder.
type TopologyConfig struct {
	// Kind is one of "linear", "grid", "random", "small-world".
	Kind string `json:"kind" yaml:"kind"`

	Width  int `json:"width,omitempty" yaml:"width,omitempty"`
	Height int `json:"height,omitempty" yaml:"height,omitempty"`

	// Probability is the edge probability of a random topology.
	Probability float64 `json:"probability,omitempty" yaml:"probability,omitempty"`

	// K and Beta parameterize a small-world topology.
	K    int     `json:"k,omitempty" yaml:"k,omitempty"`
	Beta float64 `json:"beta,omitempty" yaml:"beta,omitempty"`

	// Seed makes random topologies reproducible. 0 uses the clock.
	Seed uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// SourceConfig selects and parameterizes the external source.
type SourceConfig struct {
	// Mode is one of "zero", "fixed", "random", "sine".
	Mode string `json:"mode" yaml:"mode"`

	Value     float64 `json:"value,omitempty" yaml:"value,omitempty"`
	Min       float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max       float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Seed      uint64  `json:"seed,omitempty" yaml:"seed,omitempty"`
	Amplitude float64 `json:"amplitude,omitempty" yaml:"amplitude,omitempty"`
	Omega     float64 `json:"omega,omitempty" yaml:"omega,omitempty"`
}

// ModelConfig holds the parameters shared by simulation and benchmark runs.
type ModelConfig struct {
	Nodes     int            `json:"nodes" yaml:"nodes"`
	Diffusion float64        `json:"diffusion" yaml:"diffusion"`
	Damping   float64        `json:"damping" yaml:"damping"`
	TimeStep  float64        `json:"time_step" yaml:"time_step"`
	Steps     int            `json:"steps" yaml:"steps"`
	Topology  TopologyConfig `json:"topology" yaml:"topology"`
	Source    SourceConfig   `json:"source" yaml:"source"`

	// PerturbNode receives PerturbAmplitude at step 0; -1 selects node N/2.
	PerturbNode      int     `json:"perturb_node" yaml:"perturb_node"`
	PerturbAmplitude float64 `json:"perturb_amplitude" yaml:"perturb_amplitude"`

	// Variant is the loop shape: "nodes", "rows" or "collapsed".
	Variant string `json:"variant" yaml:"variant"`
}

// SimulationConfig configures a simulation run.
type SimulationConfig struct {
	ModelConfig `yaml:",inline"`

	// Schedule is "static", "dynamic", "guided" or the selector 0, 1, 2.
	Schedule string `json:"schedule" yaml:"schedule"`
	Chunk    int    `json:"chunk" yaml:"chunk"`
	Workers  int    `json:"workers" yaml:"workers"`

	// Reduction is "reduction", "private" or "atomic".
	Reduction string `json:"reduction" yaml:"reduction"`
}

// BenchmarkConfig configures the timed workload and the grid it is run over.
type BenchmarkConfig struct {
	ModelConfig `yaml:",inline"`

	Schedules           []int `json:"schedules" yaml:"schedules"`
	Chunks              []int `json:"chunks" yaml:"chunks"`
	Workers             []int `json:"workers" yaml:"workers"`
	Repetitions         int   `json:"repetitions" yaml:"repetitions"`
	BaselineRepetitions int   `json:"baseline_repetitions" yaml:"baseline_repetitions"`
}

// Default returns a NetwaveConfig with the canonical simulation, the
// default benchmark grid and info-level logging.
func Default() *NetwaveConfig {
	sim := simulation.DefaultScenario()
	work := benchmark.DefaultWorkload()
	grid := benchmark.DefaultGrid()

	schedules := make([]int, len(grid.Schedules))
	for i, s := range grid.Schedules {
		schedules[i] = int(s)
	}

	return &NetwaveConfig{
		Simulation: SimulationConfig{
			ModelConfig: modelFromScenario(sim),
			Schedule:    partition.ScheduleStatic.String(),
			Chunk:       0,
			Workers:     1,
			Reduction:   metrics.PlainReduction.String(),
		},
		Benchmark: BenchmarkConfig{
			ModelConfig:         modelFromScenario(work),
			Schedules:           schedules,
			Chunks:              grid.Chunks,
			Workers:             grid.Workers,
			Repetitions:         grid.Repetitions,
			BaselineRepetitions: constants.DefaultBaselineRepetitions,
		},
		Output: OutputConfig{
			Dir: constants.DefaultOutputDir,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Backup: BackupConfig{
			Retention: RetentionConfig{MaxCount: constants.DefaultBackupRetention},
		},
	}
}

func modelFromScenario(s simulation.Scenario) ModelConfig {
	return ModelConfig{
		Nodes:     s.Nodes,
		Diffusion: s.Diffusion,
		Damping:   s.Damping,
		TimeStep:  s.TimeStep,
		Steps:     s.Steps,
		Topology: TopologyConfig{
			Kind:   string(s.Topology.Kind),
			Width:  s.Topology.Width,
			Height: s.Topology.Height,
		},
		Source: SourceConfig{
			Mode:  s.Source.Mode.String(),
			Value: s.Source.Value,
		},
		PerturbNode:      s.PerturbNode,
		PerturbAmplitude: s.PerturbAmplitude,
		Variant:          s.Variant.String(),
	}
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.netwave/config.yaml -> environment variables
func Load() (*NetwaveConfig, error) {
	config := Default()

	homeDir, err := os.UserHomeDir()
	if err == nil {
		configPath := filepath.Join(homeDir, constants.ConfigDirName, "config.yaml")
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Fields the
// file omits keep their defaults.
func LoadFromFile(path string) (*NetwaveConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Output.Dir = expandEnvVars(config.Output.Dir)
	config.Output.Database = expandEnvVars(config.Output.Database)
	config.Backup.Dir = expandEnvVars(config.Backup.Dir)

	return config, nil
}

// Marshal renders the configuration as YAML.
func (c *NetwaveConfig) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks that the configuration is valid.
func (c *NetwaveConfig) Validate() error {
	if _, err := c.Simulation.Scenario(); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	if _, err := c.Benchmark.Workload(); err != nil {
		return fmt.Errorf("benchmark: %w", err)
	}
	if err := c.Benchmark.Grid().Validate(); err != nil {
		return fmt.Errorf("benchmark: %w", err)
	}
	if c.Benchmark.BaselineRepetitions < 0 {
		return fmt.Errorf("benchmark: baseline_repetitions must not be negative, got %d", c.Benchmark.BaselineRepetitions)
	}

	if c.Output.Dir == "" {
		return fmt.Errorf("output dir must not be empty")
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	if c.Backup.Retention.MaxCount < 0 {
		return fmt.Errorf("backup: max_count must not be negative, got %d", c.Backup.Retention.MaxCount)
	}

	return nil
}

// Scenario converts the simulation settings into a validated scenario.
func (c SimulationConfig) Scenario() (simulation.Scenario, error) {
	sc, err := c.ModelConfig.scenario("simulation")
	if err != nil {
		return simulation.Scenario{}, err
	}

	schedule, err := partition.ParseSchedule(c.Schedule)
	if err != nil {
		return simulation.Scenario{}, err
	}
	sc.Policy, err = partition.PolicyFor(schedule, c.Chunk)
	if err != nil {
		return simulation.Scenario{}, err
	}
	sc.Workers = c.Workers
	sc.Reduction, err = metrics.ParseReductionStrategy(c.Reduction)
	if err != nil {
		return simulation.Scenario{}, err
	}

	if err := sc.Validate(); err != nil {
		return simulation.Scenario{}, err
	}
	return sc, nil
}

// Workload converts the benchmark settings into a validated workload.
func (c BenchmarkConfig) Workload() (simulation.Scenario, error) {
	sc, err := c.ModelConfig.scenario("benchmark")
	if err != nil {
		return simulation.Scenario{}, err
	}
	if err := sc.Validate(); err != nil {
		return simulation.Scenario{}, err
	}
	return sc, nil
}

// Grid returns the benchmark grid described by the configuration.
func (c BenchmarkConfig) Grid() benchmark.Grid {
	g := benchmark.Grid{
		Chunks:      c.Chunks,
		Workers:     c.Workers,
		Repetitions: c.Repetitions,
	}
	for _, s := range c.Schedules {
		g.Schedules = append(g.Schedules, partition.Schedule(s))
	}
	return g
}

func (m ModelConfig) scenario(name string) (simulation.Scenario, error) {
	kind, err := network.ParseTopology(m.Topology.Kind)
	if err != nil {
		return simulation.Scenario{}, err
	}
	mode, err := network.ParseSourceMode(m.Source.Mode)
	if err != nil {
		return simulation.Scenario{}, err
	}
	variant := constants.StepVariant(strings.ToLower(m.Variant))
	if variant == "" {
		variant = constants.VariantNodes
	}

	return simulation.Scenario{
		Name:      name,
		Nodes:     m.Nodes,
		Diffusion: m.Diffusion,
		Damping:   m.Damping,
		TimeStep:  m.TimeStep,
		Steps:     m.Steps,
		Topology: network.TopologySpec{
			Kind:        kind,
			Width:       m.Topology.Width,
			Height:      m.Topology.Height,
			Probability: m.Topology.Probability,
			K:           m.Topology.K,
			Beta:        m.Topology.Beta,
		},
		Source: network.SourceSpec{
			Mode:      mode,
			Value:     m.Source.Value,
			Min:       m.Source.Min,
			Max:       m.Source.Max,
			Seed:      m.Source.Seed,
			Amplitude: m.Source.Amplitude,
			Omega:     m.Source.Omega,
		},
		PerturbNode:      m.PerturbNode,
		PerturbAmplitude: m.PerturbAmplitude,
		Seed:             m.Topology.Seed,
		Policy:           partition.Static(),
		Workers:          1,
		Variant:          variant,
	}, nil
}

// ModelOverrides carries optional replacements for a ModelConfig. Zero
// fields keep the configured value.
type ModelOverrides struct {
	Topology string
	Nodes    int
	Width    int
	Height   int
	Steps    int
	Source   string
	Seed     uint64
}

// With returns m with o applied. A grid whose dimensions change without an
// explicit node count is resized to width*height nodes.
func (m ModelConfig) With(o ModelOverrides) (ModelConfig, error) {
	if o.Topology != "" {
		m.Topology.Kind = o.Topology
	}
	if o.Width > 0 {
		m.Topology.Width = o.Width
	}
	if o.Height > 0 {
		m.Topology.Height = o.Height
	}
	kind, err := network.ParseTopology(m.Topology.Kind)
	if err != nil {
		return m, err
	}
	switch {
	case o.Nodes > 0:
		m.Nodes = o.Nodes
	case kind == network.TopologyGrid && (o.Width > 0 || o.Height > 0):
		m.Nodes = m.Topology.Width * m.Topology.Height
	}
	if o.Steps > 0 {
		m.Steps = o.Steps
	}
	if o.Source != "" {
		preset, err := SourcePreset(o.Source)
		if err != nil {
			return m, err
		}
		m.Source = preset
	}
	if o.Seed != 0 {
		m.Topology.Seed = o.Seed
	}
	return m, nil
}

// SourcePreset returns the canned parameters for a source mode, so that
// switching modes from a flag or tool call yields a sensible source.
func SourcePreset(mode string) (SourceConfig, error) {
	m, err := network.ParseSourceMode(mode)
	if err != nil {
		return SourceConfig{}, err
	}
	sc := SourceConfig{Mode: m.String()}
	switch m {
	case network.SourceFixed:
		sc.Value = constants.DefaultFixedSource
	case network.SourceRandom:
		sc.Min = constants.DefaultRandomSourceMin
		sc.Max = constants.DefaultRandomSourceMax
		sc.Seed = constants.DefaultRandomSourceSeed
	case network.SourceSine:
		sc.Amplitude = constants.DefaultSineAmplitude
		sc.Omega = constants.DefaultSineOmega
	}
	return sc, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *NetwaveConfig) {
	if v := os.Getenv("NETWAVE_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("NETWAVE_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Steps = n
		}
	}

	if v := os.Getenv("NETWAVE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Workers = n
		}
	}

	if v := os.Getenv("NETWAVE_SCHEDULE"); v != "" {
		config.Simulation.Schedule = v
	}

	if v := os.Getenv("NETWAVE_CHUNK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Chunk = n
		}
	}

	if v := os.Getenv("NETWAVE_OUTPUT_DIR"); v != "" {
		config.Output.Dir = v
	}

	if v := os.Getenv("NETWAVE_DB"); v != "" {
		config.Output.Database = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
