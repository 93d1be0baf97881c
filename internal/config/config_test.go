package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/nvandessel/netwave/internal/constants"
	"github.com/nvandessel/netwave/internal/metrics"
	"github.com/nvandessel/netwave/internal/network"
	"github.com/nvandessel/netwave/internal/partition"
	"github.com/nvandessel/netwave/internal/simulation"
)

func TestDefault(t *testing.T) {
	config := Default()

	if err := config.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	// Simulation defaults
	sim := config.Simulation
	if sim.Nodes != 100 || sim.Topology.Kind != "grid" || sim.Topology.Width != 10 {
		t.Errorf("unexpected simulation model %+v", sim.ModelConfig)
	}
	if sim.Diffusion != 6 || sim.Damping != 0.01 || sim.TimeStep != 0.01 || sim.Steps != 1000 {
		t.Errorf("unexpected coefficients %+v", sim.ModelConfig)
	}
	if sim.Source.Mode != "fixed" || sim.Source.Value != 0.05 {
		t.Errorf("unexpected source %+v", sim.Source)
	}
	if sim.Schedule != "static" || sim.Workers != 1 || sim.Reduction != "reduction" {
		t.Errorf("unexpected execution settings %+v", sim)
	}

	// Benchmark defaults
	b := config.Benchmark
	if !slices.Equal(b.Schedules, []int{0, 1, 2}) || !slices.Equal(b.Chunks, []int{0, 64, 256}) || !slices.Equal(b.Workers, []int{1, 2, 4, 8}) {
		t.Errorf("unexpected grid %v %v %v", b.Schedules, b.Chunks, b.Workers)
	}
	if b.Repetitions != 10 || b.BaselineRepetitions != 10 {
		t.Errorf("unexpected repetitions %d/%d", b.Repetitions, b.BaselineRepetitions)
	}
	if b.Nodes != 10000 {
		t.Errorf("expected 10000 benchmark nodes, got %d", b.Nodes)
	}

	// Logging and output defaults
	if config.Logging.Level != "info" {
		t.Errorf("expected Logging.Level 'info', got '%s'", config.Logging.Level)
	}
	if config.Output.DatabasePath() != filepath.Join("output", "netwave.db") {
		t.Errorf("unexpected database path %q", config.Output.DatabasePath())
	}
	if config.Backup.Dir != "" || config.Backup.Retention.MaxCount != constants.DefaultBackupRetention {
		t.Errorf("unexpected backup defaults %+v", config.Backup)
	}
}

func TestDefault_ScenarioMatchesCanonical(t *testing.T) {
	sc, err := Default().Simulation.Scenario()
	if err != nil {
		t.Fatalf("Scenario: %v", err)
	}
	want := simulation.DefaultScenario()
	want.Name = "simulation"
	if sc.Nodes != want.Nodes || sc.Topology != want.Topology || sc.Diffusion != want.Diffusion ||
		sc.Steps != want.Steps || sc.PerturbNode != want.PerturbNode || sc.Variant != want.Variant ||
		sc.Policy != want.Policy || sc.Reduction != want.Reduction {
		t.Errorf("Scenario() = %+v, want %+v", sc, want)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	t.Setenv("NETWAVE_TEST_OUT", "/tmp/netwave-out")

	configContent := `
simulation:
  nodes: 64
  steps: 200
  topology:
    kind: small-world
    k: 4
    beta: 0.2
    seed: 7
  source:
    mode: sine
    amplitude: 0.1
    omega: 6.283185307179586
  variant: nodes
  schedule: guided
  chunk: 16
  workers: 4
  reduction: atomic

benchmark:
  schedules: [1]
  chunks: [32]
  workers: [2, 4]
  repetitions: 3

output:
  dir: "${NETWAVE_TEST_OUT}"

logging:
  level: debug

backup:
  dir: "${NETWAVE_TEST_OUT}/archives"
  retention:
    max_count: 3
    max_age: 30d
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if err := config.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	sc, err := config.Simulation.Scenario()
	if err != nil {
		t.Fatalf("Scenario: %v", err)
	}
	if sc.Nodes != 64 || sc.Steps != 200 {
		t.Errorf("nodes/steps = %d/%d", sc.Nodes, sc.Steps)
	}
	if sc.Topology.Kind != network.TopologySmallWorld || sc.Topology.K != 4 || sc.Seed != 7 {
		t.Errorf("topology = %+v seed %d", sc.Topology, sc.Seed)
	}
	if sc.Source.Mode != network.SourceSine || sc.Source.Amplitude != 0.1 {
		t.Errorf("source = %+v", sc.Source)
	}
	if sc.Policy != partition.Guided(16) || sc.Workers != 4 || sc.Reduction != metrics.SharedAtomic {
		t.Errorf("execution = %v w=%d %v", sc.Policy, sc.Workers, sc.Reduction)
	}
	// Unset fields keep their defaults.
	if sc.Diffusion != constants.DefaultDiffusion {
		t.Errorf("diffusion = %v, want default", sc.Diffusion)
	}

	grid := config.Benchmark.Grid()
	if !slices.Equal(grid.Schedules, []partition.Schedule{partition.ScheduleDynamic}) || grid.Repetitions != 3 || grid.Points() != 2 {
		t.Errorf("grid = %+v", grid)
	}
	if config.Output.Dir != "/tmp/netwave-out" {
		t.Errorf("output dir = %q, want expanded", config.Output.Dir)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("log level = %q", config.Logging.Level)
	}
	if config.Backup.Dir != "/tmp/netwave-out/archives" || config.Backup.Retention.MaxCount != 3 || config.Backup.Retention.MaxAge != "30d" {
		t.Errorf("backup = %+v", config.Backup)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("simulation: [not, a, map"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*NetwaveConfig)
		wantErr string
	}{
		{"valid default", func(*NetwaveConfig) {}, ""},
		{"zero nodes", func(c *NetwaveConfig) { c.Simulation.Nodes = 0 }, "nodes must be positive"},
		{"negative damping", func(c *NetwaveConfig) { c.Simulation.Damping = -0.1 }, "coefficients"},
		{"unknown topology", func(c *NetwaveConfig) { c.Simulation.Topology.Kind = "torus" }, "unknown topology"},
		{"unknown source", func(c *NetwaveConfig) { c.Simulation.Source.Mode = "pulse" }, "unknown source"},
		{"unknown reduction", func(c *NetwaveConfig) { c.Simulation.Reduction = "critical" }, "reduction strategy"},
		{"bad schedule", func(c *NetwaveConfig) { c.Simulation.Schedule = "3" }, "unknown schedule"},
		{"negative chunk", func(c *NetwaveConfig) { c.Simulation.Chunk = -1 }, "non-negative"},
		{"grid mismatch", func(c *NetwaveConfig) { c.Simulation.Topology.Height = 11 }, "does not hold"},
		{"bad variant", func(c *NetwaveConfig) { c.Benchmark.Variant = "diagonal" }, "step variant"},
		{"bad grid schedule", func(c *NetwaveConfig) { c.Benchmark.Schedules = []int{5} }, "unknown schedule"},
		{"zero repetitions", func(c *NetwaveConfig) { c.Benchmark.Repetitions, c.Benchmark.BaselineRepetitions = 0, 0 }, ""},
		{"negative repetitions", func(c *NetwaveConfig) { c.Benchmark.Repetitions = -1 }, "repetitions"},
		{"negative baseline", func(c *NetwaveConfig) { c.Benchmark.BaselineRepetitions = -1 }, "baseline_repetitions"},
		{"empty output", func(c *NetwaveConfig) { c.Output.Dir = "" }, "output dir"},
		{"bad log level", func(c *NetwaveConfig) { c.Logging.Level = "verbose" }, "invalid log level"},
		{"negative retention", func(c *NetwaveConfig) { c.Backup.Retention.MaxCount = -1 }, "max_count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_WrapsScenarioError(t *testing.T) {
	config := Default()
	config.Simulation.Workers = -1
	if err := config.Validate(); !errors.Is(err, simulation.ErrInvalidScenario) {
		t.Errorf("Validate() = %v, want ErrInvalidScenario", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("NETWAVE_LOG_LEVEL", "trace")
	t.Setenv("NETWAVE_STEPS", "42")
	t.Setenv("NETWAVE_WORKERS", "6")
	t.Setenv("NETWAVE_SCHEDULE", "dynamic")
	t.Setenv("NETWAVE_CHUNK", "8")
	t.Setenv("NETWAVE_OUTPUT_DIR", "/data/out")
	t.Setenv("NETWAVE_DB", "/data/results.db")

	config, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if config.Logging.Level != "trace" || config.Simulation.Steps != 42 || config.Simulation.Workers != 6 {
		t.Errorf("overrides not applied: %+v", config)
	}
	sc, err := config.Simulation.Scenario()
	if err != nil {
		t.Fatal(err)
	}
	if sc.Policy != partition.Dynamic(8) {
		t.Errorf("policy = %v, want dynamic(8)", sc.Policy)
	}
	if config.Output.Dir != "/data/out" || config.Output.DatabasePath() != "/data/results.db" {
		t.Errorf("output = %+v", config.Output)
	}
}

func TestLoad_HomeConfigFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".netwave")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("simulation:\n  steps: 7\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NETWAVE_STEPS", "")

	config, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if config.Simulation.Steps != 7 {
		t.Errorf("steps = %d, want 7 from home config", config.Simulation.Steps)
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	config := Default()
	config.Simulation.Workers = 3
	data, err := config.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), "workers: 3") {
		t.Errorf("marshalled config missing workers:\n%s", data)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if loaded.Simulation.Workers != 3 || loaded.Simulation.Nodes != config.Simulation.Nodes {
		t.Errorf("round trip lost settings: %+v", loaded.Simulation)
	}
}

func TestModelConfig_With(t *testing.T) {
	base := Default().Simulation.ModelConfig

	tests := []struct {
		name    string
		o       ModelOverrides
		check   func(t *testing.T, m ModelConfig)
		wantErr bool
	}{
		{
			name: "no overrides",
			o:    ModelOverrides{},
			check: func(t *testing.T, m ModelConfig) {
				if m != base {
					t.Errorf("empty overrides changed the model: %+v", m)
				}
			},
		},
		{
			name: "grid resize derives nodes",
			o:    ModelOverrides{Width: 20, Height: 5},
			check: func(t *testing.T, m ModelConfig) {
				if m.Nodes != 100 || m.Topology.Width != 20 || m.Topology.Height != 5 {
					t.Errorf("got %+v", m)
				}
			},
		},
		{
			name: "explicit nodes win",
			o:    ModelOverrides{Topology: "linear", Nodes: 64, Steps: 10, Seed: 9},
			check: func(t *testing.T, m ModelConfig) {
				if m.Nodes != 64 || m.Topology.Kind != "linear" || m.Steps != 10 || m.Topology.Seed != 9 {
					t.Errorf("got %+v", m)
				}
			},
		},
		{
			name: "source preset",
			o:    ModelOverrides{Source: "random"},
			check: func(t *testing.T, m ModelConfig) {
				if m.Source.Mode != "random" || m.Source.Min != constants.DefaultRandomSourceMin || m.Source.Seed != constants.DefaultRandomSourceSeed {
					t.Errorf("source = %+v", m.Source)
				}
			},
		},
		{name: "bad topology", o: ModelOverrides{Topology: "torus"}, wantErr: true},
		{name: "bad source", o: ModelOverrides{Source: "pulse"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := base.With(tt.o)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("With: %v", err)
			}
			tt.check(t, got)
		})
	}
}

func TestSourcePreset(t *testing.T) {
	sine, err := SourcePreset("sine")
	if err != nil {
		t.Fatal(err)
	}
	if sine.Amplitude != constants.DefaultSineAmplitude || sine.Omega != constants.DefaultSineOmega {
		t.Errorf("sine preset = %+v", sine)
	}
	zero, err := SourcePreset("zero")
	if err != nil || zero != (SourceConfig{Mode: "zero"}) {
		t.Errorf("zero preset = %+v, %v", zero, err)
	}
}
