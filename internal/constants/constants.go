// Package constants provides named constants used throughout the netwave codebase.
// This centralizes the canonical workload parameters and output file names.
package constants

// Canonical simulation run.
const (
	// DefaultGridWidth and DefaultGridHeight size the canonical 2-D grid.
	DefaultGridWidth  = 10
	DefaultGridHeight = 10

	// DefaultDiffusion is the diffusion coefficient D.
	DefaultDiffusion = 6.0

	// DefaultDamping is the damping coefficient gamma.
	DefaultDamping = 0.01

	// DefaultTimeStep is dt. The explicit update stays bounded while
	// dt*D*maxDegree is below 1.
	DefaultTimeStep = 0.01

	// DefaultSteps is the number of steps in a simulation run.
	DefaultSteps = 1000

	// DefaultFixedSource is the uniform source applied to every node.
	DefaultFixedSource = 0.05

	// DefaultPerturbation is the amplitude placed on node N/2 at step 0.
	DefaultPerturbation = 1.0
)

// Source presets.
const (
	// DefaultRandomSourceMin and DefaultRandomSourceMax bound the random source.
	DefaultRandomSourceMin = -0.05
	DefaultRandomSourceMax = 0.05

	// DefaultRandomSourceSeed keeps random-source runs reproducible.
	DefaultRandomSourceSeed = 1234

	// DefaultSineAmplitude is the sine source amplitude.
	DefaultSineAmplitude = 0.1

	// DefaultSineOmega gives the sine source one period per unit time.
	DefaultSineOmega = 2 * 3.141592653589793
)

// Random topology presets.
const (
	DefaultEdgeProbability = 0.05
	DefaultSmallWorldK     = 4
	DefaultSmallWorldBeta  = 0.1
)

// Benchmark workload and grid.
const (
	// BenchmarkGridWidth and BenchmarkGridHeight size the timed workload.
	BenchmarkGridWidth  = 100
	BenchmarkGridHeight = 100

	// BenchmarkSteps is the number of steps in one timed run.
	BenchmarkSteps = 100

	// DefaultRepetitions is the number of timed runs per grid point.
	DefaultRepetitions = 10

	// DefaultBaselineRepetitions is the number of single-worker runs that
	// establish T1.
	DefaultBaselineRepetitions = 10
)

// DefaultSchedules, DefaultChunks and DefaultWorkers span the benchmark grid.
var (
	DefaultSchedules = []int{0, 1, 2}
	DefaultChunks    = []int{0, 64, 256}
	DefaultWorkers   = []int{1, 2, 4, 8}
)

// Output file names.
const (
	ResultsFile            = "results.csv"
	WaveEvolutionFile      = "wave evolution.dat"
	EnergyConservationFile = "energy conservation.dat"
	BenchmarkResultsFile   = "benchmark results.dat"
	ScalingAnalysisFile    = "scaling analysis.dat"
	DOTFile                = "network.dot"
)

// Storage locations.
const (
	// ConfigDirName is the per-user directory under $HOME.
	ConfigDirName = ".netwave"

	// DefaultOutputDir receives report files.
	DefaultOutputDir = "output"

	// DatabaseFile is the SQLite results database inside the output dir.
	DatabaseFile = "netwave.db"

	// DefaultBackupRetention is the number of archives kept when no other
	// retention limit is configured.
	DefaultBackupRetention = 10
)
