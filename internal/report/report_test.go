package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/netwave/internal/benchmark"
	"github.com/nvandessel/netwave/internal/constants"
	"github.com/nvandessel/netwave/internal/partition"
	"github.com/nvandessel/netwave/internal/simulation"
)

func snapshots() []simulation.Snapshot {
	return []simulation.Snapshot{
		{Step: 0, Energy: 1, Average: 0.5, Amplitudes: []float64{1, 0}},
		{Step: 1, Energy: 0.5, Average: 0.25, Amplitudes: []float64{0.5, -0.25}},
	}
}

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func TestResultsWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewResultsWriter(&buf, 2)
	for _, s := range snapshots() {
		if err := w.Record(s); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"Time_Step,energy,avg_amp,Node_0,Node_1",
		"0,1.000000e+00,5.000000e-01,1.000000e+00,0.000000e+00",
		"1,5.000000e-01,2.500000e-01,5.000000e-01,-2.500000e-01",
	}
	got := lines(buf.String())
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("results.csv =\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}

	if err := w.Record(simulation.Snapshot{Amplitudes: []float64{1}}); err == nil {
		t.Error("expected error for wrong amplitude count")
	}
}

func TestEvolutionWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewEvolutionWriter(&buf, 2)
	for _, s := range snapshots() {
		if err := w.Record(s); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	want := "# Time_Step Node_0 Node_1\n" +
		"0 1.000000e+00 0.000000e+00\n" +
		"1 5.000000e-01 -2.500000e-01\n"
	if buf.String() != want {
		t.Errorf("wave evolution =\n%q\nwant\n%q", buf.String(), want)
	}
}

func TestEnergyWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewEnergyWriter(&buf)
	for _, s := range snapshots() {
		if err := w.Record(s); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	want := "# Time_Step energy\n0 1.000000e+00\n1 5.000000e-01\n"
	if buf.String() != want {
		t.Errorf("energy conservation =\n%q\nwant\n%q", buf.String(), want)
	}
}

func TestCreateSimulationFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sf, err := CreateSimulationFiles(dir, 100)
	if err != nil {
		t.Fatalf("CreateSimulationFiles: %v", err)
	}

	sc := simulation.DefaultScenario()
	sc.Steps = 3
	if _, err := simulation.NewRunner().Run(t.Context(), sc, sf); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := sf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	csvHeader := []string{"Time_Step", "energy", "avg_amp"}
	datHeader := []string{"# Time_Step"}
	for i := range 100 {
		csvHeader = append(csvHeader, fmt.Sprintf("Node_%d", i))
		datHeader = append(datHeader, fmt.Sprintf("Node_%d", i))
	}

	tests := []struct {
		name   string
		header string
		lines  int
	}{
		{constants.ResultsFile, strings.Join(csvHeader, ","), 5},
		{constants.WaveEvolutionFile, strings.Join(datHeader, " "), 5},
		{constants.EnergyConservationFile, "# Time_Step energy", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := os.ReadFile(filepath.Join(dir, tt.name))
			if err != nil {
				t.Fatalf("reading %s: %v", tt.name, err)
			}
			got := lines(string(data))
			if len(got) != tt.lines {
				t.Errorf("%s has %d lines, want %d", tt.name, len(got), tt.lines)
			}
			if got[0] != tt.header {
				t.Errorf("%s header = %.60q..., want %.60q...", tt.name, got[0], tt.header)
			}
		})
	}

	data, _ := os.ReadFile(filepath.Join(dir, constants.EnergyConservationFile))
	if !strings.Contains(string(data), "\n0 1.000000e+00\n") {
		t.Errorf("energy file missing initial condition: %q", data)
	}
}

func TestWriteBenchmarkTable(t *testing.T) {
	rows := []benchmark.RunResult{
		benchmark.Derive(2, partition.ScheduleDynamic, 64, benchmark.RunStat{Mean: 0.5, Std: 0.05}, benchmark.RunStat{Mean: 1, Std: 0.1}),
		benchmark.Derive(4, partition.ScheduleGuided, 0, benchmark.RunStat{Mean: 2}, benchmark.RunStat{Mean: 1}),
	}
	var buf bytes.Buffer
	if err := WriteBenchmarkTable(&buf, rows); err != nil {
		t.Fatal(err)
	}
	got := lines(buf.String())
	if len(got) != 3 {
		t.Fatalf("got %d lines: %q", len(got), buf.String())
	}
	if got[0] != BenchmarkHeader {
		t.Errorf("header = %q", got[0])
	}
	if !strings.HasPrefix(got[1], "2 1 64 0.5 0.05 2 1 ") {
		t.Errorf("row 1 = %q", got[1])
	}
	if got[2] != "4 2 0 2 0 0.5 0.125 0 0" {
		t.Errorf("row 2 = %q", got[2])
	}
	if n := len(strings.Fields(got[1])); n != 9 {
		t.Errorf("row 1 has %d columns, want 9", n)
	}
}

func TestWriteScalingTable(t *testing.T) {
	rows := []benchmark.RunResult{
		benchmark.Derive(4, partition.ScheduleGuided, 64, benchmark.RunStat{Mean: 2}, benchmark.RunStat{Mean: 1}),
	}
	var buf bytes.Buffer
	if err := WriteScalingTable(&buf, rows); err != nil {
		t.Fatal(err)
	}
	got := lines(buf.String())
	if len(got) != 2 || got[0] != ScalingHeader {
		t.Fatalf("got %q", buf.String())
	}
	if got[1] != "4 2 0 0.5 0.125 0 0 2 64" {
		t.Errorf("row = %q", got[1])
	}
}

func TestWriteBenchmarkFiles(t *testing.T) {
	dir := t.TempDir()
	grid := []benchmark.RunResult{
		{Workers: 1, Time: benchmark.RunStat{Mean: 1}},
		{Workers: 2, Time: benchmark.RunStat{Mean: 0.6}},
		{Workers: 2, Schedule: 1, Time: benchmark.RunStat{Mean: 0.55}},
	}
	scaling := benchmark.ScalingReport(grid, benchmark.RunStat{Mean: 1})
	if err := WriteBenchmarkFiles(dir, grid, scaling); err != nil {
		t.Fatalf("WriteBenchmarkFiles: %v", err)
	}

	for name, n := range map[string]int{constants.BenchmarkResultsFile: 4, constants.ScalingAnalysisFile: 3} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("reading %s: %v", name, err)
		}
		if got := len(lines(string(data))); got != n {
			t.Errorf("%s has %d lines, want %d", name, got, n)
		}
		header := BenchmarkHeader
		if name == constants.ScalingAnalysisFile {
			header = ScalingHeader
		}
		if !strings.HasPrefix(string(data), header+"\n") {
			t.Errorf("%s does not start with %q", name, header)
		}
	}
}
