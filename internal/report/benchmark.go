package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvandessel/netwave/internal/benchmark"
	"github.com/nvandessel/netwave/internal/constants"
)

// BenchmarkHeader is the column header of the full grid table.
const BenchmarkHeader = "#threads schedule chunk time_mean time_std speedup efficiency sigma_Sp sigma_Ep"

// ScalingHeader is the column header of the scaling table, which moves the
// configuration columns last.
const ScalingHeader = "#threads time_mean time_std speedup efficiency sigma_Sp sigma_Ep schedule chunk"

// num formats v in the shortest form that round-trips, like %g without a
// fixed precision.
func num(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteBenchmarkTable writes rows under BenchmarkHeader, one
// space-separated line per row in the order given.
func WriteBenchmarkTable(w io.Writer, rows []benchmark.RunResult) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(BenchmarkHeader)
	bw.WriteByte('\n')
	for _, r := range rows {
		fmt.Fprintf(bw, "%d %d %d %s\n", r.Workers, int(r.Schedule), r.Chunk, measures(r))
	}
	return bw.Flush()
}

// WriteScalingTable writes rows under ScalingHeader.
func WriteScalingTable(w io.Writer, rows []benchmark.RunResult) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(ScalingHeader)
	bw.WriteByte('\n')
	for _, r := range rows {
		fmt.Fprintf(bw, "%d %s %d %d\n", r.Workers, measures(r), int(r.Schedule), r.Chunk)
	}
	return bw.Flush()
}

func measures(r benchmark.RunResult) string {
	return strings.Join([]string{
		num(r.Time.Mean), num(r.Time.Std),
		num(r.Speedup), num(r.Efficiency),
		num(r.SpeedupErr), num(r.EfficiencyErr),
	}, " ")
}

// WriteBenchmarkFiles writes "benchmark results.dat" (the full grid) and
// "scaling analysis.dat" (the best row per worker count) into dir.
func WriteBenchmarkFiles(dir string, grid, scaling []benchmark.RunResult) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := writeTableFile(filepath.Join(dir, constants.BenchmarkResultsFile), grid, WriteBenchmarkTable); err != nil {
		return err
	}
	return writeTableFile(filepath.Join(dir, constants.ScalingAnalysisFile), scaling, WriteScalingTable)
}

func writeTableFile(path string, rows []benchmark.RunResult, write func(io.Writer, []benchmark.RunResult) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	if err := write(f, rows); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}
