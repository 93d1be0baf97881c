// Package report writes simulation traces and benchmark tables as the
// whitespace- or comma-separated text files consumed by plotting scripts.
package report

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/nvandessel/netwave/internal/constants"
	"github.com/nvandessel/netwave/internal/simulation"
)

// sci formats v as %.6e.
func sci(v float64) string {
	return strconv.FormatFloat(v, 'e', 6, 64)
}

// ResultsWriter writes results.csv: one row per step with energy, average
// amplitude and every node's amplitude.
type ResultsWriter struct {
	w      *csv.Writer
	nodes  int
	header bool
	row    []string
}

// NewResultsWriter returns a ResultsWriter for a network of the given size.
func NewResultsWriter(w io.Writer, nodes int) *ResultsWriter {
	return &ResultsWriter{w: csv.NewWriter(w), nodes: nodes}
}

// Record implements simulation.Sink. The header is written before the
// first row.
func (r *ResultsWriter) Record(s simulation.Snapshot) error {
	if len(s.Amplitudes) != r.nodes {
		return fmt.Errorf("results row for step %d: %d amplitudes, want %d", s.Step, len(s.Amplitudes), r.nodes)
	}
	if !r.header {
		head := make([]string, 0, r.nodes+3)
		head = append(head, "Time_Step", "energy", "avg_amp")
		for i := range r.nodes {
			head = append(head, "Node_"+strconv.Itoa(i))
		}
		if err := r.w.Write(head); err != nil {
			return err
		}
		r.header = true
	}

	r.row = append(r.row[:0], strconv.Itoa(s.Step), sci(s.Energy), sci(s.Average))
	for _, a := range s.Amplitudes {
		r.row = append(r.row, sci(a))
	}
	return r.w.Write(r.row)
}

// Flush writes buffered rows to the underlying writer.
func (r *ResultsWriter) Flush() error {
	r.w.Flush()
	return r.w.Error()
}

// EvolutionWriter writes "wave evolution.dat": step followed by every
// node's amplitude, space separated, under a "#"-prefixed header.
type EvolutionWriter struct {
	w      *bufio.Writer
	nodes  int
	header bool
}

// NewEvolutionWriter returns an EvolutionWriter for a network of the given size.
func NewEvolutionWriter(w io.Writer, nodes int) *EvolutionWriter {
	return &EvolutionWriter{w: bufio.NewWriter(w), nodes: nodes}
}

// Record implements simulation.Sink.
func (e *EvolutionWriter) Record(s simulation.Snapshot) error {
	if !e.header {
		e.w.WriteString("# Time_Step")
		for i := range e.nodes {
			fmt.Fprintf(e.w, " Node_%d", i)
		}
		e.w.WriteByte('\n')
		e.header = true
	}
	e.w.WriteString(strconv.Itoa(s.Step))
	for _, a := range s.Amplitudes {
		e.w.WriteByte(' ')
		e.w.WriteString(sci(a))
	}
	return e.w.WriteByte('\n')
}

// Flush writes buffered lines to the underlying writer.
func (e *EvolutionWriter) Flush() error { return e.w.Flush() }

// EnergyWriter writes "energy conservation.dat": step and total energy.
type EnergyWriter struct {
	w      *bufio.Writer
	header bool
}

// NewEnergyWriter returns an EnergyWriter.
func NewEnergyWriter(w io.Writer) *EnergyWriter {
	return &EnergyWriter{w: bufio.NewWriter(w)}
}

// Record implements simulation.Sink.
func (e *EnergyWriter) Record(s simulation.Snapshot) error {
	if !e.header {
		e.w.WriteString("# Time_Step energy\n")
		e.header = true
	}
	_, err := fmt.Fprintf(e.w, "%d %s\n", s.Step, sci(s.Energy))
	return err
}

// Flush writes buffered lines to the underlying writer.
func (e *EnergyWriter) Flush() error { return e.w.Flush() }

// SimulationFiles writes all three simulation outputs into one directory.
type SimulationFiles struct {
	files   []*os.File
	results *ResultsWriter
	evol    *EvolutionWriter
	energy  *EnergyWriter
	sink    simulation.MultiSink
}

// CreateSimulationFiles creates dir if needed and opens results.csv,
// "wave evolution.dat" and "energy conservation.dat" inside it, truncating
// existing files.
func CreateSimulationFiles(dir string, nodes int) (*SimulationFiles, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	names := []string{constants.ResultsFile, constants.WaveEvolutionFile, constants.EnergyConservationFile}
	sf := &SimulationFiles{}
	for _, name := range names {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			sf.closeFiles()
			return nil, fmt.Errorf("creating %s: %w", name, err)
		}
		sf.files = append(sf.files, f)
	}

	sf.results = NewResultsWriter(sf.files[0], nodes)
	sf.evol = NewEvolutionWriter(sf.files[1], nodes)
	sf.energy = NewEnergyWriter(sf.files[2])
	sf.sink = simulation.MultiSink{sf.results, sf.evol, sf.energy}
	return sf, nil
}

// Record implements simulation.Sink.
func (sf *SimulationFiles) Record(s simulation.Snapshot) error {
	return sf.sink.Record(s)
}

// Close flushes every writer and closes the files.
func (sf *SimulationFiles) Close() error {
	err := errors.Join(sf.results.Flush(), sf.evol.Flush(), sf.energy.Flush())
	return errors.Join(err, sf.closeFiles())
}

func (sf *SimulationFiles) closeFiles() error {
	var errs []error
	for _, f := range sf.files {
		errs = append(errs, f.Close())
	}
	sf.files = nil
	return errors.Join(errs...)
}
