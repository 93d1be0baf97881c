// Package backup exports the results database to a portable archive and
// restores it.
//
// An archive is a plain JSON header line followed by a gzip-compressed JSON
// payload. The header carries a SHA-256 checksum of the compressed bytes so
// integrity can be checked without decompressing.
package backup

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/nvandessel/netwave/internal/store"
)

// FormatVersion is the archive format written by Export.
const FormatVersion = 1

// MaxPayloadSize bounds the decompressed payload (200MB).
const MaxPayloadSize = 200 * 1024 * 1024

// FileExt is the archive file extension.
const FileExt = ".backup"

// Archive is the decompressed payload.
type Archive struct {
	Version     int                       `json:"version"`
	CreatedAt   time.Time                 `json:"created_at"`
	Benchmarks  []*store.BenchmarkSession `json:"benchmarks"`
	Simulations []SimulationEntry         `json:"simulations"`
}

// SimulationEntry is one stored run with its energy trace.
type SimulationEntry struct {
	Run   store.SimulationRecord `json:"run"`
	Trace []store.TracePoint     `json:"trace"`
}

// Header is the plain-text first line of an archive.
type Header struct {
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	Checksum    string    `json:"checksum"`
	Benchmarks  int       `json:"benchmarks"`
	Simulations int       `json:"simulations"`
}

// Collect reads every benchmark session and simulation run from st.
func Collect(ctx context.Context, st *store.SQLiteResultStore) (*Archive, error) {
	a := &Archive{Version: FormatVersion, CreatedAt: time.Now().UTC()}

	sessions, err := st.ListBenchmarks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list benchmarks: %w", err)
	}
	for _, s := range sessions {
		full, err := st.LoadBenchmark(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		a.Benchmarks = append(a.Benchmarks, full)
	}

	runs, err := st.ListSimulations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list simulations: %w", err)
	}
	for _, run := range runs {
		trace, err := st.LoadEnergyTrace(ctx, run.ID)
		if err != nil {
			return nil, err
		}
		a.Simulations = append(a.Simulations, SimulationEntry{Run: run, Trace: trace})
	}
	return a, nil
}

// Export writes the whole contents of st to an archive at path.
func Export(ctx context.Context, st *store.SQLiteResultStore, path string) (*Archive, error) {
	a, err := Collect(ctx, st)
	if err != nil {
		return nil, err
	}
	if err := Write(path, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Write stores a as an archive file at path, creating its directory.
func Write(path string, a *Archive) (err error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(payload); err != nil {
		return fmt.Errorf("compressing payload: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("closing gzip writer: %w", err)
	}

	header, err := json.Marshal(Header{
		Version:     a.Version,
		CreatedAt:   a.CreatedAt,
		Checksum:    checksum(compressed.Bytes()),
		Benchmarks:  len(a.Benchmarks),
		Simulations: len(a.Simulations),
	})
	if err != nil {
		return fmt.Errorf("marshaling header: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer func() { err = errors.Join(err, f.Close()) }()

	w := bufio.NewWriter(f)
	w.Write(header)
	w.WriteByte('\n')
	w.Write(compressed.Bytes())
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing archive: %w", err)
	}
	return nil
}

// Read loads an archive, verifying its checksum before decompressing.
func Read(path string) (*Archive, error) {
	header, compressed, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	if err := verify(header, compressed); err != nil {
		return nil, err
	}

	gzr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	payload, err := io.ReadAll(io.LimitReader(gzr, MaxPayloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("decompressing payload: %w", err)
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("decompressed payload exceeds maximum size of %d bytes", MaxPayloadSize)
	}

	var a Archive
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, fmt.Errorf("parsing archive: %w", err)
	}
	return &a, nil
}

// ReadHeader returns the header line of an archive without touching the payload.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()
	return parseHeader(bufio.NewReader(f))
}

// Verify checks the archive's checksum without decompressing it.
func Verify(path string) error {
	header, compressed, err := readRaw(path)
	if err != nil {
		return err
	}
	return verify(header, compressed)
}

func readRaw(path string) (*Header, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	header, err := parseHeader(r)
	if err != nil {
		return nil, nil, err
	}
	compressed, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("reading payload: %w", err)
	}
	return header, compressed, nil
}

func parseHeader(r *bufio.Reader) (*Header, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading header line: %w", err)
	}
	var h Header
	if err := json.Unmarshal(bytes.TrimSpace(line), &h); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	if h.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported archive version: %d", h.Version)
	}
	return &h, nil
}

func verify(h *Header, compressed []byte) error {
	if got := checksum(compressed); got != h.Checksum {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", h.Checksum, got)
	}
	return nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// RestoreMode controls how Restore treats existing results.
type RestoreMode string

const (
	// RestoreMerge keeps existing sessions and runs and skips archived
	// entries with the same id.
	RestoreMerge RestoreMode = "merge"
	// RestoreReplace empties the database first.
	RestoreReplace RestoreMode = "replace"
)

// ParseRestoreMode accepts "merge" (or "") and "replace".
func ParseRestoreMode(s string) (RestoreMode, error) {
	switch RestoreMode(s) {
	case "", RestoreMerge:
		return RestoreMerge, nil
	case RestoreReplace:
		return RestoreReplace, nil
	}
	return "", fmt.Errorf("unknown restore mode %q (use merge or replace)", s)
}

// RestoreResult counts what Restore imported.
type RestoreResult struct {
	BenchmarksRestored  int `json:"benchmarks_restored"`
	BenchmarksSkipped   int `json:"benchmarks_skipped"`
	SimulationsRestored int `json:"simulations_restored"`
	SimulationsSkipped  int `json:"simulations_skipped"`
}

// Restore imports an archive into st.
func Restore(ctx context.Context, st *store.SQLiteResultStore, path string, mode RestoreMode) (*RestoreResult, error) {
	a, err := Read(path)
	if err != nil {
		return nil, err
	}

	if mode == RestoreReplace {
		if err := st.Reset(ctx); err != nil {
			return nil, fmt.Errorf("failed to clear results: %w", err)
		}
	}

	result := &RestoreResult{}
	for _, session := range a.Benchmarks {
		ok, err := st.ImportBenchmark(ctx, session)
		if err != nil {
			return nil, fmt.Errorf("failed to restore session %s: %w", session.ID, err)
		}
		if ok {
			result.BenchmarksRestored++
		} else {
			result.BenchmarksSkipped++
		}
	}
	for _, entry := range a.Simulations {
		ok, err := st.ImportSimulation(ctx, entry.Run, entry.Trace)
		if err != nil {
			return nil, fmt.Errorf("failed to restore run %s: %w", entry.Run.ID, err)
		}
		if ok {
			result.SimulationsRestored++
		} else {
			result.SimulationsSkipped++
		}
	}
	return result, nil
}

// GeneratePath returns a timestamped archive path in dir.
func GeneratePath(dir string, now time.Time) string {
	return filepath.Join(dir, "netwave-backup-"+now.Format("20060102-150405")+FileExt)
}
