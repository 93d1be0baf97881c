// Package store persists benchmark sessions and simulation runs in SQLite.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/netwave/internal/benchmark"
	"github.com/nvandessel/netwave/internal/simulation"
)

// ErrNotFound is returned when a session or run id does not exist.
var ErrNotFound = errors.New("not found")

// ScenarioRecord is the persisted, human-readable form of a scenario.
type ScenarioRecord struct {
	Name             string  `json:"name"`
	Nodes            int     `json:"nodes"`
	Topology         string  `json:"topology"`
	Width            int     `json:"width,omitempty"`
	Height           int     `json:"height,omitempty"`
	Probability      float64 `json:"probability,omitempty"`
	K                int     `json:"k,omitempty"`
	Beta             float64 `json:"beta,omitempty"`
	Source           string  `json:"source"`
	Diffusion        float64 `json:"diffusion"`
	Damping          float64 `json:"damping"`
	TimeStep         float64 `json:"time_step"`
	Steps            int     `json:"steps"`
	PerturbNode      int     `json:"perturb_node"`
	PerturbAmplitude float64 `json:"perturb_amplitude"`
	Seed             uint64  `json:"seed,omitempty"`
	Policy           string  `json:"policy"`
	Workers          int     `json:"workers"`
	Variant          string  `json:"variant,omitempty"`
	Reduction        string  `json:"reduction"`
}

// RecordScenario flattens sc into its persisted form.
func RecordScenario(sc simulation.Scenario) ScenarioRecord {
	return ScenarioRecord{
		Name:             sc.Name,
		Nodes:            sc.Nodes,
		Topology:         string(sc.Topology.Kind),
		Width:            sc.Topology.Width,
		Height:           sc.Topology.Height,
		Probability:      sc.Topology.Probability,
		K:                sc.Topology.K,
		Beta:             sc.Topology.Beta,
		Source:           sc.Source.Mode.String(),
		Diffusion:        sc.Diffusion,
		Damping:          sc.Damping,
		TimeStep:         sc.TimeStep,
		Steps:            sc.Steps,
		PerturbNode:      sc.PerturbNode,
		PerturbAmplitude: sc.PerturbAmplitude,
		Seed:             sc.Seed,
		Policy:           sc.Policy.String(),
		Workers:          sc.Workers,
		Variant:          string(sc.Variant),
		Reduction:        sc.Reduction.String(),
	}
}

// BenchmarkSession is one complete benchmark invocation.
type BenchmarkSession struct {
	ID        string
	CreatedAt time.Time
	Workload  ScenarioRecord
	Grid      benchmark.Grid
	Baseline  benchmark.RunStat

	// Results and Scaling are only populated by LoadBenchmark.
	Results []benchmark.RunResult
	Scaling []benchmark.RunResult
}

// SimulationRecord is the stored header of one simulation run.
type SimulationRecord struct {
	ID        string
	CreatedAt time.Time
	Name      string
	Scenario  ScenarioRecord
	Nodes     int
	Steps     int
	FinalTime float64
	Elapsed   time.Duration
}

// TracePoint is one row of a run's energy trace.
type TracePoint struct {
	Step    int     `json:"step"`
	Energy  float64 `json:"energy"`
	Average float64 `json:"average"`
}

// SQLiteResultStore stores benchmark and simulation results in one SQLite file.
type SQLiteResultStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// Open opens (creating if needed) the results database at path.
func Open(path string) (*SQLiteResultStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteResultStore{db: db, dbPath: path, now: time.Now}, nil
}

// Path returns the database file path.
func (s *SQLiteResultStore) Path() string { return s.dbPath }

// Close closes the database connection.
func (s *SQLiteResultStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Reset drops and recreates every table, deleting all stored results.
func (s *SQLiteResultStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ResetSchema(ctx, s.db)
}

// SaveBenchmark stores a session with its grid and scaling rows and returns
// the session id. ID and CreatedAt are assigned when empty.
func (s *SQLiteResultStore) SaveBenchmark(ctx context.Context, session *BenchmarkSession) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.CreatedAt.IsZero() {
		session.CreatedAt = s.now().UTC()
	}
	workload, err := json.Marshal(session.Workload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal workload: %w", err)
	}
	grid, err := json.Marshal(session.Grid)
	if err != nil {
		return "", fmt.Errorf("failed to marshal grid: %w", err)
	}
	if session.ID == "" {
		session.ID = "bench-" + computeID(session.CreatedAt, workload, grid)
	}

	if _, err := s.insertBenchmark(ctx, "INSERT", session, workload, grid); err != nil {
		return "", err
	}
	return session.ID, nil
}

// ImportBenchmark stores a previously exported session under its original
// id. It reports false, without error, when that id already exists.
func (s *SQLiteResultStore) ImportBenchmark(ctx context.Context, session *BenchmarkSession) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.ID == "" {
		return false, fmt.Errorf("import benchmark: empty id")
	}
	workload, err := json.Marshal(session.Workload)
	if err != nil {
		return false, fmt.Errorf("failed to marshal workload: %w", err)
	}
	grid, err := json.Marshal(session.Grid)
	if err != nil {
		return false, fmt.Errorf("failed to marshal grid: %w", err)
	}
	return s.insertBenchmark(ctx, "INSERT OR IGNORE", session, workload, grid)
}

func (s *SQLiteResultStore) insertBenchmark(ctx context.Context, verb string, session *BenchmarkSession, workload, grid []byte) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, verb+` INTO benchmark_sessions
		(id, created_at, workload, grid, baseline_mean, baseline_std)
		VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID, session.CreatedAt.UTC().Format(time.RFC3339Nano), string(workload), string(grid),
		session.Baseline.Mean, session.Baseline.Std)
	if err != nil {
		return false, fmt.Errorf("failed to insert benchmark session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	if err := insertRows(ctx, tx, "grid_results", session.ID, session.Results); err != nil {
		return false, err
	}
	if err := insertRows(ctx, tx, "scaling_results", session.ID, session.Scaling); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit benchmark session: %w", err)
	}
	return true, nil
}

func insertRows(ctx context.Context, tx *sql.Tx, table, sessionID string, rows []benchmark.RunResult) error {
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (session_id, seq, workers, schedule, chunk, time_mean, time_std,
			speedup, efficiency, sigma_speedup, sigma_efficiency)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, table))
	if err != nil {
		return fmt.Errorf("failed to prepare %s insert: %w", table, err)
	}
	defer stmt.Close()

	for i, r := range rows {
		if _, err := stmt.ExecContext(ctx, sessionID, i, r.Workers, int(r.Schedule), r.Chunk,
			r.Time.Mean, r.Time.Std, r.Speedup, r.Efficiency, r.SpeedupErr, r.EfficiencyErr); err != nil {
			return fmt.Errorf("failed to insert %s row %d: %w", table, i, err)
		}
	}
	return nil
}

// ListBenchmarks returns session headers, newest first. Results and Scaling
// are left empty.
func (s *SQLiteResultStore) ListBenchmarks(ctx context.Context) ([]BenchmarkSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, workload, grid, baseline_mean, baseline_std
		FROM benchmark_sessions ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query benchmark sessions: %w", err)
	}
	defer rows.Close()

	var sessions []BenchmarkSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

// LoadBenchmark returns a session with all of its rows.
func (s *SQLiteResultStore) LoadBenchmark(ctx context.Context, id string) (*BenchmarkSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, workload, grid, baseline_mean, baseline_std
		FROM benchmark_sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("benchmark session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if session.Results, err = s.loadRows(ctx, "grid_results", id); err != nil {
		return nil, err
	}
	if session.Scaling, err = s.loadRows(ctx, "scaling_results", id); err != nil {
		return nil, err
	}
	return session, nil
}

// DeleteBenchmark removes a session and, by cascade, its rows.
func (s *SQLiteResultStore) DeleteBenchmark(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM benchmark_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete benchmark session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("benchmark session %s: %w", id, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*BenchmarkSession, error) {
	var (
		session            BenchmarkSession
		createdAt          string
		workload, gridJSON string
	)
	if err := row.Scan(&session.ID, &createdAt, &workload, &gridJSON,
		&session.Baseline.Mean, &session.Baseline.Std); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan benchmark session: %w", err)
	}
	var err error
	if session.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(workload), &session.Workload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workload: %w", err)
	}
	if err := json.Unmarshal([]byte(gridJSON), &session.Grid); err != nil {
		return nil, fmt.Errorf("failed to unmarshal grid: %w", err)
	}
	return &session, nil
}

func (s *SQLiteResultStore) loadRows(ctx context.Context, table, sessionID string) ([]benchmark.RunResult, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT workers, schedule, chunk, time_mean, time_std,
			speedup, efficiency, sigma_speedup, sigma_efficiency
		FROM %s WHERE session_id = ? ORDER BY seq`, table), sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var results []benchmark.RunResult
	for rows.Next() {
		var r benchmark.RunResult
		if err := rows.Scan(&r.Workers, &r.Schedule, &r.Chunk, &r.Time.Mean, &r.Time.Std,
			&r.Speedup, &r.Efficiency, &r.SpeedupErr, &r.EfficiencyErr); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// SaveSimulation stores a run summary with its per-step energy trace and
// returns the run id.
func (s *SQLiteResultStore) SaveSimulation(ctx context.Context, sc simulation.Scenario, summary simulation.Summary) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := SimulationRecord{
		CreatedAt: s.now().UTC(),
		Name:      summary.Name,
		Scenario:  RecordScenario(sc),
		Nodes:     summary.Nodes,
		Steps:     summary.Steps,
		FinalTime: summary.FinalTime,
		Elapsed:   summary.Elapsed,
	}
	scenario, err := json.Marshal(rec.Scenario)
	if err != nil {
		return "", fmt.Errorf("failed to marshal scenario: %w", err)
	}
	rec.ID = "sim-" + computeID(rec.CreatedAt, scenario, nil)

	trace := make([]TracePoint, len(summary.Energy))
	for step, energy := range summary.Energy {
		trace[step] = TracePoint{Step: step, Energy: energy}
		if step < len(summary.Average) {
			trace[step].Average = summary.Average[step]
		}
	}

	if _, err := s.insertSimulation(ctx, "INSERT", rec, trace); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// ImportSimulation stores a previously exported run under its original id.
// It reports false, without error, when a run with that id already exists.
func (s *SQLiteResultStore) ImportSimulation(ctx context.Context, rec SimulationRecord, trace []TracePoint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		return false, fmt.Errorf("import simulation: empty id")
	}
	return s.insertSimulation(ctx, "INSERT OR IGNORE", rec, trace)
}

func (s *SQLiteResultStore) insertSimulation(ctx context.Context, verb string, rec SimulationRecord, trace []TracePoint) (bool, error) {
	scenario, err := json.Marshal(rec.Scenario)
	if err != nil {
		return false, fmt.Errorf("failed to marshal scenario: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, verb+` INTO simulation_runs
		(id, created_at, name, scenario, nodes, steps, final_time, elapsed_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.Name, string(scenario),
		rec.Nodes, rec.Steps, rec.FinalTime, rec.Elapsed.Seconds())
	if err != nil {
		return false, fmt.Errorf("failed to insert simulation run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO energy_trace (run_id, step, energy, average) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return false, fmt.Errorf("failed to prepare energy trace insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range trace {
		if _, err := stmt.ExecContext(ctx, rec.ID, p.Step, p.Energy, p.Average); err != nil {
			return false, fmt.Errorf("failed to insert energy trace step %d: %w", p.Step, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit simulation run: %w", err)
	}
	return true, nil
}

// ListSimulations returns stored runs, newest first.
func (s *SQLiteResultStore) ListSimulations(ctx context.Context) ([]SimulationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, name, scenario, nodes, steps, final_time, elapsed_seconds
		FROM simulation_runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query simulation runs: %w", err)
	}
	defer rows.Close()

	var runs []SimulationRecord
	for rows.Next() {
		var (
			rec       SimulationRecord
			createdAt string
			scenario  string
			elapsed   float64
		)
		if err := rows.Scan(&rec.ID, &createdAt, &rec.Name, &scenario,
			&rec.Nodes, &rec.Steps, &rec.FinalTime, &elapsed); err != nil {
			return nil, fmt.Errorf("failed to scan simulation run: %w", err)
		}
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		if err := json.Unmarshal([]byte(scenario), &rec.Scenario); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scenario: %w", err)
		}
		rec.Elapsed = time.Duration(elapsed * float64(time.Second))
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// LoadEnergyTrace returns the per-step energy and average amplitude of a run.
func (s *SQLiteResultStore) LoadEnergyTrace(ctx context.Context, runID string) ([]TracePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM simulation_runs WHERE id = ?`, runID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to look up simulation run: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("simulation run %s: %w", runID, ErrNotFound)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT step, energy, average FROM energy_trace WHERE run_id = ? ORDER BY step`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query energy trace: %w", err)
	}
	defer rows.Close()

	var trace []TracePoint
	for rows.Next() {
		var p TracePoint
		if err := rows.Scan(&p.Step, &p.Energy, &p.Average); err != nil {
			return nil, fmt.Errorf("failed to scan energy trace: %w", err)
		}
		trace = append(trace, p)
	}
	return trace, rows.Err()
}

// computeID derives a short content id from the creation time and payloads.
func computeID(createdAt time.Time, parts ...[]byte) string {
	h := sha256.New()
	h.Write([]byte(strconv.FormatInt(createdAt.UnixNano(), 10)))
	for _, p := range parts {
		h.Write(p)
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:8])
}
