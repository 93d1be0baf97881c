package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SchemaVersion is the schema version this build writes.
const SchemaVersion = 1

// schemaV1 is the initial schema for the results database.
const schemaV1 = `
-- One benchmark invocation: workload, grid and baseline
CREATE TABLE IF NOT EXISTS benchmark_sessions (
    id TEXT PRIMARY KEY,
    created_at TEXT NOT NULL,
    workload TEXT NOT NULL,  -- JSON
    grid TEXT NOT NULL,      -- JSON
    baseline_mean REAL NOT NULL,
    baseline_std REAL NOT NULL
);

-- Full grid rows, in measurement order
CREATE TABLE IF NOT EXISTS grid_results (
    session_id TEXT NOT NULL REFERENCES benchmark_sessions(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    workers INTEGER NOT NULL,
    schedule INTEGER NOT NULL,
    chunk INTEGER NOT NULL,
    time_mean REAL NOT NULL,
    time_std REAL NOT NULL,
    speedup REAL NOT NULL,
    efficiency REAL NOT NULL,
    sigma_speedup REAL NOT NULL,
    sigma_efficiency REAL NOT NULL,
    PRIMARY KEY (session_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_grid_workers ON grid_results(session_id, workers);

-- Best row per worker count
CREATE TABLE IF NOT EXISTS scaling_results (
    session_id TEXT NOT NULL REFERENCES benchmark_sessions(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    workers INTEGER NOT NULL,
    schedule INTEGER NOT NULL,
    chunk INTEGER NOT NULL,
    time_mean REAL NOT NULL,
    time_std REAL NOT NULL,
    speedup REAL NOT NULL,
    efficiency REAL NOT NULL,
    sigma_speedup REAL NOT NULL,
    sigma_efficiency REAL NOT NULL,
    PRIMARY KEY (session_id, seq)
);

-- Simulation runs
CREATE TABLE IF NOT EXISTS simulation_runs (
    id TEXT PRIMARY KEY,
    created_at TEXT NOT NULL,
    name TEXT NOT NULL,
    scenario TEXT NOT NULL,  -- JSON
    nodes INTEGER NOT NULL,
    steps INTEGER NOT NULL,
    final_time REAL NOT NULL,
    elapsed_seconds REAL NOT NULL
);

-- Per-step metrics of a simulation run
CREATE TABLE IF NOT EXISTS energy_trace (
    run_id TEXT NOT NULL REFERENCES simulation_runs(id) ON DELETE CASCADE,
    step INTEGER NOT NULL,
    energy REAL NOT NULL,
    average REAL NOT NULL,
    PRIMARY KEY (run_id, step)
);

-- Schema version
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// resultTables lists the schema's tables, children before parents.
var resultTables = []string{
	"energy_trace",
	"simulation_runs",
	"scaling_results",
	"grid_results",
	"benchmark_sessions",
	"schema_version",
}

// InitSchema creates the tables of an empty database. An existing database
// is integrity-checked and must not be newer than SchemaVersion.
func InitSchema(ctx context.Context, db *sql.DB) error {
	var exists int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'`,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to inspect schema: %w", err)
	}
	if exists == 0 {
		return createSchema(ctx, db)
	}

	if err := ValidateIntegrity(ctx, db); err != nil {
		return fmt.Errorf("database integrity check failed: %w", err)
	}
	version, err := getSchemaVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, SchemaVersion)
	}
	return nil
}

func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	applied := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`, SchemaVersion, applied); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return tx.Commit()
}

// ValidateIntegrity reports corruption found by PRAGMA integrity_check and
// dangling references found by PRAGMA foreign_key_check.
func ValidateIntegrity(ctx context.Context, db *sql.DB) error {
	var problems []string

	rows, err := db.QueryContext(ctx, `PRAGMA integrity_check`)
	if err != nil {
		return fmt.Errorf("integrity_check: %w", err)
	}
	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			rows.Close()
			return fmt.Errorf("integrity_check: %w", err)
		}
		if msg != "ok" {
			problems = append(problems, msg)
		}
	}
	if err := errors.Join(rows.Err(), rows.Close()); err != nil {
		return fmt.Errorf("integrity_check: %w", err)
	}

	rows, err = db.QueryContext(ctx, `PRAGMA foreign_key_check`)
	if err != nil {
		return fmt.Errorf("foreign_key_check: %w", err)
	}
	for rows.Next() {
		var table, parent string
		var rowid, fkid sql.NullInt64
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			rows.Close()
			return fmt.Errorf("foreign_key_check: %w", err)
		}
		problems = append(problems, fmt.Sprintf("%s row %d references missing %s", table, rowid.Int64, parent))
	}
	if err := errors.Join(rows.Err(), rows.Close()); err != nil {
		return fmt.Errorf("foreign_key_check: %w", err)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%d problem(s): %s", len(problems), strings.Join(problems, "; "))
	}
	return nil
}

// ResetSchema drops all tables and recreates the schema, deleting every
// stored result.
func ResetSchema(ctx context.Context, db *sql.DB) error {
	for _, table := range resultTables {
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}
	return createSchema(ctx, db)
}
