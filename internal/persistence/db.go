// Package persistence provides SQLite-based run storage: the full engine
// state for resumption plus the snapshot series for inspection.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/biosim/internal/metrics"
	"github.com/talgya/biosim/internal/sim"
)

// ErrRunNotFound is returned when a run id has no stored state.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID        string `db:"id"`
	Scenario  string `db:"scenario"`
	Seed      int64  `db:"seed"`
	StartYear int    `db:"start_year"`
	EndYear   int    `db:"end_year"`
	Phase     string `db:"phase"`
	LastStep  int    `db:"last_step"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

// DB wraps a SQLite connection for run persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		scenario TEXT NOT NULL,
		seed INTEGER NOT NULL,
		start_year INTEGER NOT NULL,
		end_year INTEGER NOT NULL,
		phase TEXT NOT NULL,
		last_step INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_state (
		run_id TEXT PRIMARY KEY REFERENCES runs(id),
		state_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		run_id TEXT NOT NULL REFERENCES runs(id),
		step INTEGER NOT NULL,
		year INTEGER NOT NULL,
		products INTEGER NOT NULL,
		events_applied INTEGER NOT NULL,
		skipped_actions INTEGER NOT NULL,
		snapshot_json TEXT NOT NULL,
		PRIMARY KEY (run_id, step)
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_year ON snapshots(run_id, year);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// NewRunID issues a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// SaveRun writes the full engine state and snapshot series for a run,
// replacing any prior save under the same id.
func (db *DB) SaveRun(runID string, state sim.RunState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO runs
		(id, scenario, seed, start_year, end_year, phase, last_step, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phase = excluded.phase,
			last_step = excluded.last_step,
			updated_at = excluded.updated_at`,
		runID, state.Config.Scenario, state.Config.Seed,
		state.Config.StartYear, state.Config.EndYear,
		state.Phase.String(), state.Step, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	_, err = tx.Exec(`INSERT INTO run_state (run_id, state_json) VALUES (?, ?)
		ON CONFLICT(run_id) DO UPDATE SET state_json = excluded.state_json`,
		runID, string(stateJSON),
	)
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM snapshots WHERE run_id = ?", runID); err != nil {
		return err
	}
	stmt, err := tx.Preparex(`INSERT INTO snapshots
		(run_id, step, year, products, events_applied, skipped_actions, snapshot_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, snap := range state.Snapshots {
		snapJSON, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("marshal snapshot %d: %w", snap.Step, err)
		}
		_, err = stmt.Exec(runID, snap.Step, snap.Year,
			snap.TotalProducts(), snap.EventsApplied, snap.SkippedActions,
			string(snapJSON))
		if err != nil {
			return fmt.Errorf("insert snapshot %d: %w", snap.Step, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	slog.Info("run saved", "run", runID, "step", state.Step, "snapshots", len(state.Snapshots))
	return nil
}

// LoadRun reads the persisted state for a run.
func (db *DB) LoadRun(runID string) (sim.RunState, error) {
	var stateJSON string
	err := db.conn.Get(&stateJSON, "SELECT state_json FROM run_state WHERE run_id = ?", runID)
	if errors.Is(err, sql.ErrNoRows) {
		return sim.RunState{}, ErrRunNotFound
	}
	if err != nil {
		return sim.RunState{}, fmt.Errorf("load state: %w", err)
	}

	var state sim.RunState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return sim.RunState{}, fmt.Errorf("unmarshal state: %w", err)
	}
	return state, nil
}

// ListRuns returns all run records, most recently updated first.
func (db *DB) ListRuns() ([]RunRecord, error) {
	var runs []RunRecord
	err := db.conn.Select(&runs, "SELECT * FROM runs ORDER BY updated_at DESC")
	return runs, err
}

// Snapshots returns a run's snapshot series in step order.
func (db *DB) Snapshots(runID string) ([]metrics.Snapshot, error) {
	var rows []string
	err := db.conn.Select(&rows,
		"SELECT snapshot_json FROM snapshots WHERE run_id = ? ORDER BY step", runID)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}

	out := make([]metrics.Snapshot, 0, len(rows))
	for _, raw := range rows {
		var snap metrics.Snapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, nil
}
