// Package regdb maintains the SQLite catalog of generation runs. The trial
// data itself lives in flat log files; the catalog indexes run metadata and
// final tallies so listings do not require re-scanning every log.
package regdb

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/qbyte.report/internal/reg"
)

// DB wraps the catalog database connection.
type DB struct {
	*sql.DB
}

// Open opens (creating if necessary) the catalog database at path. Callers
// normally follow with Migrate.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run catalog: %w", err)
	}
	return &DB{db}, nil
}

// Run is one catalog row describing a generation run.
type Run struct {
	ID             string  `json:"run_id"`
	Name           string  `json:"name"`
	LogPath        string  `json:"log_path"`
	Remarks        string  `json:"remarks"`
	StartedAtMs    int64   `json:"started_at_ms"`
	ColorZ         float64 `json:"color_z"`
	RotZ           float64 `json:"rot_z"`
	SampleWidth    int     `json:"sample_width"`
	UseTrueRNG     bool    `json:"use_true_rng"`
	Halo           bool    `json:"halo"`
	Turbo          bool    `json:"turbo"`
	Trials         int     `json:"trials"`
	ColorEvents    int     `json:"color_events"`
	RotationEvents int     `json:"rotation_events"`
}

// NewRun builds a catalog row for a just-started session.
func NewRun(name, logPath, remarks string, startedAtMs int64, p reg.RunParams) *Run {
	return &Run{
		ID:          uuid.NewString(),
		Name:        name,
		LogPath:     logPath,
		Remarks:     remarks,
		StartedAtMs: startedAtMs,
		ColorZ:      p.ColorZ,
		RotZ:        p.RotZ,
		SampleWidth: p.SampleWidth,
		UseTrueRNG:  p.UseTrueRNG,
		Halo:        p.Halo,
		Turbo:       p.Turbo,
	}
}

// RecordRun inserts a run into the catalog.
func (db *DB) RecordRun(run *Run) error {
	_, err := db.Exec(
		`INSERT INTO runs (
			run_id, name, log_path, remarks, started_at_ms,
			color_z, rot_z, sample_width, use_true_rng, halo, turbo,
			trials, color_events, rotation_events
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.LogPath, run.Remarks, run.StartedAtMs,
		run.ColorZ, run.RotZ, run.SampleWidth, run.UseTrueRNG, run.Halo, run.Turbo,
		run.Trials, run.ColorEvents, run.RotationEvents,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.Name, err)
	}
	return nil
}

// UpdateRunCounts writes the final tallies for a run after it completes or
// is cancelled.
func (db *DB) UpdateRunCounts(id string, counts reg.EventCounts) error {
	res, err := db.Exec(
		`UPDATE runs SET trials = ?, color_events = ?, rotation_events = ? WHERE run_id = ?`,
		counts.Trials, counts.Color, counts.Rotation, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update run counts: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", id, reg.ErrNotFound)
	}
	return nil
}

// ListRuns returns all catalogued runs, most recent first.
func (db *DB) ListRuns() ([]Run, error) {
	rows, err := db.Query(
		`SELECT run_id, name, log_path, remarks, started_at_ms,
			color_z, rot_z, sample_width, use_true_rng, halo, turbo,
			trials, color_events, rotation_events
		FROM runs ORDER BY started_at_ms DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(
			&r.ID, &r.Name, &r.LogPath, &r.Remarks, &r.StartedAtMs,
			&r.ColorZ, &r.RotZ, &r.SampleWidth, &r.UseTrueRNG, &r.Halo, &r.Turbo,
			&r.Trials, &r.ColorEvents, &r.RotationEvents,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRunByName looks up one run by its start-time-derived name.
func (db *DB) GetRunByName(name string) (*Run, error) {
	var r Run
	err := db.QueryRow(
		`SELECT run_id, name, log_path, remarks, started_at_ms,
			color_z, rot_z, sample_width, use_true_rng, halo, turbo,
			trials, color_events, rotation_events
		FROM runs WHERE name = ?`, name,
	).Scan(
		&r.ID, &r.Name, &r.LogPath, &r.Remarks, &r.StartedAtMs,
		&r.ColorZ, &r.RotZ, &r.SampleWidth, &r.UseTrueRNG, &r.Halo, &r.Turbo,
		&r.Trials, &r.ColorEvents, &r.RotationEvents,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", name, reg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up run %s: %w", name, err)
	}
	return &r, nil
}
