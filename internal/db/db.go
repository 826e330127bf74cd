// Package db persists capture runs and their decoded frames to SQLite.
package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/mmwave.report/internal/mmwave"
	"github.com/banshee-data/mmwave.report/internal/monitoring"
)

type DB struct {
	*sql.DB
	path string
}

// NewDB opens (creating if needed) the SQLite database at path. Schema is
// managed by the migrations under internal/db/migrations; run MigrateUp
// before first use.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// One writer (the frame recorder) plus readers; WAL keeps status
	// queries from blocking frame inserts.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}

	return &DB{DB: db, path: path}, nil
}

// CreateRun records the start of a capture run.
func (db *DB) CreateRun(runID, controlPort, dataPort string) error {
	_, err := db.Exec(
		`INSERT INTO runs (run_id, control_port, data_port) VALUES (?, ?, ?)`,
		runID, controlPort, dataPort,
	)
	return err
}

// CloseRun stamps a run's end time and final counters.
func (db *DB) CloseRun(runID string, framesDecoded, pointsDelivered int64) error {
	_, err := db.Exec(
		`UPDATE runs SET ended_at = CURRENT_TIMESTAMP, frames_decoded = ?, points_delivered = ?
		 WHERE run_id = ?`,
		framesDecoded, pointsDelivered, runID,
	)
	return err
}

// RecordFrame persists one decoded frame and its (already filtered) points.
func (db *DB) RecordFrame(runID string, frame mmwave.Frame) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO frames (run_id, frame_number, cpu_cycles, num_points)
		 VALUES (?, ?, ?, ?)`,
		runID, frame.Header.FrameNumber, frame.Header.CPUCycles, len(frame.Points),
	)
	if err != nil {
		return fmt.Errorf("failed to insert frame: %w", err)
	}
	frameID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO points (frame_id, x, y, z, velocity) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, p := range frame.Points {
		if _, err := stmt.Exec(frameID, p.X, p.Y, p.Z, p.Velocity); err != nil {
			return fmt.Errorf("failed to insert point: %w", err)
		}
	}

	return tx.Commit()
}

// FrameRecord is one persisted frame summary.
type FrameRecord struct {
	ID          int64     `json:"id"`
	RunID       string    `json:"run_id"`
	FrameNumber uint32    `json:"frame_number"`
	NumPoints   int       `json:"num_points"`
	CreatedAt   time.Time `json:"created_at"`
}

// RecentFrames returns the newest frame summaries, most recent first.
func (db *DB) RecentFrames(limit int) ([]FrameRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(
		`SELECT id, run_id, frame_number, num_points, timestamp
		 FROM frames ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FrameRecord
	for rows.Next() {
		var fr FrameRecord
		if err := rows.Scan(&fr.ID, &fr.RunID, &fr.FrameNumber, &fr.NumPoints, &fr.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, fr)
	}
	return out, rows.Err()
}

// FramePoints returns the stored points of one frame in insertion order.
func (db *DB) FramePoints(frameID int64) ([]mmwave.Point, error) {
	rows, err := db.Query(
		`SELECT x, y, z, velocity FROM points WHERE frame_id = ? ORDER BY id`, frameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []mmwave.Point
	for rows.Next() {
		var p mmwave.Point
		if err := rows.Scan(&p.X, &p.Y, &p.Z, &p.Velocity); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AttachAdminRoutes mounts the live SQL console and a backup endpoint under
// /debug/. These routes are for localhost/tailnet operators only.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logf("db: failed to create tailsql server: %v", err)
		return
	}
	tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
		Label: "Capture DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a database backup", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := fmt.Sprintf("backup-%d.db", time.Now().Unix())
		if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				monitoring.Logf("db: failed to remove backup file: %v", err)
			}
		}()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		gz := gzip.NewWriter(w)
		defer gz.Close()
		if _, err := io.Copy(gz, backupFile); err != nil {
			monitoring.Logf("db: backup download failed: %v", err)
		}
	}))
}
