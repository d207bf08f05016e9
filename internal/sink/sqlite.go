package sink

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/signalsfoundry/dwell-handover/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS candidate_observations (
  time_bucket   INTEGER NOT NULL,
  rnti          INTEGER NOT NULL,
  cell_id       INTEGER NOT NULL,
  station_id    INTEGER NOT NULL,
  rsrq          INTEGER NOT NULL,
  dwell_seconds INTEGER NOT NULL,
  endpoint_x    REAL NOT NULL,
  endpoint_y    REAL NOT NULL,
  endpoint_z    REAL NOT NULL,
  station_x     REAL NOT NULL,
  station_y     REAL NOT NULL,
  station_z     REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_candidate_bucket ON candidate_observations (time_bucket, cell_id);
CREATE TABLE IF NOT EXISTS handover_events (
  id            INTEGER PRIMARY KEY AUTOINCREMENT,
  time_bucket   INTEGER NOT NULL,
  rnti          INTEGER NOT NULL,
  serving_cell  INTEGER NOT NULL,
  target_cell   INTEGER NOT NULL,
  serving_rsrq  INTEGER NOT NULL,
  target_rsrq   INTEGER NOT NULL,
  dwell_seconds INTEGER NOT NULL,
  locked_until  INTEGER NOT NULL
);
`

// SQLiteRecorder stores every record in a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and ensures
// the tables exist.
func OpenSQLite(path string) (*SQLiteRecorder, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite sink path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sink tables: %w", err)
	}
	return &SQLiteRecorder{db: db}, nil
}

func (s *SQLiteRecorder) RecordCandidate(ctx context.Context, obs model.CandidateObservation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO candidate_observations (
		   time_bucket, rnti, cell_id, station_id, rsrq, dwell_seconds,
		   endpoint_x, endpoint_y, endpoint_z, station_x, station_y, station_z
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		obs.Bucket, int(obs.RNTI), int(obs.CellID), obs.StationID, int(obs.RSRQ), obs.DwellSeconds,
		obs.Endpoint.X, obs.Endpoint.Y, obs.Endpoint.Z, obs.Station.X, obs.Station.Y, obs.Station.Z,
	)
	if err != nil {
		return fmt.Errorf("insert candidate observation: %w", err)
	}
	return nil
}

func (s *SQLiteRecorder) RecordHandover(ctx context.Context, ev model.HandoverEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO handover_events (
		   time_bucket, rnti, serving_cell, target_cell, serving_rsrq, target_rsrq, dwell_seconds, locked_until
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Bucket, int(ev.RNTI), int(ev.ServingCell), int(ev.TargetCell),
		int(ev.ServingRSRQ), int(ev.TargetRSRQ), ev.DwellSeconds, ev.LockedUntil,
	)
	if err != nil {
		return fmt.Errorf("insert handover event: %w", err)
	}
	return nil
}

// CountHandovers returns the number of stored handover events.
func (s *SQLiteRecorder) CountHandovers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM handover_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count handover events: %w", err)
	}
	return n, nil
}

// HandoverTargets returns the target cells in insertion order.
func (s *SQLiteRecorder) HandoverTargets(ctx context.Context) ([]model.CellID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT target_cell FROM handover_events ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query handover targets: %w", err)
	}
	defer rows.Close()
	var out []model.CellID
	for rows.Next() {
		var cell int
		if err := rows.Scan(&cell); err != nil {
			return nil, err
		}
		out = append(out, model.CellID(cell))
	}
	return out, rows.Err()
}

// Close closes the database handle.
func (s *SQLiteRecorder) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
