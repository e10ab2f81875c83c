package sink

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"droneops-ground/internal/telemetry"
)

const (
	sqliteSchemaSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id   TEXT    NOT NULL,
    received_at  TIMESTAMP NOT NULL,
    time_boot_ms INTEGER NOT NULL,
    x REAL, y REAL, z REAL,
    vx REAL, vy REAL, vz REAL,
    roll REAL, pitch REAL, yaw REAL,
    rollspeed REAL, pitchspeed REAL, yawspeed REAL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_session ON snapshots (session_id, received_at);

CREATE TABLE IF NOT EXISTS commands (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    ts         TIMESTAMP NOT NULL,
    action     TEXT NOT NULL,
    delta      REAL NOT NULL,
    status     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS link_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    ts         TIMESTAMP NOT NULL,
    state      TEXT NOT NULL,
    missed     INTEGER NOT NULL
);`

	insertSnapshotSQL = `
INSERT INTO snapshots (session_id,
                       received_at,
                       time_boot_ms,
                       x, y, z,
                       vx, vy, vz,
                       roll, pitch, yaw,
                       rollspeed, pitchspeed, yawspeed)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertCommandSQL = `
INSERT INTO commands (session_id, ts, action, delta, status)
VALUES (?, ?, ?, ?, ?)`

	insertLinkSQL = `
INSERT INTO link_events (session_id, ts, state, missed)
VALUES (?, ?, ?, ?)`

	selectCommandsSQL = `
SELECT session_id, ts, action, delta, status
FROM commands
WHERE session_id = ?
ORDER BY id`

	countSnapshotsSQL = `SELECT COUNT(*) FROM snapshots WHERE session_id = ?`
)

// SQLiteWriter is a local flight recorder backed by a WAL-mode SQLite file.
type SQLiteWriter struct {
	dbPath  string
	timeout time.Duration

	db     *sql.DB
	dbOnce sync.Once
	dbErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSQLiteWriter returns a writer for dbPath. The database is opened and
// the schema created on first use.
func NewSQLiteWriter(dbPath string) *SQLiteWriter {
	return &SQLiteWriter{dbPath: dbPath, timeout: 5 * time.Second}
}

func (s *SQLiteWriter) getDB() (*sql.DB, error) {
	s.dbOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.dbErr = fmt.Errorf("opening connection: %w", err)
			return
		}
		if _, err = db.Exec(sqliteSchemaSQL); err != nil {
			_ = db.Close()
			s.dbErr = fmt.Errorf("initializing schema: %w", err)
			return
		}
		s.db = db
	})
	return s.db, s.dbErr
}

func nullFloat(p *float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: telemetry.Value(p), Valid: p != nil}
}

// WriteSnapshot records one snapshot.
func (s *SQLiteWriter) WriteSnapshot(row SnapshotRow) error {
	return s.WriteSnapshots([]SnapshotRow{row})
}

// WriteSnapshots records rows in a single transaction.
func (s *SQLiteWriter) WriteSnapshots(rows []SnapshotRow) (err error) {
	if len(rows) == 0 {
		return nil
	}
	db, err := s.getDB()
	if err != nil {
		return fmt.Errorf("getting connection: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertSnapshotSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for _, r := range rows {
		if _, err = stmt.ExecContext(ctx, r.SessionID, r.ReceivedAt.UTC(), int64(r.TimeBootMs),
			nullFloat(r.X), nullFloat(r.Y), nullFloat(r.Z),
			nullFloat(r.VX), nullFloat(r.VY), nullFloat(r.VZ),
			nullFloat(r.Roll), nullFloat(r.Pitch), nullFloat(r.Yaw),
			nullFloat(r.RollSpeed), nullFloat(r.PitchSpeed), nullFloat(r.YawSpeed),
		); err != nil {
			return fmt.Errorf("inserting snapshot: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshots: %w", err)
	}
	return nil
}

// WriteCommand records an issued command.
func (s *SQLiteWriter) WriteCommand(row CommandRow) error {
	return s.exec(insertCommandSQL, row.SessionID, row.Timestamp.UTC(), row.Action, row.Delta, row.Status)
}

// WriteLink records a link state transition.
func (s *SQLiteWriter) WriteLink(row LinkRow) error {
	return s.exec(insertLinkSQL, row.SessionID, row.Timestamp.UTC(), row.State, row.Missed)
}

func (s *SQLiteWriter) exec(query string, args ...any) (err error) {
	db, err := s.getDB()
	if err != nil {
		return fmt.Errorf("getting connection: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	stmt, err := db.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if _, err = stmt.ExecContext(ctx, args...); err != nil {
		return fmt.Errorf("inserting row: %w", err)
	}
	return nil
}

// Commands returns the commands recorded for sessionID in insertion order.
func (s *SQLiteWriter) Commands(ctx context.Context, sessionID string) (out []CommandRow, err error) {
	db, err := s.getDB()
	if err != nil {
		return nil, fmt.Errorf("getting connection: %w", err)
	}
	rows, err := db.QueryContext(ctx, selectCommandsSQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var r CommandRow
		if err = rows.Scan(&r.SessionID, &r.Timestamp, &r.Action, &r.Delta, &r.Status); err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SnapshotCount returns how many snapshots were recorded for sessionID.
func (s *SQLiteWriter) SnapshotCount(ctx context.Context, sessionID string) (int, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, fmt.Errorf("getting connection: %w", err)
	}
	var n int
	if err := db.QueryRowContext(ctx, countSnapshotsSQL, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting snapshots: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteWriter) Close() error {
	s.closeOnce.Do(func() {
		if s.db != nil {
			s.closeErr = s.db.Close()
		}
	})
	return s.closeErr
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}
