package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	telemetry "pumpwatch/internal/telemetry/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS pump_session_buffer (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id  TEXT NOT NULL,
	ts         TEXT NOT NULL,
	date       TEXT NOT NULL,
	value      REAL NOT NULL,
	timezone   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_buffer_device ON pump_session_buffer(device_id, seq);

CREATE TABLE IF NOT EXISTS pump_run_events (
	seq              INTEGER PRIMARY KEY AUTOINCREMENT,
	id               TEXT NOT NULL UNIQUE,
	device_id        TEXT NOT NULL,
	date             TEXT NOT NULL,
	start_time       TEXT NOT NULL,
	end_time         TEXT NOT NULL,
	duration_seconds INTEGER NOT NULL,
	average_value    REAL NOT NULL,
	discharge_volume REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_device ON pump_run_events(device_id, seq);
`

// SessionStore is a SQLite session store for single-box field deployments
// where a Postgres instance is not worth running.
type SessionStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at path.
func Open(ctx context.Context, path string) (*SessionStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SessionStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SessionStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LoadBuffer returns the device's open session buffer in arrival order.
func (s *SessionStore) LoadBuffer(ctx context.Context, deviceID string) ([]telemetry.Sample, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("session store: nil db")
	}
	if deviceID == "" {
		return nil, telemetry.ErrEmptyDeviceID
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT ts, date, value, timezone
FROM pump_session_buffer
WHERE device_id = ?
ORDER BY seq ASC`, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buffer []telemetry.Sample
	for rows.Next() {
		var sample telemetry.Sample
		if err := rows.Scan(&sample.Timestamp, &sample.Date, &sample.Value, &sample.Timezone); err != nil {
			return nil, err
		}
		buffer = append(buffer, sample)
	}
	return buffer, rows.Err()
}

// SaveBuffer replaces the device's session buffer in one transaction.
func (s *SessionStore) SaveBuffer(ctx context.Context, deviceID string, buffer []telemetry.Sample) error {
	if s == nil || s.db == nil {
		return errors.New("session store: nil db")
	}
	if deviceID == "" {
		return telemetry.ErrEmptyDeviceID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := replaceBufferTx(ctx, tx, deviceID, buffer); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// AppendEvent appends a compiled event; replays of an existing id are no-ops.
func (s *SessionStore) AppendEvent(ctx context.Context, deviceID string, event telemetry.Event) error {
	if s == nil || s.db == nil {
		return errors.New("session store: nil db")
	}
	if deviceID == "" {
		return telemetry.ErrEmptyDeviceID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := appendEventTx(ctx, tx, deviceID, event); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ListEvents returns events in append order. limit <= 0 means all.
func (s *SessionStore) ListEvents(ctx context.Context, deviceID string, limit, offset int) ([]telemetry.Event, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("session store: nil db")
	}
	if deviceID == "" {
		return nil, telemetry.ErrEmptyDeviceID
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, device_id, date, start_time, end_time, duration_seconds, average_value, discharge_volume
FROM pump_run_events
WHERE device_id = ?
ORDER BY seq ASC
LIMIT ? OFFSET ?`, deviceID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []telemetry.Event
	for rows.Next() {
		var event telemetry.Event
		if err := rows.Scan(
			&event.ID,
			&event.DeviceID,
			&event.Date,
			&event.StartTime,
			&event.EndTime,
			&event.DurationSeconds,
			&event.AverageValue,
			&event.DischargeVolume,
		); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// CloseSession appends event and replaces the buffer in one transaction.
func (s *SessionStore) CloseSession(ctx context.Context, deviceID string, event telemetry.Event, buffer []telemetry.Sample) error {
	if s == nil || s.db == nil {
		return errors.New("session store: nil db")
	}
	if deviceID == "" {
		return telemetry.ErrEmptyDeviceID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := appendEventTx(ctx, tx, deviceID, event); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := replaceBufferTx(ctx, tx, deviceID, buffer); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func replaceBufferTx(ctx context.Context, tx *sql.Tx, deviceID string, buffer []telemetry.Sample) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM pump_session_buffer WHERE device_id = ?", deviceID); err != nil {
		return err
	}
	for _, sample := range buffer {
		if sample.Timestamp == "" || sample.Timezone == "" {
			return errors.New("session store: invalid sample")
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO pump_session_buffer (device_id, ts, date, value, timezone)
VALUES (?, ?, ?, ?, ?)`, deviceID, sample.Timestamp, sample.Date, sample.Value, sample.Timezone); err != nil {
			return err
		}
	}
	return nil
}

func appendEventTx(ctx context.Context, tx *sql.Tx, deviceID string, event telemetry.Event) error {
	if event.ID == "" || event.DeviceID != deviceID {
		return errors.New("session store: invalid event")
	}
	_, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO pump_run_events (
	id, device_id, date, start_time, end_time, duration_seconds, average_value, discharge_volume
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(event.ID),
		event.DeviceID,
		event.Date,
		event.StartTime,
		event.EndTime,
		event.DurationSeconds,
		event.AverageValue,
		event.DischargeVolume,
	)
	return err
}
