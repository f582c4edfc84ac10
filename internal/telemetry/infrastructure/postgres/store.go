package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	telemetry "pumpwatch/internal/telemetry/domain"
)

const (
	defaultBufferTable = "pump_session_buffer"
	defaultEventsTable = "pump_run_events"
)

// SessionStore is a Postgres implementation of the session store. The
// buffer is a per-device ordered row set; events are append-only with a
// deterministic primary key, so replaying a close upserts nothing new.
type SessionStore struct {
	db          *sql.DB
	bufferTable string
	eventsTable string
}

// NewSessionStore constructs a store with default table names.
func NewSessionStore(db *sql.DB, opts ...StoreOption) *SessionStore {
	store := &SessionStore{db: db, bufferTable: defaultBufferTable, eventsTable: defaultEventsTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// StoreOption configures the store.
type StoreOption func(*SessionStore)

// WithBufferTable overrides the default buffer table name.
func WithBufferTable(table string) StoreOption {
	return func(store *SessionStore) {
		if table != "" {
			store.bufferTable = table
		}
	}
}

// WithEventsTable overrides the default events table name.
func WithEventsTable(table string) StoreOption {
	return func(store *SessionStore) {
		if table != "" {
			store.eventsTable = table
		}
	}
}

// LoadBuffer returns the device's open session buffer in arrival order.
func (s *SessionStore) LoadBuffer(ctx context.Context, deviceID string) ([]telemetry.Sample, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("session store: nil db")
	}
	if deviceID == "" {
		return nil, telemetry.ErrEmptyDeviceID
	}

	query := fmt.Sprintf(`
SELECT ts, date, value, timezone
FROM %s
WHERE device_id = $1
ORDER BY seq ASC`, s.bufferTable)

	rows, err := s.db.QueryContext(ctx, query, deviceID)
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
	if err := s.replaceBufferTx(ctx, tx, deviceID, buffer); err != nil {
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
	if err := s.appendEventTx(ctx, tx, deviceID, event); err != nil {
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

	query := fmt.Sprintf(`
SELECT id, device_id, date, start_time, end_time, duration_seconds, average_value, discharge_volume
FROM %s
WHERE device_id = $1
ORDER BY seq ASC
OFFSET $2`, s.eventsTable)
	args := []any{deviceID, offset}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
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

// CloseSession appends event and replaces the buffer in one transaction,
// so neither write can land without the other.
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
	if err := s.appendEventTx(ctx, tx, deviceID, event); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := s.replaceBufferTx(ctx, tx, deviceID, buffer); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SessionStore) replaceBufferTx(ctx context.Context, tx *sql.Tx, deviceID string, buffer []telemetry.Sample) error {
	deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE device_id = $1", s.bufferTable)
	if _, err := tx.ExecContext(ctx, deleteQuery, deviceID); err != nil {
		return err
	}
	if len(buffer) == 0 {
		return nil
	}

	insertQuery := fmt.Sprintf(`
INSERT INTO %s (device_id, ts, date, value, timezone)
VALUES ($1, $2, $3, $4, $5)`, s.bufferTable)
	stmt, err := tx.PrepareContext(ctx, insertQuery)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sample := range buffer {
		if sample.Timestamp == "" || sample.Timezone == "" {
			return errors.New("session store: invalid sample")
		}
		if _, err := stmt.ExecContext(ctx, deviceID, sample.Timestamp, sample.Date, sample.Value, sample.Timezone); err != nil {
			return err
		}
	}
	return nil
}

func (s *SessionStore) appendEventTx(ctx context.Context, tx *sql.Tx, deviceID string, event telemetry.Event) error {
	if event.ID == "" || event.DeviceID != deviceID {
		return errors.New("session store: invalid event")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	device_id,
	date,
	start_time,
	end_time,
	duration_seconds,
	average_value,
	discharge_volume
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8
)
ON CONFLICT (id) DO NOTHING`, s.eventsTable)
	_, err := tx.ExecContext(
		ctx,
		query,
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
