// Package storage records gateway traffic in PostgreSQL when a DSN is
// configured: one row per authenticated uplink and one per notable event.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// EventType classifies an event-log row.
type EventType string

const (
	EventTypeJoin   EventType = "join"
	EventTypeUplink EventType = "uplink"
	EventTypeError  EventType = "error"
)

// UplinkFrame is one recorded uplink.
type UplinkFrame struct {
	ID         uuid.UUID
	DevEUI     string
	Payload    []byte
	ReceivedAt time.Time
}

// EventLog is one recorded event.
type EventLog struct {
	ID          uuid.UUID
	DevEUI      string
	Type        EventType
	Description string
	CreatedAt   time.Time
}

// PostgresStore implements the frame/event log over PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects and ensures the schema exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS uplink_frames (
			id UUID PRIMARY KEY,
			dev_eui TEXT NOT NULL,
			payload BYTEA NOT NULL,
			received_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS event_logs (
			id UUID PRIMARY KEY,
			dev_eui TEXT NOT NULL,
			type TEXT NOT NULL,
			description TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_uplink_frames_dev_eui ON uplink_frames (dev_eui, received_at DESC);
		CREATE INDEX IF NOT EXISTS idx_event_logs_dev_eui ON event_logs (dev_eui, created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// SaveUplinkFrame records one authenticated uplink.
func (s *PostgresStore) SaveUplinkFrame(ctx context.Context, devEUI string, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO uplink_frames (id, dev_eui, payload, received_at)
		VALUES ($1, $2, $3, $4)`,
		uuid.New(), devEUI, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert uplink frame: %w", err)
	}
	return nil
}

// CreateEventLog records one event.
func (s *PostgresStore) CreateEventLog(ctx context.Context, devEUI string, eventType EventType, description string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_logs (id, dev_eui, type, description, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), devEUI, eventType, description, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

// ListUplinkFrames returns the most recent frames for one device.
func (s *PostgresStore) ListUplinkFrames(ctx context.Context, devEUI string, limit int) ([]*UplinkFrame, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dev_eui, payload, received_at
		FROM uplink_frames
		WHERE dev_eui = $1
		ORDER BY received_at DESC
		LIMIT $2`, devEUI, limit)
	if err != nil {
		return nil, fmt.Errorf("query uplink frames: %w", err)
	}
	defer rows.Close()

	var frames []*UplinkFrame
	for rows.Next() {
		var f UplinkFrame
		if err := rows.Scan(&f.ID, &f.DevEUI, &f.Payload, &f.ReceivedAt); err != nil {
			return nil, err
		}
		frames = append(frames, &f)
	}
	return frames, rows.Err()
}
