package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/gordon8018/ai-devops/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Event is one advisory audit record. The event log exists for operators
// and the status command; dispatch correctness never depends on it.
type Event struct {
	ID        string    `json:"id"`
	PlanID    string    `json:"planId"`
	SubtaskID string    `json:"subtaskId,omitempty"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventStore is the SQLite-backed append-only event log.
type EventStore struct {
	db   *sql.DB
	path string
}

// NewEventStore creates an event store writing to the given database file.
func NewEventStore(path string) (*EventStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &EventStore{path: path}, nil
}

// Init opens the database with WAL mode and a busy timeout, then runs the
// embedded migrations.
func (s *EventStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", s.path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	s.db = db
	return s.migrate()
}

// Close closes the database connection.
func (s *EventStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *EventStore) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// RecordEvent appends one event. Implements engine.EventRecorder.
func (s *EventStore) RecordEvent(ctx context.Context, planID, subtaskID, kind, detail string) error {
	if s.db == nil {
		return fmt.Errorf("event store not initialized")
	}
	query := `
		INSERT INTO events (id, plan_id, subtask_id, kind, detail, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.NewString(),
		planID,
		subtaskID,
		kind,
		detail,
		time.Now().UTC().Format("2006-01-02 15:04:05.000"),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// ListEvents returns events newest first, optionally filtered by plan.
func (s *EventStore) ListEvents(ctx context.Context, planID string, limit int) ([]*Event, error) {
	if s.db == nil {
		return nil, fmt.Errorf("event store not initialized")
	}
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, plan_id, subtask_id, kind, detail, timestamp
		FROM events
		WHERE (? = '' OR plan_id = ?)
		ORDER BY timestamp DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, planID, planID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		event := &Event{}
		var ts string
		if err := rows.Scan(&event.ID, &event.PlanID, &event.SubtaskID, &event.Kind, &event.Detail, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if parsed, err := time.Parse("2006-01-02 15:04:05.000", ts); err == nil {
			event.Timestamp = parsed
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *EventStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("event store not initialized")
	}
	return s.db.PingContext(ctx)
}

var _ engine.EventRecorder = (*EventStore)(nil)
