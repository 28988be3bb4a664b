package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Fullex26/framecore/pkg/models"
	_ "modernc.org/sqlite"
)

const DefaultDBPath = "/var/lib/framecore/journal.db"

// Store journals routed events in SQLite
type Store struct {
	db *sql.DB
}

// Open creates or opens the SQLite database
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			source TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			message TEXT,
			payload TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
		CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);

		CREATE TABLE IF NOT EXISTS state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	return err
}

const insertEvent = `
	INSERT OR REPLACE INTO events (id, type, source, timestamp, message, payload)
	VALUES (?, ?, ?, ?, ?, ?)`

// SaveEvent persists one event
func (s *Store) SaveEvent(event models.Event) error {
	return s.SaveEvents([]models.Event{event})
}

// SaveEvents persists a batch in a single transaction
func (s *Store) SaveEvents(events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertEvent)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("encoding event %s: %w", event.ID, err)
		}
		if _, err := stmt.Exec(
			event.ID, event.Type.String(), event.Source, event.Timestamp.UTC(),
			event.Message, string(payload),
		); err != nil {
			return fmt.Errorf("saving event %s: %w", event.ID, err)
		}
	}

	return tx.Commit()
}

// GetRecentEvents returns up to limit events from the last N hours, newest first
func (s *Store) GetRecentEvents(hours, limit int) ([]models.Event, error) {
	since := time.Now().Add(-time.Duration(hours) * time.Hour).UTC()
	rows, err := s.db.Query(`
		SELECT payload FROM events
		WHERE timestamp > ?
		ORDER BY timestamp DESC
		LIMIT ?`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			continue
		}
		var event models.Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// GetEventCount returns the number of events in the last N hours
func (s *Store) GetEventCount(hours int) (int, error) {
	since := time.Now().Add(-time.Duration(hours) * time.Hour).UTC()
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM events WHERE timestamp > ?`, since).Scan(&count)
	return count, err
}

// CountByType returns event counts per type name over the last N hours
func (s *Store) CountByType(hours int) (map[string]int, error) {
	since := time.Now().Add(-time.Duration(hours) * time.Hour).UTC()
	rows, err := s.db.Query(`
		SELECT type, COUNT(*) FROM events
		WHERE timestamp > ?
		GROUP BY type`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		counts[typ] = n
	}
	return counts, rows.Err()
}

// SetState stores a key-value pair
func (s *Store) SetState(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO state (key, value) VALUES (?, ?)`, key, value)
	return err
}

// GetState retrieves a stored value
func (s *Store) GetState(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	return value, err
}

// Prune removes events older than N days
func (s *Store) Prune(days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days).UTC()
	result, err := s.db.Exec(`DELETE FROM events WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
