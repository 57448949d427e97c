package auditlog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// ErrHistoryDisabled is returned when no SQLite path is configured
var ErrHistoryDisabled = errors.New("decision history is disabled (log.sqlite_path is empty)")

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TIMESTAMP NOT NULL,
	message_id TEXT NOT NULL DEFAULT '',
	sender TEXT NOT NULL DEFAULT '',
	subject TEXT NOT NULL DEFAULT '',
	classification TEXT NOT NULL,
	action_type TEXT NOT NULL,
	action_reason TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_decisions_timestamp ON decisions(timestamp);
CREATE INDEX IF NOT EXISTS idx_decisions_action_type ON decisions(action_type);
`

// Store mirrors audit entries into SQLite
type Store struct {
	db *sqlx.DB
}

// OpenStore opens (and migrates) the database at path
func OpenStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, ErrHistoryDisabled
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Insert stores one entry
func (s *Store) Insert(ctx context.Context, entry Entry) error {
	query := `
		INSERT INTO decisions (timestamp, message_id, sender, subject, classification, action_type, action_reason)
		VALUES (:timestamp, :message_id, :sender, :subject, :classification, :action_type, :action_reason)
	`
	if _, err := s.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	query := `
		SELECT timestamp, message_id, sender, subject, classification, action_type, action_reason
		FROM decisions
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`

	var entries []Entry
	if err := s.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	return entries, nil
}

// CountByAction returns the number of entries per action type
func (s *Store) CountByAction(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		ActionType string `db:"action_type"`
		Count      int    `db:"count"`
	}
	query := `SELECT action_type, COUNT(*) AS count FROM decisions GROUP BY action_type`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count decisions: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.ActionType] = row.Count
	}
	return counts, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
