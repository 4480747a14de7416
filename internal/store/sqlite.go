// Package store keeps the local index of processed messages. The index
// lets scheduled re-runs skip mail that already has a verdict, and keeps
// a queryable audit trail of every decision.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// MessageRecord is one processed message with its verdict.
type MessageRecord struct {
	UID         uint32    `db:"uid"`
	MessageID   string    `db:"message_id"`
	Subject     string    `db:"subject"`
	PassThrough bool      `db:"pass_through"`
	Reason      string    `db:"reason"`
	Detail      string    `db:"detail"`
	ArchivePath string    `db:"archive_path"`
	RunID       string    `db:"run_id"`
	ProcessedAt time.Time `db:"processed_at"`
}

// SQLiteStore implements the message index using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// IsProcessed reports whether a verdict is already recorded for the UID.
func (s *SQLiteStore) IsProcessed(ctx context.Context, uid uint32) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM messages WHERE uid = ?", uid)
	if err != nil {
		return false, fmt.Errorf("checking message %d: %w", uid, err)
	}
	return count > 0, nil
}

// RecordMessage inserts or replaces the record for one message.
func (s *SQLiteStore) RecordMessage(ctx context.Context, rec MessageRecord) error {
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = time.Now()
	}

	const query = `
		INSERT OR REPLACE INTO messages (
			uid, message_id, subject,
			pass_through, reason, detail,
			archive_path, run_id, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		rec.UID, rec.MessageID, rec.Subject,
		rec.PassThrough, rec.Reason, rec.Detail,
		rec.ArchivePath, rec.RunID, rec.ProcessedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording message %d: %w", rec.UID, err)
	}
	return nil
}

// RecentRecords returns the most recently processed messages, newest first.
func (s *SQLiteStore) RecentRecords(ctx context.Context, limit int) ([]MessageRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var records []MessageRecord
	err := s.db.SelectContext(ctx, &records,
		"SELECT * FROM messages ORDER BY processed_at DESC, uid DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent records: %w", err)
	}
	return records, nil
}
