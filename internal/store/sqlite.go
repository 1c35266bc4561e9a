// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides user/collection/document/token persistence with automatic schema creation

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			is_active     INTEGER NOT NULL DEFAULT 1,
			is_admin      INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
		CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);

		CREATE TABLE IF NOT EXISTS collections (
			id         TEXT PRIMARY KEY,
			owner_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name       TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			UNIQUE(owner_id, name)
		);

		CREATE INDEX IF NOT EXISTS idx_collections_owner ON collections(owner_id);

		-- documents.collection_id is deliberately not a foreign key: legacy
		-- tokens write into collections derived from the credential itself,
		-- which have no collections row.
		CREATE TABLE IF NOT EXISTS documents (
			id            TEXT PRIMARY KEY,
			collection_id TEXT NOT NULL,
			title         TEXT NOT NULL,
			content       TEXT NOT NULL,
			content_hash  TEXT NOT NULL,
			document_type TEXT NOT NULL DEFAULT 'markdown',
			metadata_json TEXT,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection_id);
		CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash);

		CREATE TABLE IF NOT EXISTS pats (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			label      TEXT NOT NULL,
			digest     TEXT NOT NULL UNIQUE,
			scopes     TEXT NOT NULL DEFAULT 'read',
			expires_at TEXT,
			last_used  TEXT,
			is_active  INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_pats_user ON pats(user_id);
		CREATE INDEX IF NOT EXISTS idx_pats_digest ON pats(digest);

		CREATE TABLE IF NOT EXISTS cats (
			id            TEXT PRIMARY KEY,
			collection_id TEXT NOT NULL REFERENCES collections(id),
			created_by    TEXT,
			label         TEXT NOT NULL,
			digest        TEXT NOT NULL UNIQUE,
			permission    TEXT NOT NULL DEFAULT 'read_write',
			expires_at    TEXT,
			last_used     TEXT,
			is_active     INTEGER NOT NULL DEFAULT 1,
			created_at    TEXT NOT NULL,

			CHECK (permission IN ('read', 'read_write'))
		);

		CREATE INDEX IF NOT EXISTS idx_cats_collection ON cats(collection_id);
		CREATE INDEX IF NOT EXISTS idx_cats_digest ON cats(digest);
		CREATE INDEX IF NOT EXISTS idx_cats_active ON cats(collection_id, is_active);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}

	return nil
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed")
}

// nullString returns nil for empty strings, otherwise the string itself
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullTime returns nil for nil times, otherwise the RFC3339 representation
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses an RFC3339 timestamp, logging and returning the zero time on failure
func parseTime(raw, field, id string) time.Time {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		slog.Warn("failed to parse stored timestamp", "field", field, "id", id, "error", err)
		return time.Time{}
	}
	return t
}

// parseNullTime converts a nullable timestamp column into *time.Time
func parseNullTime(raw sql.NullString, field, id string) *time.Time {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	t := parseTime(raw.String, field, id)
	if t.IsZero() {
		return nil
	}
	return &t
}

// Ensure SQLiteStore implements the full Store surface.
var _ Store = (*SQLiteStore)(nil)
