// ABOUTME: CAT store implementation for collection-scoped token records
// ABOUTME: Provides digest lookup, the active-by-collection query and transactional rotation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertCAT persists a new collection-scoped token record.
func (s *SQLiteStore) InsertCAT(ctx context.Context, t *CAT) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Permission == "" {
		t.Permission = PermissionReadWrite
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cats (id, collection_id, created_by, label, digest, permission, expires_at, last_used, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID,
		t.CollectionID,
		nullString(t.CreatedBy),
		t.Label,
		t.Digest,
		string(t.Permission),
		nullTime(t.ExpiresAt),
		nullTime(t.LastUsed),
		boolToInt(t.Active),
		t.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("cat digest: %w", ErrDuplicate)
		}
		return fmt.Errorf("inserting cat: %w", err)
	}

	s.logger.Debug("created cat", "id", t.ID, "collection", t.CollectionID, "label", t.Label)
	return nil
}

const catColumns = `id, collection_id, created_by, label, digest, permission, expires_at, last_used, is_active, created_at`

func scanCAT(row interface{ Scan(...any) error }) (*CAT, error) {
	var t CAT
	var createdBy, expiresAt, lastUsed sql.NullString
	var permission string
	var active int
	var createdAt string

	err := row.Scan(&t.ID, &t.CollectionID, &createdBy, &t.Label, &t.Digest,
		&permission, &expiresAt, &lastUsed, &active, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning cat: %w", err)
	}

	if createdBy.Valid {
		t.CreatedBy = createdBy.String
	}
	t.Permission = Permission(permission)
	t.ExpiresAt = parseNullTime(expiresAt, "expires_at", t.ID)
	t.LastUsed = parseNullTime(lastUsed, "last_used", t.ID)
	t.Active = active != 0
	t.CreatedAt = parseTime(createdAt, "created_at", t.ID)
	return &t, nil
}

// GetCAT retrieves a token record by ID.
func (s *SQLiteStore) GetCAT(ctx context.Context, id string) (*CAT, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+catColumns+` FROM cats WHERE id = ?`, id)
	return scanCAT(row)
}

// FindCATByDigest looks up a token record by its secret digest. Revoked
// records are returned as-is; the validator decides what they mean.
func (s *SQLiteStore) FindCATByDigest(ctx context.Context, digest string) (*CAT, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+catColumns+` FROM cats WHERE digest = ?`, digest)
	return scanCAT(row)
}

// ListCATsByUser returns token records created by the given user.
func (s *SQLiteStore) ListCATsByUser(ctx context.Context, userID string) ([]*CAT, error) {
	return s.listCATs(ctx, `created_by = ?`, userID)
}

// ListCATsByCollection returns all token records bound to a collection.
func (s *SQLiteStore) ListCATsByCollection(ctx context.Context, collectionID string) ([]*CAT, error) {
	return s.listCATs(ctx, `collection_id = ?`, collectionID)
}

// FindActiveCATsByCollection returns active token records bound to a
// collection. The collection deletion guard is built on this query.
func (s *SQLiteStore) FindActiveCATsByCollection(ctx context.Context, collectionID string) ([]*CAT, error) {
	return s.listCATs(ctx, `collection_id = ? AND is_active = 1`, collectionID)
}

func (s *SQLiteStore) listCATs(ctx context.Context, where string, args ...any) ([]*CAT, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+catColumns+` FROM cats WHERE `+where+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying cats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tokens []*CAT
	for rows.Next() {
		t, err := scanCAT(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cat rows: %w", err)
	}

	return tokens, nil
}

// SetCATActive flips the active flag. Revocation is idempotent.
func (s *SQLiteStore) SetCATActive(ctx context.Context, id string, active bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE cats SET is_active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("updating cat active flag: %w", err)
	}
	return checkAffected(result)
}

// RotateCAT deactivates the record and inserts its replacement in one
// transaction, preserving collection binding, label, permission and expiry.
func (s *SQLiteStore) RotateCAT(ctx context.Context, id string, replacement *CAT) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `UPDATE cats SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivating cat: %w", err)
	}
	if err := checkAffected(result); err != nil {
		return err
	}

	if replacement.ID == "" {
		replacement.ID = uuid.New().String()
	}
	if replacement.CreatedAt.IsZero() {
		replacement.CreatedAt = time.Now().UTC()
	}
	replacement.Active = true

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cats (id, collection_id, created_by, label, digest, permission, expires_at, last_used, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, 1, ?)
	`,
		replacement.ID,
		replacement.CollectionID,
		nullString(replacement.CreatedBy),
		replacement.Label,
		replacement.Digest,
		string(replacement.Permission),
		nullTime(replacement.ExpiresAt),
		replacement.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting replacement cat: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing cat rotation: %w", err)
	}

	s.logger.Debug("rotated cat", "old_id", id, "new_id", replacement.ID)
	return nil
}

// TouchCAT records the last-used timestamp. Best effort; callers ignore errors.
func (s *SQLiteStore) TouchCAT(ctx context.Context, id string, when time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE cats SET last_used = ? WHERE id = ?`,
		when.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("touching cat: %w", err)
	}
	return nil
}

// DeleteCAT removes a token record entirely.
func (s *SQLiteStore) DeleteCAT(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM cats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting cat: %w", err)
	}
	return checkAffected(result)
}

var _ CATStore = (*SQLiteStore)(nil)
