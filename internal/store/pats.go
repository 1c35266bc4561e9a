// ABOUTME: PAT store implementation for user-scoped token records
// ABOUTME: Stores SHA-256 digests only; rotation is a single revoke+insert transaction

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InsertPAT persists a new user-scoped token record.
func (s *SQLiteStore) InsertPAT(ctx context.Context, t *PAT) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pats (id, user_id, label, digest, scopes, expires_at, last_used, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID,
		t.UserID,
		t.Label,
		t.Digest,
		scopesToString(t.Scopes),
		nullTime(t.ExpiresAt),
		nullTime(t.LastUsed),
		boolToInt(t.Active),
		t.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("pat digest: %w", ErrDuplicate)
		}
		return fmt.Errorf("inserting pat: %w", err)
	}

	s.logger.Debug("created pat", "id", t.ID, "user", t.UserID, "label", t.Label)
	return nil
}

const patColumns = `id, user_id, label, digest, scopes, expires_at, last_used, is_active, created_at`

func scanPAT(row interface{ Scan(...any) error }) (*PAT, error) {
	var t PAT
	var scopes string
	var expiresAt, lastUsed sql.NullString
	var active int
	var createdAt string

	err := row.Scan(&t.ID, &t.UserID, &t.Label, &t.Digest, &scopes, &expiresAt, &lastUsed, &active, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning pat: %w", err)
	}

	t.Scopes = parseScopes(scopes)
	t.ExpiresAt = parseNullTime(expiresAt, "expires_at", t.ID)
	t.LastUsed = parseNullTime(lastUsed, "last_used", t.ID)
	t.Active = active != 0
	t.CreatedAt = parseTime(createdAt, "created_at", t.ID)
	return &t, nil
}

// GetPAT retrieves a token record by ID.
func (s *SQLiteStore) GetPAT(ctx context.Context, id string) (*PAT, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+patColumns+` FROM pats WHERE id = ?`, id)
	return scanPAT(row)
}

// FindPATByDigest looks up a token record by its secret digest. Revoked
// records are returned as-is; activity and expiry checks belong to the
// validator, which can then name the rejection reason.
func (s *SQLiteStore) FindPATByDigest(ctx context.Context, digest string) (*PAT, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+patColumns+` FROM pats WHERE digest = ?`, digest)
	return scanPAT(row)
}

// ListPATsByUser returns all token records owned by a user, newest first.
func (s *SQLiteStore) ListPATsByUser(ctx context.Context, userID string) ([]*PAT, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+patColumns+` FROM pats WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying pats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tokens []*PAT
	for rows.Next() {
		t, err := scanPAT(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pat rows: %w", err)
	}

	return tokens, nil
}

// SetPATActive flips the active flag. Revocation is idempotent: setting an
// already-inactive record inactive is not an error, but an unknown id is.
func (s *SQLiteStore) SetPATActive(ctx context.Context, id string, active bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE pats SET is_active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("updating pat active flag: %w", err)
	}
	return checkAffected(result)
}

// RotatePAT deactivates the record and inserts its replacement in one
// transaction. The replacement keeps the original's owner, label, scopes and
// expiry; only id and digest differ.
func (s *SQLiteStore) RotatePAT(ctx context.Context, id string, replacement *PAT) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `UPDATE pats SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivating pat: %w", err)
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
		INSERT INTO pats (id, user_id, label, digest, scopes, expires_at, last_used, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL, 1, ?)
	`,
		replacement.ID,
		replacement.UserID,
		replacement.Label,
		replacement.Digest,
		scopesToString(replacement.Scopes),
		nullTime(replacement.ExpiresAt),
		replacement.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting replacement pat: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing pat rotation: %w", err)
	}

	s.logger.Debug("rotated pat", "old_id", id, "new_id", replacement.ID)
	return nil
}

// TouchPAT records the last-used timestamp. Best effort; callers ignore errors.
func (s *SQLiteStore) TouchPAT(ctx context.Context, id string, when time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE pats SET last_used = ? WHERE id = ?`,
		when.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("touching pat: %w", err)
	}
	return nil
}

// DeletePAT removes a token record entirely.
func (s *SQLiteStore) DeletePAT(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM pats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting pat: %w", err)
	}
	return checkAffected(result)
}

// scopesToString serializes scopes for the comma-separated scopes column.
func scopesToString(scopes []Scope) string {
	if len(scopes) == 0 {
		return string(ScopeRead)
	}
	parts := make([]string, len(scopes))
	for i, sc := range scopes {
		parts[i] = string(sc)
	}
	return strings.Join(parts, ",")
}

// parseScopes deserializes the scopes column, dropping unknown values.
func parseScopes(raw string) []Scope {
	if raw == "" {
		return []Scope{ScopeRead}
	}
	var scopes []Scope
	for _, part := range strings.Split(raw, ",") {
		switch Scope(strings.TrimSpace(part)) {
		case ScopeRead:
			scopes = append(scopes, ScopeRead)
		case ScopeWrite:
			scopes = append(scopes, ScopeWrite)
		case ScopeAdmin:
			scopes = append(scopes, ScopeAdmin)
		}
	}
	if len(scopes) == 0 {
		return []Scope{ScopeRead}
	}
	return scopes
}

var _ PATStore = (*SQLiteStore)(nil)
