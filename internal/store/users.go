// ABOUTME: User store implementation for account records
// ABOUTME: Handles creation, lookup, admin/active flags and cascade deletion

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateUser inserts a new user. Email and username must be globally unique;
// a violation returns ErrDuplicate.
func (s *SQLiteStore) CreateUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}

	query := `
		INSERT INTO users (id, email, username, password_hash, is_active, is_admin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		u.ID,
		u.Email,
		u.Username,
		u.PasswordHash,
		boolToInt(u.Active),
		boolToInt(u.Admin),
		u.CreatedAt.Format(time.RFC3339),
		u.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("user %q: %w", u.Username, ErrDuplicate)
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	s.logger.Debug("created user", "id", u.ID, "username", u.Username)
	return nil
}

const userColumns = `id, email, username, password_hash, is_active, is_admin, created_at, updated_at`

// scanUser scans a single user row.
func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	var active, admin int
	var createdAt, updatedAt string

	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &active, &admin, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.Active = active != 0
	u.Admin = admin != 0
	u.CreatedAt = parseTime(createdAt, "created_at", u.ID)
	u.UpdatedAt = parseTime(updatedAt, "updated_at", u.ID)
	return &u, nil
}

// GetUser retrieves a user by ID. Returns ErrNotFound if absent.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

// UpdateUser updates a user's mutable fields (email, username, password hash,
// active and admin flags). Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) UpdateUser(ctx context.Context, u *User) error {
	u.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE users
		SET email = ?, username = ?, password_hash = ?, is_active = ?, is_admin = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		u.Email,
		u.Username,
		u.PasswordHash,
		boolToInt(u.Active),
		boolToInt(u.Admin),
		u.UpdatedAt.Format(time.RFC3339),
		u.ID,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("user %q: %w", u.Username, ErrDuplicate)
		}
		return fmt.Errorf("updating user: %w", err)
	}

	return checkAffected(result)
}

// SetUserAdmin flips the admin flag on a user.
func (s *SQLiteStore) SetUserAdmin(ctx context.Context, id string, admin bool) error {
	return s.setUserFlag(ctx, id, "is_admin", admin)
}

// SetUserActive flips the active flag on a user. Deactivation takes effect on
// the next credential resolution for that user.
func (s *SQLiteStore) SetUserActive(ctx context.Context, id string, active bool) error {
	return s.setUserFlag(ctx, id, "is_active", active)
}

func (s *SQLiteStore) setUserFlag(ctx context.Context, id, column string, value bool) error {
	// column is one of the two fixed flag names above, never caller input
	query := fmt.Sprintf(`UPDATE users SET %s = ?, updated_at = ? WHERE id = ?`, column)

	result, err := s.db.ExecContext(ctx, query,
		boolToInt(value),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating user flag: %w", err)
	}

	if err := checkAffected(result); err != nil {
		return err
	}

	s.logger.Debug("updated user flag", "id", id, "flag", column, "value", value)
	return nil
}

// ListUsers returns users matching the filter, ordered by creation time.
func (s *SQLiteStore) ListUsers(ctx context.Context, filter UserFilter) ([]*User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any

	if filter.Query != "" {
		query += ` WHERE username LIKE ? OR email LIKE ?`
		pattern := "%" + filter.Query + "%"
		args = append(args, pattern, pattern)
	}

	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user rows: %w", err)
	}

	return users, nil
}

// CountAdmins returns the number of users with the admin flag set.
// The bootstrap policy uses this to detect the zero-admin state.
func (s *SQLiteStore) CountAdmins(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE is_admin = 1`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting admins: %w", err)
	}
	return count, nil
}

// DeleteUser removes a user. Collections, documents and PATs cascade via
// foreign keys; CATs bound to the user's collections are removed explicitly
// since they reference collections without cascade.
func (s *SQLiteStore) DeleteUser(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM cats WHERE collection_id IN (SELECT id FROM collections WHERE owner_id = ?)`, id); err != nil {
		return fmt.Errorf("deleting user's collection tokens: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM documents WHERE collection_id IN (SELECT id FROM collections WHERE owner_id = ?)`, id); err != nil {
		return fmt.Errorf("deleting user's documents: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if err := checkAffected(result); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing user deletion: %w", err)
	}

	s.logger.Debug("deleted user", "id", id)
	return nil
}

// boolToInt converts a bool to the 0/1 representation used in SQLite.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// checkAffected converts a zero-rows-affected result into ErrNotFound.
func checkAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

var _ UserStore = (*SQLiteStore)(nil)
