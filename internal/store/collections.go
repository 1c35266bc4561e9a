// ABOUTME: Collection store implementation for named document partitions
// ABOUTME: Collections are owned by exactly one user and unique by (owner, name)

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateCollection inserts a new collection. A name already used by the same
// owner returns ErrDuplicate.
func (s *SQLiteStore) CreateCollection(ctx context.Context, c *Collection) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}

	query := `
		INSERT INTO collections (id, owner_id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		c.ID,
		c.OwnerID,
		c.Name,
		c.CreatedAt.Format(time.RFC3339),
		c.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("collection %q: %w", c.Name, ErrDuplicate)
		}
		return fmt.Errorf("inserting collection: %w", err)
	}

	s.logger.Debug("created collection", "id", c.ID, "owner", c.OwnerID, "name", c.Name)
	return nil
}

const collectionColumns = `id, owner_id, name, created_at, updated_at`

func scanCollection(row interface{ Scan(...any) error }) (*Collection, error) {
	var c Collection
	var createdAt, updatedAt string

	err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning collection: %w", err)
	}

	c.CreatedAt = parseTime(createdAt, "created_at", c.ID)
	c.UpdatedAt = parseTime(updatedAt, "updated_at", c.ID)
	return &c, nil
}

// GetCollection retrieves a collection by ID.
func (s *SQLiteStore) GetCollection(ctx context.Context, id string) (*Collection, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+collectionColumns+` FROM collections WHERE id = ?`, id)
	return scanCollection(row)
}

// GetCollectionByName retrieves a collection by its owner and name.
func (s *SQLiteStore) GetCollectionByName(ctx context.Context, ownerID, name string) (*Collection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE owner_id = ? AND name = ?`, ownerID, name)
	return scanCollection(row)
}

// ListCollectionsByOwner returns all collections owned by the given user.
func (s *SQLiteStore) ListCollectionsByOwner(ctx context.Context, ownerID string) ([]*Collection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE owner_id = ? ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying collections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var collections []*Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		collections = append(collections, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating collection rows: %w", err)
	}

	return collections, nil
}

// RenameCollection updates a collection's display name.
func (s *SQLiteStore) RenameCollection(ctx context.Context, id, name string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE collections SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("collection %q: %w", name, ErrDuplicate)
		}
		return fmt.Errorf("renaming collection: %w", err)
	}
	return checkAffected(result)
}

// DeleteCollection removes a collection and its documents. Callers must check
// for active collection tokens first; the service layer enforces that guard.
func (s *SQLiteStore) DeleteCollection(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cats WHERE collection_id = ?`, id); err != nil {
		return fmt.Errorf("deleting collection tokens: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection_id = ?`, id); err != nil {
		return fmt.Errorf("deleting collection documents: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	if err := checkAffected(result); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing collection deletion: %w", err)
	}

	s.logger.Debug("deleted collection", "id", id)
	return nil
}

var _ CollectionStore = (*SQLiteStore)(nil)
