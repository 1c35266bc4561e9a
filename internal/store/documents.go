// ABOUTME: Document store implementation for stored documents within collections
// ABOUTME: Content hashes are SHA-256 and metadata is stored as a JSON column

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateDocument inserts a new document into its collection.
func (s *SQLiteStore) CreateDocument(ctx context.Context, d *Document) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.DocumentType == "" {
		d.DocumentType = "markdown"
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = now
	}

	metadataJSON, err := marshalMetadata(d.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO documents (id, collection_id, title, content, content_hash, document_type, metadata_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		d.ID,
		d.CollectionID,
		d.Title,
		d.Content,
		d.ContentHash,
		d.DocumentType,
		nullString(metadataJSON),
		d.CreatedAt.Format(time.RFC3339),
		d.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}

	s.logger.Debug("created document", "id", d.ID, "collection", d.CollectionID, "title", d.Title)
	return nil
}

const documentColumns = `id, collection_id, title, content, content_hash, document_type, metadata_json, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (*Document, error) {
	var d Document
	var metadataJSON sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&d.ID, &d.CollectionID, &d.Title, &d.Content, &d.ContentHash,
		&d.DocumentType, &metadataJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &d.Metadata); err != nil {
			return nil, fmt.Errorf("decoding document metadata: %w", err)
		}
	}
	d.CreatedAt = parseTime(createdAt, "created_at", d.ID)
	d.UpdatedAt = parseTime(updatedAt, "updated_at", d.ID)
	return &d, nil
}

// GetDocument retrieves a document by ID.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// ListDocuments returns documents in a collection ordered by creation time.
func (s *SQLiteStore) ListDocuments(ctx context.Context, collectionID string, limit, offset int) ([]*Document, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE collection_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		collectionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document rows: %w", err)
	}

	return docs, nil
}

// UpdateDocument replaces a document's title, content, hash, type and metadata.
func (s *SQLiteStore) UpdateDocument(ctx context.Context, d *Document) error {
	d.UpdatedAt = time.Now().UTC()

	metadataJSON, err := marshalMetadata(d.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE documents
		SET title = ?, content = ?, content_hash = ?, document_type = ?, metadata_json = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		d.Title,
		d.Content,
		d.ContentHash,
		d.DocumentType,
		nullString(metadataJSON),
		d.UpdatedAt.Format(time.RFC3339),
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("updating document: %w", err)
	}

	return checkAffected(result)
}

// DeleteDocument removes a document by ID.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return checkAffected(result)
}

// CountDocuments returns the number of documents in a collection.
func (s *SQLiteStore) CountDocuments(ctx context.Context, collectionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection_id = ?`, collectionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return count, nil
}

func marshalMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding document metadata: %w", err)
	}
	return string(data), nil
}

var _ DocumentStore = (*SQLiteStore)(nil)
