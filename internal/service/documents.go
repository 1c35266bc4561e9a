// ABOUTME: Document CRUD and keyword search, gated by collection access
// ABOUTME: Markdown content is flattened with goldmark for search excerpts

package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"

	"github.com/2389/vellum/internal/auth"
	"github.com/2389/vellum/internal/store"
)

// Document types accepted on write.
const (
	DocTypeMarkdown = "markdown"
	DocTypeText     = "text"
)

const excerptRadius = 80

// Documents implements document operations within collections.
type Documents struct {
	documents store.DocumentStore
	resolver  *auth.Resolver
	markdown  goldmark.Markdown
	logger    *slog.Logger
}

// NewDocuments creates the document service.
func NewDocuments(documents store.DocumentStore, resolver *auth.Resolver) *Documents {
	return &Documents{
		documents: documents,
		resolver:  resolver,
		markdown:  goldmark.New(),
		logger:    slog.Default().With("component", "documents"),
	}
}

// SearchResult is one search hit with a plain-text excerpt around the match.
type SearchResult struct {
	Document *store.Document
	Excerpt  string
}

// Create stores a new document. Requires write capability on the collection.
func (s *Documents) Create(ctx context.Context, a *auth.AuthContext, collectionID, title, content, docType string, metadata map[string]any) (*store.Document, error) {
	if err := s.resolver.RequireCollectionAccess(ctx, a, collectionID); err != nil {
		return nil, err
	}
	if err := auth.RequireWrite(a); err != nil {
		return nil, err
	}
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if docType == "" {
		docType = DocTypeMarkdown
	}
	if docType != DocTypeMarkdown && docType != DocTypeText {
		return nil, fmt.Errorf("%w: document type must be markdown or text", ErrInvalidInput)
	}

	doc := &store.Document{
		CollectionID: collectionID,
		Title:        title,
		Content:      content,
		ContentHash:  contentHash(content),
		DocumentType: docType,
		Metadata:     metadata,
	}
	if err := s.documents.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.Info("created document", "document_id", doc.ID, "collection_id", collectionID)
	return doc, nil
}

// Get fetches a document by id. Documents the caller cannot access are
// indistinguishable from nonexistent ones.
func (s *Documents) Get(ctx context.Context, a *auth.AuthContext, id string) (*store.Document, error) {
	return s.visibleDocument(ctx, a, id)
}

// List returns documents in a collection in reverse-chronological order.
func (s *Documents) List(ctx context.Context, a *auth.AuthContext, collectionID string, limit, offset int) ([]*store.Document, error) {
	if err := s.resolver.RequireCollectionAccess(ctx, a, collectionID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.documents.ListDocuments(ctx, collectionID, limit, offset)
}

// DocumentUpdate carries optional document changes.
type DocumentUpdate struct {
	Title    *string
	Content  *string
	Metadata map[string]any
}

// Update modifies a document. Requires write capability on its collection.
func (s *Documents) Update(ctx context.Context, a *auth.AuthContext, id string, update DocumentUpdate) (*store.Document, error) {
	doc, err := s.visibleDocument(ctx, a, id)
	if err != nil {
		return nil, err
	}
	if err := auth.RequireWrite(a); err != nil {
		return nil, err
	}

	if update.Title != nil {
		if *update.Title == "" {
			return nil, fmt.Errorf("%w: title cannot be empty", ErrInvalidInput)
		}
		doc.Title = *update.Title
	}
	if update.Content != nil {
		doc.Content = *update.Content
		doc.ContentHash = contentHash(*update.Content)
	}
	if update.Metadata != nil {
		doc.Metadata = update.Metadata
	}

	if err := s.documents.UpdateDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Delete removes a document. Requires write capability on its collection.
func (s *Documents) Delete(ctx context.Context, a *auth.AuthContext, id string) error {
	if _, err := s.visibleDocument(ctx, a, id); err != nil {
		return err
	}
	if err := auth.RequireWrite(a); err != nil {
		return err
	}
	if err := s.documents.DeleteDocument(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("document: %w", auth.ErrNotFound)
		}
		return err
	}
	s.logger.Info("deleted document", "document_id", id)
	return nil
}

// Search does a case-insensitive keyword scan over titles and content of one
// collection, returning excerpts of flattened plain text around the first
// match.
func (s *Documents) Search(ctx context.Context, a *auth.AuthContext, collectionID, query string, limit int) ([]*SearchResult, error) {
	if err := s.resolver.RequireCollectionAccess(ctx, a, collectionID); err != nil {
		return nil, err
	}
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	needle := strings.ToLower(query)
	var results []*SearchResult

	// Paged scan keeps memory bounded without needing an FTS index.
	const pageSize = 200
	for offset := 0; len(results) < limit; offset += pageSize {
		docs, err := s.documents.ListDocuments(ctx, collectionID, pageSize, offset)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			if len(results) >= limit {
				break
			}
			plain := doc.Content
			if doc.DocumentType == DocTypeMarkdown {
				plain = s.plainText(doc.Content)
			}
			if idx := strings.Index(strings.ToLower(plain), needle); idx >= 0 {
				results = append(results, &SearchResult{Document: doc, Excerpt: excerpt(plain, idx, len(query))})
			} else if strings.Contains(strings.ToLower(doc.Title), needle) {
				results = append(results, &SearchResult{Document: doc, Excerpt: excerpt(plain, 0, 0)})
			}
		}
		if len(docs) < pageSize {
			break
		}
	}
	return results, nil
}

// plainText flattens markdown to its text content by walking the parsed AST.
func (s *Documents) plainText(source string) string {
	src := []byte(source)
	root := s.markdown.Parser().Parse(gmtext.NewReader(src))

	var buf bytes.Buffer
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := n.(*ast.Text); ok {
			buf.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func excerpt(plain string, idx, matchLen int) string {
	start := idx - excerptRadius
	if start < 0 {
		start = 0
	}
	end := idx + matchLen + excerptRadius
	if end > len(plain) {
		end = len(plain)
	}
	out := strings.TrimSpace(plain[start:end])
	if start > 0 {
		out = "…" + out
	}
	if end < len(plain) {
		out += "…"
	}
	return out
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// visibleDocument loads a document and checks collection access. Access
// failures map to NotFound so existence is never leaked by id probing.
func (s *Documents) visibleDocument(ctx context.Context, a *auth.AuthContext, id string) (*store.Document, error) {
	doc, err := s.documents.GetDocument(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("document: %w", auth.ErrNotFound)
		}
		return nil, err
	}
	if err := s.resolver.RequireCollectionAccess(ctx, a, doc.CollectionID); err != nil {
		if errors.Is(err, auth.ErrForbidden) {
			return nil, fmt.Errorf("document: %w", auth.ErrNotFound)
		}
		return nil, err
	}
	return doc, nil
}
