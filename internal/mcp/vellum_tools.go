// ABOUTME: The built-in vellum tool set exposed over the tool protocol
// ABOUTME: Thin JSON adapters over the service layer; authorization happens in the registry and services

package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/2389/vellum/internal/auth"
	"github.com/2389/vellum/internal/service"
	"github.com/2389/vellum/internal/store"
)

// RegisterVellumTools populates the registry with the document, collection
// and credential tools backed by the service layer.
func RegisterVellumTools(reg *Registry, collections *service.Collections, documents *service.Documents, tokens *service.Tokens) {
	reg.Register(&Tool{
		Name:        "auth_status",
		Description: "Describe the credential used for this session",
		InputSchema: schema(`{"type":"object","properties":{}}`),
		Level:       LevelRead,
		Handler: func(_ context.Context, a *auth.AuthContext, _ json.RawMessage) (any, error) {
			out := map[string]any{
				"credential_kind": string(a.Kind),
				"is_admin":        a.Admin,
			}
			if a.UserID != "" {
				out["user_id"] = a.UserID
				out["username"] = a.Username
			}
			if a.CollectionID != "" {
				out["collection_id"] = a.CollectionID
				out["permission"] = string(a.Permission)
			}
			return out, nil
		},
	})

	reg.Register(&Tool{
		Name:        "list_collections",
		Description: "List the collections this credential can access",
		InputSchema: schema(`{"type":"object","properties":{}}`),
		Level:       LevelRead,
		Handler: func(ctx context.Context, a *auth.AuthContext, _ json.RawMessage) (any, error) {
			colls, err := collections.List(ctx, a)
			if err != nil {
				return nil, err
			}
			out := make([]map[string]any, len(colls))
			for i, c := range colls {
				out[i] = map[string]any{"id": c.ID, "name": c.Name}
			}
			return map[string]any{"collections": out}, nil
		},
	})

	reg.Register(&Tool{
		Name:        "create_collection",
		Description: "Create a new document collection owned by the calling user",
		InputSchema: schema(`{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`),
		Level:       LevelWrite,
		Handler: func(ctx context.Context, a *auth.AuthContext, args json.RawMessage) (any, error) {
			var in struct {
				Name string `json:"name"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
			}
			coll, err := collections.Create(ctx, a, in.Name)
			if err != nil {
				return nil, err
			}
			return map[string]any{"id": coll.ID, "name": coll.Name}, nil
		},
	})

	reg.Register(&Tool{
		Name:        "store_document",
		Description: "Store a document in a collection",
		InputSchema: schema(`{"type":"object","properties":{"collection_id":{"type":"string"},"title":{"type":"string"},"content":{"type":"string"},"document_type":{"type":"string","enum":["markdown","text"]},"metadata":{"type":"object"}},"required":["collection_id","title","content"]}`),
		Level:       LevelWrite,
		Handler: func(ctx context.Context, a *auth.AuthContext, args json.RawMessage) (any, error) {
			var in struct {
				CollectionID string         `json:"collection_id"`
				Title        string         `json:"title"`
				Content      string         `json:"content"`
				DocumentType string         `json:"document_type"`
				Metadata     map[string]any `json:"metadata"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
			}
			doc, err := documents.Create(ctx, a, boundCollection(a, in.CollectionID), in.Title, in.Content, in.DocumentType, in.Metadata)
			if err != nil {
				return nil, err
			}
			return map[string]any{"id": doc.ID, "title": doc.Title, "content_hash": doc.ContentHash}, nil
		},
	})

	reg.Register(&Tool{
		Name:        "get_document",
		Description: "Fetch a document by id",
		InputSchema: schema(`{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`),
		Level:       LevelRead,
		Handler: func(ctx context.Context, a *auth.AuthContext, args json.RawMessage) (any, error) {
			var in struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
			}
			doc, err := documents.Get(ctx, a, in.ID)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"id":            doc.ID,
				"collection_id": doc.CollectionID,
				"title":         doc.Title,
				"content":       doc.Content,
				"document_type": doc.DocumentType,
				"metadata":      doc.Metadata,
			}, nil
		},
	})

	reg.Register(&Tool{
		Name:        "list_documents",
		Description: "List documents in a collection",
		InputSchema: schema(`{"type":"object","properties":{"collection_id":{"type":"string"},"limit":{"type":"integer"},"offset":{"type":"integer"}}}`),
		Level:       LevelRead,
		Handler: func(ctx context.Context, a *auth.AuthContext, args json.RawMessage) (any, error) {
			var in struct {
				CollectionID string `json:"collection_id"`
				Limit        int    `json:"limit"`
				Offset       int    `json:"offset"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
			}
			docs, err := documents.List(ctx, a, boundCollection(a, in.CollectionID), in.Limit, in.Offset)
			if err != nil {
				return nil, err
			}
			out := make([]map[string]any, len(docs))
			for i, d := range docs {
				out[i] = map[string]any{"id": d.ID, "title": d.Title, "document_type": d.DocumentType}
			}
			return map[string]any{"documents": out}, nil
		},
	})

	reg.Register(&Tool{
		Name:        "search_documents",
		Description: "Keyword search over a collection's documents",
		InputSchema: schema(`{"type":"object","properties":{"collection_id":{"type":"string"},"query":{"type":"string"},"limit":{"type":"integer"}},"required":["query"]}`),
		Level:       LevelRead,
		Handler: func(ctx context.Context, a *auth.AuthContext, args json.RawMessage) (any, error) {
			var in struct {
				CollectionID string `json:"collection_id"`
				Query        string `json:"query"`
				Limit        int    `json:"limit"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
			}
			results, err := documents.Search(ctx, a, boundCollection(a, in.CollectionID), in.Query, in.Limit)
			if err != nil {
				return nil, err
			}
			out := make([]map[string]any, len(results))
			for i, res := range results {
				out[i] = map[string]any{
					"id":      res.Document.ID,
					"title":   res.Document.Title,
					"excerpt": res.Excerpt,
				}
			}
			return map[string]any{"results": out}, nil
		},
	})

	reg.Register(&Tool{
		Name:        "delete_document",
		Description: "Delete a document by id",
		InputSchema: schema(`{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`),
		Level:       LevelWrite,
		Handler: func(ctx context.Context, a *auth.AuthContext, args json.RawMessage) (any, error) {
			var in struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
			}
			if err := documents.Delete(ctx, a, in.ID); err != nil {
				return nil, err
			}
			return map[string]any{"deleted": true}, nil
		},
	})

	reg.Register(&Tool{
		Name:        "create_collection_token",
		Description: "Mint a collection access token bound to one collection",
		InputSchema: schema(`{"type":"object","properties":{"collection_id":{"type":"string"},"label":{"type":"string"},"permission":{"type":"string","enum":["read","read_write"]},"expires_in_days":{"type":"integer"}},"required":["collection_id","label","permission"]}`),
		Level:       LevelWrite,
		Handler: func(ctx context.Context, a *auth.AuthContext, args json.RawMessage) (any, error) {
			var in struct {
				CollectionID  string `json:"collection_id"`
				Label         string `json:"label"`
				Permission    string `json:"permission"`
				ExpiresInDays int    `json:"expires_in_days"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
			}
			created, err := tokens.CreateCAT(ctx, a, in.CollectionID, in.Label, store.Permission(in.Permission), in.ExpiresInDays)
			if err != nil {
				return nil, err
			}
			// The raw secret appears here and nowhere else.
			return map[string]any{"id": created.CAT.ID, "token": created.Secret}, nil
		},
	})

	reg.Register(&Tool{
		Name:        "revoke_collection_token",
		Description: "Revoke a collection access token",
		InputSchema: schema(`{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`),
		Level:       LevelWrite,
		Handler: func(ctx context.Context, a *auth.AuthContext, args json.RawMessage) (any, error) {
			var in struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
			}
			if err := tokens.RevokeCAT(ctx, a, in.ID); err != nil {
				return nil, err
			}
			return map[string]any{"revoked": true}, nil
		},
	})

	reg.Register(&Tool{
		Name:        "rotate_collection_token",
		Description: "Rotate a collection access token, revoking the old secret",
		InputSchema: schema(`{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`),
		Level:       LevelWrite,
		Handler: func(ctx context.Context, a *auth.AuthContext, args json.RawMessage) (any, error) {
			var in struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
			}
			created, err := tokens.RotateCAT(ctx, a, in.ID)
			if err != nil {
				return nil, err
			}
			return map[string]any{"id": created.CAT.ID, "token": created.Secret}, nil
		},
	})

	reg.Register(&Tool{
		Name:        "delete_collection",
		Description: "Delete a collection; fails while active tokens are still bound to it",
		InputSchema: schema(`{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`),
		// Same gate as the conventional API: the service restricts the
		// delete to the collection's owner or an admin.
		Level: LevelWrite,
		Handler: func(ctx context.Context, a *auth.AuthContext, args json.RawMessage) (any, error) {
			var in struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
			}
			if err := collections.Delete(ctx, a, in.ID); err != nil {
				return nil, err
			}
			return map[string]any{"deleted": true}, nil
		},
	})
}

// boundCollection defaults to the credential's bound collection when the
// caller omits one, which is the common case for CAT and legacy clients.
func boundCollection(a *auth.AuthContext, requested string) string {
	if requested == "" {
		return a.CollectionID
	}
	return requested
}

func schema(s string) json.RawMessage {
	return json.RawMessage(s)
}
