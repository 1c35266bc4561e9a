// ABOUTME: Collection operations: create, list, rename, delete
// ABOUTME: Deletion is refused while active collection tokens are still bound

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/vellum/internal/auth"
	"github.com/2389/vellum/internal/store"
)

// ErrCollectionHasActiveTokens is returned when deleting a collection that
// still has active collection tokens bound to it. Revoke them first.
var ErrCollectionHasActiveTokens = fmt.Errorf("%w: collection has active tokens; revoke them before deleting", auth.ErrConflict)

// Collections implements collection operations over the store, gated by a
// resolved AuthContext.
type Collections struct {
	collections store.CollectionStore
	documents   store.DocumentStore
	cats        store.CATStore
	resolver    *auth.Resolver
	logger      *slog.Logger
}

// NewCollections creates the collection service.
func NewCollections(collections store.CollectionStore, documents store.DocumentStore, cats store.CATStore, resolver *auth.Resolver) *Collections {
	return &Collections{
		collections: collections,
		documents:   documents,
		cats:        cats,
		resolver:    resolver,
		logger:      slog.Default().With("component", "collections"),
	}
}

// CollectionInfo is a collection with its document count.
type CollectionInfo struct {
	Collection    *store.Collection
	DocumentCount int
}

// Create makes a new collection owned by the calling user. Names are unique
// per owner.
func (s *Collections) Create(ctx context.Context, a *auth.AuthContext, name string) (*store.Collection, error) {
	if a == nil || !a.IsUserScoped() {
		return nil, fmt.Errorf("%w: a user account is required to create collections", auth.ErrForbidden)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	coll := &store.Collection{OwnerID: a.UserID, Name: name}
	if err := s.collections.CreateCollection(ctx, coll); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: a collection named %q already exists", auth.ErrConflict, name)
		}
		return nil, err
	}

	s.logger.Info("created collection", "collection_id", coll.ID, "owner_id", a.UserID, "name", name)
	return coll, nil
}

// List returns the caller's collections. A collection-scoped context sees
// only its bound collection.
func (s *Collections) List(ctx context.Context, a *auth.AuthContext) ([]*store.Collection, error) {
	if a == nil {
		return nil, auth.ErrUnauthenticated
	}
	if a.CollectionID != "" {
		coll, err := s.collections.GetCollection(ctx, a.CollectionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return []*store.Collection{}, nil
			}
			return nil, err
		}
		return []*store.Collection{coll}, nil
	}
	if !a.IsUserScoped() {
		return nil, fmt.Errorf("%w: a user account is required", auth.ErrForbidden)
	}
	return s.collections.ListCollectionsByOwner(ctx, a.UserID)
}

// Get returns a collection with its document count. The caller must have
// access to the collection.
func (s *Collections) Get(ctx context.Context, a *auth.AuthContext, id string) (*CollectionInfo, error) {
	if err := s.resolver.RequireCollectionAccess(ctx, a, id); err != nil {
		return nil, err
	}
	coll, err := s.collections.GetCollection(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("collection: %w", auth.ErrNotFound)
		}
		return nil, err
	}
	count, err := s.documents.CountDocuments(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CollectionInfo{Collection: coll, DocumentCount: count}, nil
}

// Rename changes a collection's name. Owner or admin only.
func (s *Collections) Rename(ctx context.Context, a *auth.AuthContext, id, name string) (*store.Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	coll, err := s.ownedCollection(ctx, a, id)
	if err != nil {
		return nil, err
	}

	if err := s.collections.RenameCollection(ctx, id, name); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: a collection named %q already exists", auth.ErrConflict, name)
		}
		return nil, err
	}
	coll.Name = name
	return coll, nil
}

// Delete removes a collection and its documents. The delete is refused while
// any active collection token is still bound to it, so credentials can never
// dangle into a recreated collection.
func (s *Collections) Delete(ctx context.Context, a *auth.AuthContext, id string) error {
	if _, err := s.ownedCollection(ctx, a, id); err != nil {
		return err
	}

	active, err := s.cats.FindActiveCATsByCollection(ctx, id)
	if err != nil {
		return err
	}
	if len(active) > 0 {
		return ErrCollectionHasActiveTokens
	}

	if err := s.collections.DeleteCollection(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("collection: %w", auth.ErrNotFound)
		}
		return err
	}

	s.logger.Info("deleted collection", "collection_id", id)
	return nil
}

// ownedCollection loads a collection the caller may manage: its owner or an
// admin.
func (s *Collections) ownedCollection(ctx context.Context, a *auth.AuthContext, id string) (*store.Collection, error) {
	if a == nil || (!a.IsUserScoped() && !a.Admin) {
		return nil, fmt.Errorf("%w: a user account is required", auth.ErrForbidden)
	}
	coll, err := s.collections.GetCollection(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("collection: %w", auth.ErrNotFound)
		}
		return nil, err
	}
	if err := auth.RequireOwnerOrAdmin(a, coll.OwnerID); err != nil {
		return nil, err
	}
	return coll, nil
}
