// ABOUTME: Credential lifecycle: create, list, revoke and rotate PATs and CATs
// ABOUTME: Raw secrets are returned exactly once at creation; only digests persist

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/vellum/internal/auth"
	"github.com/2389/vellum/internal/store"
)

// Default and maximum token lifetimes in days. A zero requested lifetime
// means "use the default"; requests beyond the maximum are clamped.
const (
	DefaultPATExpiryDays = 90
	DefaultCATExpiryDays = 180
	MaxTokenExpiryDays   = 365
)

// Tokens implements PAT and CAT lifecycle operations. All operations are
// parameterized by a resolved AuthContext; record discovery is scoped so a
// caller only ever sees records they have rights to see.
type Tokens struct {
	pats        store.PATStore
	cats        store.CATStore
	collections store.CollectionStore
	logger      *slog.Logger
}

// NewTokens creates the token lifecycle service.
func NewTokens(pats store.PATStore, cats store.CATStore, collections store.CollectionStore) *Tokens {
	return &Tokens{
		pats:        pats,
		cats:        cats,
		collections: collections,
		logger:      slog.Default().With("component", "tokens"),
	}
}

// CreatedPAT pairs a stored PAT with its raw secret. The secret is available
// only from this value; it is never persisted or shown again.
type CreatedPAT struct {
	PAT    *store.PAT
	Secret string
}

// CreatedCAT pairs a stored CAT with its raw secret.
type CreatedCAT struct {
	CAT    *store.CAT
	Secret string
}

// CreatePAT mints a personal access token for the calling user. The token
// inherits the caller's scope set; requested scopes outside that set are
// dropped. Requires a user-scoped context.
func (s *Tokens) CreatePAT(ctx context.Context, a *auth.AuthContext, label string, scopes []store.Scope, expiresInDays int) (*CreatedPAT, error) {
	if a == nil || !a.IsUserScoped() {
		return nil, fmt.Errorf("%w: a user account is required to create personal tokens", auth.ErrForbidden)
	}
	if label == "" {
		return nil, fmt.Errorf("%w: label is required", ErrInvalidInput)
	}

	scopes = clampScopes(a, scopes)
	raw, err := auth.NewPATSecret()
	if err != nil {
		return nil, err
	}

	pat := &store.PAT{
		UserID:    a.UserID,
		Label:     label,
		Digest:    auth.Digest(raw),
		Scopes:    scopes,
		Active:    true,
		ExpiresAt: expiryFromDays(expiresInDays, DefaultPATExpiryDays),
	}
	if err := s.pats.InsertPAT(ctx, pat); err != nil {
		return nil, fmt.Errorf("storing token: %w", err)
	}

	s.logger.Info("created PAT", "token_id", pat.ID, "user_id", a.UserID, "label", label)
	return &CreatedPAT{PAT: pat, Secret: raw}, nil
}

// ListPATs returns the caller's own tokens. Admins may pass a different
// user id to inspect another account's tokens.
func (s *Tokens) ListPATs(ctx context.Context, a *auth.AuthContext, userID string) ([]*store.PAT, error) {
	if a == nil || !a.IsUserScoped() {
		return nil, fmt.Errorf("%w: a user account is required", auth.ErrForbidden)
	}
	if userID == "" {
		userID = a.UserID
	}
	if userID != a.UserID && !a.Admin {
		return nil, fmt.Errorf("%w: admin access required to list another user's tokens", auth.ErrForbidden)
	}
	return s.pats.ListPATsByUser(ctx, userID)
}

// RevokePAT deactivates a token. Revoking an already-revoked token succeeds;
// the operation is idempotent. Non-owned or unknown ids surface as NotFound.
func (s *Tokens) RevokePAT(ctx context.Context, a *auth.AuthContext, id string) error {
	if _, err := s.visiblePAT(ctx, a, id); err != nil {
		return err
	}
	if err := s.pats.SetPATActive(ctx, id, false); err != nil {
		return err
	}
	s.logger.Info("revoked PAT", "token_id", id)
	return nil
}

// RotatePAT revokes a token and mints a replacement with the same label,
// scopes and expiry in a single transaction. Rotating a revoked or unknown
// token fails with NotFound.
func (s *Tokens) RotatePAT(ctx context.Context, a *auth.AuthContext, id string) (*CreatedPAT, error) {
	old, err := s.visiblePAT(ctx, a, id)
	if err != nil {
		return nil, err
	}
	if !old.Active {
		return nil, fmt.Errorf("token: %w", auth.ErrNotFound)
	}

	raw, err := auth.NewPATSecret()
	if err != nil {
		return nil, err
	}
	replacement := &store.PAT{
		UserID:    old.UserID,
		Label:     old.Label,
		Digest:    auth.Digest(raw),
		Scopes:    old.Scopes,
		Active:    true,
		ExpiresAt: old.ExpiresAt,
	}
	if err := s.pats.RotatePAT(ctx, id, replacement); err != nil {
		return nil, err
	}

	s.logger.Info("rotated PAT", "old_token_id", id, "new_token_id", replacement.ID)
	return &CreatedPAT{PAT: replacement, Secret: raw}, nil
}

// visiblePAT loads a token the caller is allowed to see. Tokens owned by
// other users are indistinguishable from nonexistent ones.
func (s *Tokens) visiblePAT(ctx context.Context, a *auth.AuthContext, id string) (*store.PAT, error) {
	if a == nil || !a.IsUserScoped() {
		return nil, fmt.Errorf("%w: a user account is required", auth.ErrForbidden)
	}
	pat, err := s.pats.GetPAT(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("token: %w", auth.ErrNotFound)
		}
		return nil, err
	}
	if pat.UserID != a.UserID && !a.Admin {
		return nil, fmt.Errorf("token: %w", auth.ErrNotFound)
	}
	return pat, nil
}

// CreateCAT mints a collection access token bound to one collection with a
// fixed permission. The caller must own the collection or be an admin, and
// must hold a user-scoped or admin context.
func (s *Tokens) CreateCAT(ctx context.Context, a *auth.AuthContext, collectionID, label string, permission store.Permission, expiresInDays int) (*CreatedCAT, error) {
	if a == nil || (!a.IsUserScoped() && !a.Admin) {
		return nil, fmt.Errorf("%w: a user account is required to create collection tokens", auth.ErrForbidden)
	}
	if label == "" {
		return nil, fmt.Errorf("%w: label is required", ErrInvalidInput)
	}
	if !permission.Valid() {
		return nil, fmt.Errorf("%w: permission must be read or read_write", ErrInvalidInput)
	}

	coll, err := s.collections.GetCollection(ctx, collectionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("collection: %w", auth.ErrNotFound)
		}
		return nil, err
	}
	if err := auth.RequireOwnerOrAdmin(a, coll.OwnerID); err != nil {
		return nil, err
	}

	raw, err := auth.NewCATSecret()
	if err != nil {
		return nil, err
	}
	cat := &store.CAT{
		CollectionID: coll.ID,
		CreatedBy:    a.UserID,
		Label:        label,
		Digest:       auth.Digest(raw),
		Permission:   permission,
		Active:       true,
		ExpiresAt:    expiryFromDays(expiresInDays, DefaultCATExpiryDays),
	}
	if err := s.cats.InsertCAT(ctx, cat); err != nil {
		return nil, fmt.Errorf("storing token: %w", err)
	}

	s.logger.Info("created CAT", "token_id", cat.ID, "collection_id", coll.ID, "permission", permission, "label", label)
	return &CreatedCAT{CAT: cat, Secret: raw}, nil
}

// ListCATs returns the tokens bound to a collection. The caller must own the
// collection or be an admin.
func (s *Tokens) ListCATs(ctx context.Context, a *auth.AuthContext, collectionID string) ([]*store.CAT, error) {
	coll, err := s.collections.GetCollection(ctx, collectionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("collection: %w", auth.ErrNotFound)
		}
		return nil, err
	}
	if err := auth.RequireOwnerOrAdmin(a, coll.OwnerID); err != nil {
		return nil, err
	}
	return s.cats.ListCATsByCollection(ctx, collectionID)
}

// RevokeCAT deactivates a collection token. Idempotent, like RevokePAT.
func (s *Tokens) RevokeCAT(ctx context.Context, a *auth.AuthContext, id string) error {
	if _, err := s.visibleCAT(ctx, a, id); err != nil {
		return err
	}
	if err := s.cats.SetCATActive(ctx, id, false); err != nil {
		return err
	}
	s.logger.Info("revoked CAT", "token_id", id)
	return nil
}

// RotateCAT revokes a collection token and mints a replacement with the same
// binding, permission, label and expiry in one transaction.
func (s *Tokens) RotateCAT(ctx context.Context, a *auth.AuthContext, id string) (*CreatedCAT, error) {
	old, err := s.visibleCAT(ctx, a, id)
	if err != nil {
		return nil, err
	}
	if !old.Active {
		return nil, fmt.Errorf("token: %w", auth.ErrNotFound)
	}

	raw, err := auth.NewCATSecret()
	if err != nil {
		return nil, err
	}
	replacement := &store.CAT{
		CollectionID: old.CollectionID,
		CreatedBy:    old.CreatedBy,
		Label:        old.Label,
		Digest:       auth.Digest(raw),
		Permission:   old.Permission,
		Active:       true,
		ExpiresAt:    old.ExpiresAt,
	}
	if err := s.cats.RotateCAT(ctx, id, replacement); err != nil {
		return nil, err
	}

	s.logger.Info("rotated CAT", "old_token_id", id, "new_token_id", replacement.ID)
	return &CreatedCAT{CAT: replacement, Secret: raw}, nil
}

// visibleCAT loads a collection token the caller may manage: the binding
// collection's owner or an admin. Everyone else gets NotFound.
func (s *Tokens) visibleCAT(ctx context.Context, a *auth.AuthContext, id string) (*store.CAT, error) {
	if a == nil || (!a.IsUserScoped() && !a.Admin) {
		return nil, fmt.Errorf("%w: a user account is required", auth.ErrForbidden)
	}
	cat, err := s.cats.GetCAT(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("token: %w", auth.ErrNotFound)
		}
		return nil, err
	}
	if !a.Admin {
		coll, err := s.collections.GetCollection(ctx, cat.CollectionID)
		if err != nil || coll.OwnerID != a.UserID {
			return nil, fmt.Errorf("token: %w", auth.ErrNotFound)
		}
	}
	return cat, nil
}

// clampScopes drops requested scopes the caller does not hold. A nil request
// inherits the caller's full scope set.
func clampScopes(a *auth.AuthContext, requested []store.Scope) []store.Scope {
	if requested == nil {
		inherited := []store.Scope{store.ScopeRead, store.ScopeWrite}
		if a.Admin {
			inherited = append(inherited, store.ScopeAdmin)
		}
		return inherited
	}
	var out []store.Scope
	for _, sc := range requested {
		if a.HasScope(sc) {
			out = append(out, sc)
		}
	}
	if out == nil {
		out = []store.Scope{store.ScopeRead}
	}
	return out
}

func expiryFromDays(days, defaultDays int) *time.Time {
	if days <= 0 {
		days = defaultDays
	}
	if days > MaxTokenExpiryDays {
		days = MaxTokenExpiryDays
	}
	t := time.Now().AddDate(0, 0, days)
	return &t
}
