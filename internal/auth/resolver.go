// ABOUTME: Authorization resolver: classifies, validates and builds AuthContexts
// ABOUTME: Single entry point Resolve plus the permission primitives used by every operation

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/vellum/internal/obs"
	"github.com/2389/vellum/internal/store"
)

// Resolver turns raw bearer credentials into AuthContexts and exposes the
// permission primitives consumed by operation handlers. It holds no mutable
// state beyond its injected collaborators and is safe for concurrent use.
type Resolver struct {
	users       store.UserStore
	pats        store.PATStore
	cats        store.CATStore
	collections store.CollectionStore
	signer      *Signer
	static      StaticCredentials
	logger      *slog.Logger
}

// NewResolver creates a resolver over the given stores and signer. The signer
// may be nil when the session-token front door is disabled entirely.
func NewResolver(users store.UserStore, pats store.PATStore, cats store.CATStore, collections store.CollectionStore, signer *Signer, static StaticCredentials) *Resolver {
	return &Resolver{
		users:       users,
		pats:        pats,
		cats:        cats,
		collections: collections,
		signer:      signer,
		static:      static,
		logger:      slog.Default().With("component", "auth"),
	}
}

// Resolve classifies and validates a raw bearer credential, producing an
// immutable AuthContext or ErrUnauthenticated. The detailed failure cause is
// logged but never surfaced: callers cannot distinguish an unknown credential
// from an expired or revoked one.
//
// allowSessionToken gates the session-token kind: the tool-protocol front
// door passes false and rejects structurally valid session tokens outright,
// since they cannot be silently refreshed by a static client configuration.
func (r *Resolver) Resolve(ctx context.Context, raw string, allowSessionToken bool) (*AuthContext, error) {
	if raw == "" {
		return nil, r.reject(KindUnrecognized, reasonMissing, nil)
	}

	kind := Classify(raw, r.static)

	switch kind {
	case KindSessionToken:
		if !allowSessionToken {
			return nil, r.reject(kind, reasonSessionDenied, nil)
		}
		return r.validateSession(ctx, raw)
	case KindUserToken:
		return r.validateUserToken(ctx, raw)
	case KindCollectionToken:
		return r.validateCollectionToken(ctx, raw)
	case KindAdminSecret:
		return r.validateAdminSecret()
	case KindLegacyToken:
		return r.validateLegacyToken(raw)
	default:
		return nil, r.reject(kind, reasonUnrecognized, nil)
	}
}

// reject logs the internal failure reason and returns the uniform outcome.
func (r *Resolver) reject(kind Kind, reason failureReason, err error) error {
	if err != nil {
		r.logger.Info("credential rejected", "kind", string(kind), "reason", string(reason), "error", err)
	} else {
		r.logger.Info("credential rejected", "kind", string(kind), "reason", string(reason))
	}
	obs.RecordAuthOutcome(string(kind), "rejected")
	return ErrUnauthenticated
}

func (r *Resolver) accept(kind Kind) {
	obs.RecordAuthOutcome(string(kind), "resolved")
}

// validateSession verifies the token signature and embedded expiry, rejects
// refresh tokens presented as bearer credentials, then re-checks the
// referenced user's active flag against the live store so deactivation takes
// effect before the token's natural expiry.
func (r *Resolver) validateSession(ctx context.Context, raw string) (*AuthContext, error) {
	if r.signer == nil {
		return nil, r.reject(KindSessionToken, reasonBadSignature, errors.New("no signer configured"))
	}

	claims, err := r.signer.VerifyAccess(raw)
	if err != nil {
		reason := reasonBadSignature
		switch {
		case errors.Is(err, ErrExpiredToken):
			reason = reasonExpired
		case errors.Is(err, ErrWrongTokenType):
			reason = reasonNotAccessToken
		}
		return nil, r.reject(KindSessionToken, reason, err)
	}

	user, err := r.users.GetUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, r.reject(KindSessionToken, reasonUserMissing, nil)
		}
		return nil, r.reject(KindSessionToken, reasonStoreUnavailable, err)
	}
	if !user.Active {
		return nil, r.reject(KindSessionToken, reasonUserInactive, nil)
	}

	scopes := make([]store.Scope, 0, len(claims.Scopes))
	for _, s := range claims.Scopes {
		scopes = append(scopes, store.Scope(s))
	}

	r.accept(KindSessionToken)
	return &AuthContext{
		Kind:     CredentialUserSession,
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		Scopes:   scopes,
		Admin:    user.Admin,
	}, nil
}

// validateUserToken digests the raw secret, looks up the record, and checks
// activity, expiry and the owning user's live active flag.
func (r *Resolver) validateUserToken(ctx context.Context, raw string) (*AuthContext, error) {
	record, err := r.pats.FindPATByDigest(ctx, Digest(raw))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, r.reject(KindUserToken, reasonUnknownDigest, nil)
		}
		return nil, r.reject(KindUserToken, reasonStoreUnavailable, err)
	}
	if !record.Active {
		return nil, r.reject(KindUserToken, reasonRevoked, nil)
	}
	if record.ExpiresAt != nil && record.ExpiresAt.Before(time.Now()) {
		return nil, r.reject(KindUserToken, reasonExpired, nil)
	}

	user, err := r.users.GetUser(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, r.reject(KindUserToken, reasonUserMissing, nil)
		}
		return nil, r.reject(KindUserToken, reasonStoreUnavailable, err)
	}
	if !user.Active {
		return nil, r.reject(KindUserToken, reasonUserInactive, nil)
	}

	// Best effort; a failed touch never blocks authentication.
	_ = r.pats.TouchPAT(ctx, record.ID, time.Now())

	r.accept(KindUserToken)
	return &AuthContext{
		Kind:     CredentialUserToken,
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		TokenID:  record.ID,
		Scopes:   record.Scopes,
		Admin:    user.Admin,
	}, nil
}

// validateCollectionToken digests and looks up the record, checks activity
// and expiry, and binds the context to the referenced collection. This kind
// never carries the admin scope regardless of who created it.
func (r *Resolver) validateCollectionToken(ctx context.Context, raw string) (*AuthContext, error) {
	record, err := r.cats.FindCATByDigest(ctx, Digest(raw))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, r.reject(KindCollectionToken, reasonUnknownDigest, nil)
		}
		return nil, r.reject(KindCollectionToken, reasonStoreUnavailable, err)
	}
	if !record.Active {
		return nil, r.reject(KindCollectionToken, reasonRevoked, nil)
	}
	if record.ExpiresAt != nil && record.ExpiresAt.Before(time.Now()) {
		return nil, r.reject(KindCollectionToken, reasonExpired, nil)
	}

	if _, err := r.collections.GetCollection(ctx, record.CollectionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, r.reject(KindCollectionToken, reasonCollectionGone, nil)
		}
		return nil, r.reject(KindCollectionToken, reasonStoreUnavailable, err)
	}

	scopes := []store.Scope{store.ScopeRead}
	if record.Permission == store.PermissionReadWrite {
		scopes = append(scopes, store.ScopeWrite)
	}

	_ = r.cats.TouchCAT(ctx, record.ID, time.Now())

	r.accept(KindCollectionToken)
	return &AuthContext{
		Kind:         CredentialCollectionToken,
		CollectionID: record.CollectionID,
		TokenID:      record.ID,
		Scopes:       scopes,
		Permission:   record.Permission,
	}, nil
}

// validateAdminSecret is reached only after classification already matched
// the configured secret in constant time. The resulting context carries no
// principal, collection, scopes or admin standing: the secret exists solely
// for the promotion operation, which consumes it directly rather than
// through a resolved context, so every permission primitive rejects this
// kind outright.
func (r *Resolver) validateAdminSecret() (*AuthContext, error) {
	r.accept(KindAdminSecret)
	return &AuthContext{
		Kind: CredentialAdminSecret,
	}, nil
}

// validateLegacyToken builds a context scoped to the collection derived from
// the credential itself, isolating each grandfathered key without a database
// record.
func (r *Resolver) validateLegacyToken(raw string) (*AuthContext, error) {
	r.accept(KindLegacyToken)
	return &AuthContext{
		Kind:         CredentialLegacyToken,
		CollectionID: LegacyCollectionID(raw),
		Scopes:       []store.Scope{store.ScopeRead, store.ScopeWrite},
		Permission:   store.PermissionReadWrite,
	}, nil
}

// errPromotionOnly rejects the admin-secret kind from every data operation.
// The secret authenticates, but the only operation that honors it is admin
// promotion.
func errPromotionOnly(a *AuthContext) error {
	if a.Kind == CredentialAdminSecret {
		return fmt.Errorf("%w: this credential is valid only for admin promotion", ErrForbidden)
	}
	return nil
}

// RequireScope passes for admin contexts, or when the scope is carried.
func RequireScope(a *AuthContext, scope store.Scope) error {
	if a == nil {
		return ErrUnauthenticated
	}
	if err := errPromotionOnly(a); err != nil {
		return err
	}
	if a.HasScope(scope) {
		return nil
	}
	return fmt.Errorf("%w: %s scope required", ErrForbidden, scope)
}

// RequireWrite passes when the context carries the write scope (user-scoped)
// or read_write permission (collection-scoped).
func RequireWrite(a *AuthContext) error {
	if a == nil {
		return ErrUnauthenticated
	}
	if err := errPromotionOnly(a); err != nil {
		return err
	}
	if a.CanWrite() {
		return nil
	}
	return fmt.Errorf("%w: write access required", ErrForbidden)
}

// RequireOwnerOrAdmin passes when the context's principal is the owner, or
// the context is admin.
func RequireOwnerOrAdmin(a *AuthContext, ownerID string) error {
	if a == nil {
		return ErrUnauthenticated
	}
	if err := errPromotionOnly(a); err != nil {
		return err
	}
	if a.Admin {
		return nil
	}
	if a.UserID != "" && a.UserID == ownerID {
		return nil
	}
	return fmt.Errorf("%w: not the owner", ErrForbidden)
}

// RequireCollectionAccess passes when the context is bound to the collection,
// is a user-scoped context whose principal owns it, or is admin.
func (r *Resolver) RequireCollectionAccess(ctx context.Context, a *AuthContext, collectionID string) error {
	if a == nil {
		return ErrUnauthenticated
	}
	if err := errPromotionOnly(a); err != nil {
		return err
	}
	if a.Admin {
		return nil
	}
	if a.CollectionID != "" {
		if a.CollectionID == collectionID {
			return nil
		}
		return fmt.Errorf("%w: credential not bound to this collection", ErrForbidden)
	}
	if a.IsUserScoped() {
		collection, err := r.collections.GetCollection(ctx, collectionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Existence is not revealed to callers who lack access.
				return fmt.Errorf("%w: collection access required", ErrForbidden)
			}
			return fmt.Errorf("checking collection owner: %w", err)
		}
		if collection.OwnerID == a.UserID {
			return nil
		}
	}
	return fmt.Errorf("%w: collection access required", ErrForbidden)
}
