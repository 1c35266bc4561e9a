// ABOUTME: AuthContext: the immutable result of resolving a bearer credential
// ABOUTME: Provides WithAuth/FromContext for propagating auth info via context

package auth

import (
	"context"

	"github.com/2389/vellum/internal/store"
)

// CredentialKind is the discriminant on a resolved AuthContext. Exactly one
// applies per context.
type CredentialKind string

const (
	CredentialUserSession     CredentialKind = "user_session"
	CredentialUserToken       CredentialKind = "user_token"
	CredentialCollectionToken CredentialKind = "collection_token"
	CredentialAdminSecret     CredentialKind = "admin_secret"
	CredentialLegacyToken     CredentialKind = "legacy_token"
)

// AuthContext holds the authenticated identity resolved from a request.
// It is never constructed for an invalid, expired or revoked credential, and
// is treated as immutable once built.
type AuthContext struct {
	Kind CredentialKind

	// UserID is the authenticated principal, empty for collection tokens,
	// legacy tokens and the admin secret.
	UserID   string
	Username string
	Email    string

	// CollectionID is the bound collection for collection-scoped and legacy
	// credentials, empty for user-scoped ones.
	CollectionID string

	// TokenID is the persisted record id for PAT/CAT credentials.
	TokenID string

	Scopes     []store.Scope
	Permission store.Permission // only set for collection-scoped credentials
	Admin      bool
}

// HasScope reports whether the context carries the scope. Admin contexts
// carry every scope implicitly.
func (a *AuthContext) HasScope(scope store.Scope) bool {
	if a.Admin {
		return true
	}
	for _, s := range a.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// CanWrite reports write capability: the write scope for user-scoped
// contexts, or read_write permission for collection-scoped ones.
func (a *AuthContext) CanWrite() bool {
	if a.Admin {
		return true
	}
	if a.Permission == store.PermissionReadWrite {
		return true
	}
	return a.HasScope(store.ScopeWrite)
}

// IsUserScoped reports whether the context identifies a concrete user
// (session or user token).
func (a *AuthContext) IsUserScoped() bool {
	return a.Kind == CredentialUserSession || a.Kind == CredentialUserToken
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	val := ctx.Value(authContextKey{})
	if val == nil {
		return nil
	}
	auth, ok := val.(*AuthContext)
	if !ok {
		return nil
	}
	return auth
}

// MustFromContext retrieves the AuthContext from the context, panicking if not present.
func MustFromContext(ctx context.Context) *AuthContext {
	auth := FromContext(ctx)
	if auth == nil {
		panic("auth: AuthContext not found in context")
	}
	return auth
}
