// ABOUTME: Shared fixtures for service tests
// ABOUTME: Builds a real SQLite store with a resolver and all services wired

package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/vellum/internal/auth"
	"github.com/2389/vellum/internal/store"
)

type fixture struct {
	store       *store.SQLiteStore
	resolver    *auth.Resolver
	signer      *auth.Signer
	users       *Users
	tokens      *Tokens
	collections *Collections
	documents   *Documents
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	signer, err := auth.NewSigner([]byte("0123456789abcdef0123456789abcdef"), time.Minute, time.Hour)
	require.NoError(t, err)

	resolver := auth.NewResolver(st, st, st, st, signer, auth.StaticCredentials{})
	policy := auth.NewBootstrapPolicy(st, "test-admin-secret")

	return &fixture{
		store:       st,
		resolver:    resolver,
		signer:      signer,
		users:       NewUsers(st, st, signer, policy),
		tokens:      NewTokens(st, st, st),
		collections: NewCollections(st, st, st, resolver),
		documents:   NewDocuments(st, resolver),
	}
}

// registeredUser creates an account through the service so the default
// collection exists, and returns a user-token AuthContext for it.
func (f *fixture) registeredUser(t *testing.T, username string) (*store.User, *auth.AuthContext) {
	t.Helper()
	user, err := f.users.Register(context.Background(), username+"@example.com", username, "password123")
	require.NoError(t, err)
	return user, &auth.AuthContext{
		Kind:     auth.CredentialUserToken,
		UserID:   user.ID,
		Username: user.Username,
		Scopes:   []store.Scope{store.ScopeRead, store.ScopeWrite},
		Admin:    user.Admin,
	}
}

func (f *fixture) adminContext(userID string) *auth.AuthContext {
	return &auth.AuthContext{
		Kind:   auth.CredentialUserSession,
		UserID: userID,
		Scopes: []store.Scope{store.ScopeRead, store.ScopeWrite, store.ScopeAdmin},
		Admin:  true,
	}
}

func (f *fixture) defaultCollection(t *testing.T, ownerID string) *store.Collection {
	t.Helper()
	coll, err := f.store.GetCollectionByName(context.Background(), ownerID, DefaultCollectionName)
	require.NoError(t, err)
	return coll
}
