// ABOUTME: Tests for account registration, login, refresh and admin user ops
// ABOUTME: Login failures must be indistinguishable regardless of cause

package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/vellum/internal/auth"
	"github.com/2389/vellum/internal/store"
)

func TestRegisterCreatesDefaultCollection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	user, err := f.users.Register(ctx, "Alice@Example.com", "alice", "password123")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.False(t, user.Admin)

	coll, err := f.store.GetCollectionByName(ctx, user.ID, DefaultCollectionName)
	require.NoError(t, err)
	assert.Equal(t, user.ID, coll.OwnerID)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cases := []struct {
		name                      string
		email, username, password string
	}{
		{"bad email", "not-an-email", "alice", "password123"},
		{"short username", "a@example.com", "al", "password123"},
		{"username starts with digit", "a@example.com", "1alice", "password123"},
		{"short password", "a@example.com", "alice", "short"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.users.Register(ctx, tc.email, tc.username, tc.password)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.users.Register(ctx, "alice@example.com", "alice", "password123")
	require.NoError(t, err)
	_, err = f.users.Register(ctx, "alice@example.com", "alice2", "password123")
	assert.ErrorIs(t, err, auth.ErrConflict)
	_, err = f.users.Register(ctx, "other@example.com", "alice", "password123")
	assert.ErrorIs(t, err, auth.ErrConflict)
}

// brokenCollections fails every collection insert, leaving the rest of the
// store intact.
type brokenCollections struct {
	store.CollectionStore
}

func (brokenCollections) CreateCollection(ctx context.Context, c *store.Collection) error {
	return errors.New("disk full")
}

func TestRegisterRollsBackWithoutDefaultCollection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	users := NewUsers(f.store, brokenCollections{f.store}, f.signer,
		auth.NewBootstrapPolicy(f.store, "test-admin-secret"))

	_, err := users.Register(ctx, "bob@example.com", "bob", "password123")
	require.Error(t, err)

	// No half-created account survives the failure.
	_, err = f.store.GetUserByUsername(ctx, "bob")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLoginIssuesUsablePair(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user, _ := f.registeredUser(t, "alice")

	pair, err := f.users.Login(ctx, "alice", "password123")
	require.NoError(t, err)
	assert.Equal(t, "bearer", pair.TokenType)
	assert.Positive(t, pair.ExpiresIn)

	// The access token resolves at the conventional front door.
	a, err := f.resolver.Resolve(ctx, pair.AccessToken, true)
	require.NoError(t, err)
	assert.Equal(t, user.ID, a.UserID)
	assert.Equal(t, auth.CredentialUserSession, a.Kind)
}

func TestLoginFailuresCollapse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user, _ := f.registeredUser(t, "alice")

	// Wrong password and unknown username produce the same error.
	_, err := f.users.Login(ctx, "alice", "wrong-password")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	_, err = f.users.Login(ctx, "nobody", "password123")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	// So does a deactivated account with the right password.
	require.NoError(t, f.store.SetUserActive(ctx, user.ID, false))
	_, err = f.users.Login(ctx, "alice", "password123")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user, _ := f.registeredUser(t, "alice")

	pair, err := f.users.Login(ctx, "alice", "password123")
	require.NoError(t, err)

	next, err := f.users.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, next.AccessToken)

	// An access token is not accepted as a refresh token.
	_, err = f.users.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	// Deactivation cuts off refresh too.
	require.NoError(t, f.store.SetUserActive(ctx, user.ID, false))
	_, err = f.users.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestListUsersRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, a := f.registeredUser(t, "alice")

	_, err := f.users.ListUsers(ctx, a, store.UserFilter{})
	assert.ErrorIs(t, err, auth.ErrForbidden)

	users, err := f.users.ListUsers(ctx, f.adminContext(a.UserID), store.UserFilter{})
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestDeleteUserSelfGuard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, _ := f.registeredUser(t, "alice")
	bob, _ := f.registeredUser(t, "bob")

	admin := f.adminContext(alice.ID)
	err := f.users.DeleteUser(ctx, admin, alice.ID)
	assert.ErrorIs(t, err, auth.ErrConflict)

	require.NoError(t, f.users.DeleteUser(ctx, admin, bob.ID))
	_, err = f.store.GetUser(ctx, bob.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateUserDeactivationKillsTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user, a := f.registeredUser(t, "alice")

	created, err := f.tokens.CreatePAT(ctx, a, "ci", nil, 0)
	require.NoError(t, err)

	inactive := false
	_, err = f.users.UpdateUser(ctx, f.adminContext("admin-id"), user.ID, UserUpdate{Active: &inactive})
	require.NoError(t, err)

	_, err = f.resolver.Resolve(ctx, created.Secret, false)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}
