// ABOUTME: Tests for collection lifecycle and the active-token deletion guard
// ABOUTME: Covers CAT-bound visibility and ownership checks on rename/delete

package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/vellum/internal/auth"
	"github.com/2389/vellum/internal/store"
)

func TestCreateCollectionDuplicateName(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, a := f.registeredUser(t, "alice")

	_, err := f.collections.Create(ctx, a, "notes")
	require.NoError(t, err)

	_, err = f.collections.Create(ctx, a, "notes")
	assert.ErrorIs(t, err, auth.ErrConflict)

	// Same name under a different owner is fine.
	_, b := f.registeredUser(t, "bob")
	_, err = f.collections.Create(ctx, b, "notes")
	assert.NoError(t, err)
}

func TestDeleteCollectionBlockedByActiveTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, a := f.registeredUser(t, "alice")
	coll, err := f.collections.Create(ctx, a, "notes")
	require.NoError(t, err)

	created, err := f.tokens.CreateCAT(ctx, a, coll.ID, "reader", store.PermissionRead, 0)
	require.NoError(t, err)

	err = f.collections.Delete(ctx, a, coll.ID)
	assert.ErrorIs(t, err, auth.ErrConflict)

	// Revoking the token unblocks deletion.
	require.NoError(t, f.tokens.RevokeCAT(ctx, a, created.CAT.ID))
	require.NoError(t, f.collections.Delete(ctx, a, coll.ID))

	_, err = f.store.GetCollection(ctx, coll.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCollectionOwnershipChecks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, alice := f.registeredUser(t, "alice")
	_, bob := f.registeredUser(t, "bob")
	coll, err := f.collections.Create(ctx, alice, "notes")
	require.NoError(t, err)

	_, err = f.collections.Rename(ctx, bob, coll.ID, "stolen")
	assert.ErrorIs(t, err, auth.ErrForbidden)
	err = f.collections.Delete(ctx, bob, coll.ID)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	// Admins bypass ownership.
	renamed, err := f.collections.Rename(ctx, f.adminContext(bob.UserID), coll.ID, "renamed")
	require.NoError(t, err)
	assert.Equal(t, "renamed", renamed.Name)
}

func TestListCollectionsUnderCAT(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, alice := f.registeredUser(t, "alice")
	coll, err := f.collections.Create(ctx, alice, "notes")
	require.NoError(t, err)

	created, err := f.tokens.CreateCAT(ctx, alice, coll.ID, "reader", store.PermissionRead, 0)
	require.NoError(t, err)
	catCtx, err := f.resolver.Resolve(ctx, created.Secret, false)
	require.NoError(t, err)

	// A collection token sees exactly its bound collection, not the
	// owner's full set.
	got, err := f.collections.List(ctx, catCtx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, coll.ID, got[0].ID)

	// The owner sees both the default collection and the new one.
	mine, err := f.collections.List(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestGetCollectionReportsDocumentCount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, alice := f.registeredUser(t, "alice")
	coll := f.defaultCollection(t, alice.UserID)

	_, err := f.documents.Create(ctx, alice, coll.ID, "one", "# One", DocTypeMarkdown, nil)
	require.NoError(t, err)
	_, err = f.documents.Create(ctx, alice, coll.ID, "two", "plain", DocTypeText, nil)
	require.NoError(t, err)

	info, err := f.collections.Get(ctx, alice, coll.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, info.DocumentCount)

	// Strangers hit the access gate, not a count of zero.
	_, bob := f.registeredUser(t, "bob")
	_, err = f.collections.Get(ctx, bob, coll.ID)
	assert.ErrorIs(t, err, auth.ErrForbidden)
}
