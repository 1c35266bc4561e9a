// ABOUTME: Tests for document CRUD, write gating and keyword search
// ABOUTME: By-id probing from the wrong principal must look like NotFound

package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/vellum/internal/auth"
	"github.com/2389/vellum/internal/store"
)

func TestDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, a := f.registeredUser(t, "alice")
	coll := f.defaultCollection(t, a.UserID)

	doc, err := f.documents.Create(ctx, a, coll.ID, "Meeting notes", "# Agenda\n\nbudget review", DocTypeMarkdown, map[string]any{"week": 14})
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, contentHash("# Agenda\n\nbudget review"), doc.ContentHash)

	got, err := f.documents.Get(ctx, a, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Meeting notes", got.Title)

	title := "Weekly notes"
	content := "rescheduled"
	updated, err := f.documents.Update(ctx, a, doc.ID, DocumentUpdate{Title: &title, Content: &content})
	require.NoError(t, err)
	assert.Equal(t, contentHash("rescheduled"), updated.ContentHash)

	require.NoError(t, f.documents.Delete(ctx, a, doc.ID))
	_, err = f.documents.Get(ctx, a, doc.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestDocumentAccessIsNotLeakedByID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, alice := f.registeredUser(t, "alice")
	_, bob := f.registeredUser(t, "bob")
	coll := f.defaultCollection(t, alice.UserID)

	doc, err := f.documents.Create(ctx, alice, coll.ID, "secret", "contents", DocTypeText, nil)
	require.NoError(t, err)

	// A stranger probing the id sees NotFound, not Forbidden.
	_, err = f.documents.Get(ctx, bob, doc.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound)
	assert.NotErrorIs(t, err, auth.ErrForbidden)
}

func TestReadOnlyCollectionTokenCannotWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, alice := f.registeredUser(t, "alice")
	coll := f.defaultCollection(t, alice.UserID)

	created, err := f.tokens.CreateCAT(ctx, alice, coll.ID, "reader", store.PermissionRead, 0)
	require.NoError(t, err)
	catCtx, err := f.resolver.Resolve(ctx, created.Secret, false)
	require.NoError(t, err)

	_, err = f.documents.Create(ctx, catCtx, coll.ID, "nope", "x", DocTypeText, nil)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	// Reading works.
	doc, err := f.documents.Create(ctx, alice, coll.ID, "readable", "hello", DocTypeText, nil)
	require.NoError(t, err)
	got, err := f.documents.Get(ctx, catCtx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)

	// And a read-write token can write.
	rw, err := f.tokens.CreateCAT(ctx, alice, coll.ID, "writer", store.PermissionReadWrite, 0)
	require.NoError(t, err)
	rwCtx, err := f.resolver.Resolve(ctx, rw.Secret, false)
	require.NoError(t, err)
	_, err = f.documents.Create(ctx, rwCtx, coll.ID, "ok", "y", DocTypeText, nil)
	assert.NoError(t, err)
}

func TestSearchFlattensMarkdown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, a := f.registeredUser(t, "alice")
	coll := f.defaultCollection(t, a.UserID)

	_, err := f.documents.Create(ctx, a, coll.ID, "Release plan",
		"# Release\n\nThe **rollout** happens Tuesday.", DocTypeMarkdown, nil)
	require.NoError(t, err)
	_, err = f.documents.Create(ctx, a, coll.ID, "Unrelated", "nothing here", DocTypeText, nil)
	require.NoError(t, err)

	results, err := f.documents.Search(ctx, a, coll.ID, "ROLLOUT", 20)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Release plan", results[0].Document.Title)
	// The excerpt comes from the flattened text, not raw markdown.
	assert.Contains(t, results[0].Excerpt, "rollout happens Tuesday")
	assert.NotContains(t, results[0].Excerpt, "**")
}

func TestSearchMatchesTitle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, a := f.registeredUser(t, "alice")
	coll := f.defaultCollection(t, a.UserID)

	_, err := f.documents.Create(ctx, a, coll.ID, "Quarterly budget", "numbers only", DocTypeText, nil)
	require.NoError(t, err)

	results, err := f.documents.Search(ctx, a, coll.ID, "quarterly", 20)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSearchLongContentExcerptIsBounded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, a := f.registeredUser(t, "alice")
	coll := f.defaultCollection(t, a.UserID)

	content := strings.Repeat("padding ", 100) + "needle" + strings.Repeat(" padding", 100)
	_, err := f.documents.Create(ctx, a, coll.ID, "Long", content, DocTypeText, nil)
	require.NoError(t, err)

	results, err := f.documents.Search(ctx, a, coll.ID, "needle", 20)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Excerpt, "needle")
	assert.True(t, strings.HasPrefix(results[0].Excerpt, "…"))
	assert.True(t, strings.HasSuffix(results[0].Excerpt, "…"))
	assert.Less(t, len(results[0].Excerpt), len(content))
}

func TestLegacyTokenWritesToDerivedCollection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Legacy credentials are scoped to a collection that has no stored row.
	legacy := &auth.AuthContext{
		Kind:         auth.CredentialLegacyToken,
		CollectionID: auth.LegacyCollectionID("old-env-key"),
		Scopes:       []store.Scope{store.ScopeRead, store.ScopeWrite},
		Permission:   store.PermissionReadWrite,
	}

	doc, err := f.documents.Create(ctx, legacy, legacy.CollectionID, "note", "legacy content", DocTypeText, nil)
	require.NoError(t, err)

	docs, err := f.documents.List(ctx, legacy, legacy.CollectionID, 0, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)

	// A different legacy key is isolated in its own derived collection.
	other := &auth.AuthContext{
		Kind:         auth.CredentialLegacyToken,
		CollectionID: auth.LegacyCollectionID("other-env-key"),
		Scopes:       []store.Scope{store.ScopeRead, store.ScopeWrite},
		Permission:   store.PermissionReadWrite,
	}
	_, err = f.documents.Get(ctx, other, doc.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestSearchRequiresAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, alice := f.registeredUser(t, "alice")
	_, bob := f.registeredUser(t, "bob")
	coll := f.defaultCollection(t, alice.UserID)

	_, err := f.documents.Search(ctx, bob, coll.ID, "anything", 20)
	assert.ErrorIs(t, err, auth.ErrForbidden)
}

func TestAdminSecretGrantsNoDataAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, alice := f.registeredUser(t, "alice")
	coll := f.defaultCollection(t, alice.UserID)

	resolver := auth.NewResolver(f.store, f.store, f.store, f.store, f.signer,
		auth.StaticCredentials{AdminSecret: "break-glass-secret"})
	secretCtx, err := resolver.Resolve(ctx, "break-glass-secret", true)
	require.NoError(t, err)

	// The secret is valid for promotion only: documents and collections
	// refuse it even though it resolved cleanly.
	_, err = f.documents.Create(ctx, secretCtx, coll.ID, "Notes", "body", DocTypeText, nil)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = f.documents.List(ctx, secretCtx, coll.ID, 20, 0)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	err = f.collections.Delete(ctx, secretCtx, coll.ID)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	// The owner is unaffected.
	_, err = f.documents.Create(ctx, alice, coll.ID, "Notes", "body", DocTypeText, nil)
	require.NoError(t, err)
}
