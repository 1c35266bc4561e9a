// ABOUTME: Tests for the tool-protocol front door: sessions, auth and tool gating
// ABOUTME: Session JWTs must be rejected here even though the HTTP API accepts them

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/vellum/internal/auth"
	"github.com/2389/vellum/internal/service"
	"github.com/2389/vellum/internal/store"
)

type mcpFixture struct {
	handler  http.Handler
	store    *store.SQLiteStore
	resolver *auth.Resolver
	users    *service.Users
	tokens   *service.Tokens
}

func newMCPFixture(t *testing.T) *mcpFixture {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	signer, err := auth.NewSigner([]byte("0123456789abcdef0123456789abcdef"), time.Minute, time.Hour)
	require.NoError(t, err)

	resolver := auth.NewResolver(st, st, st, st, signer, auth.StaticCredentials{})
	policy := auth.NewBootstrapPolicy(st, "test-admin-secret")

	users := service.NewUsers(st, st, signer, policy)
	tokens := service.NewTokens(st, st, st)
	collections := service.NewCollections(st, st, st, resolver)
	documents := service.NewDocuments(st, resolver)

	registry := NewRegistry()
	RegisterVellumTools(registry, collections, documents, tokens)

	srv, err := NewServer(resolver, registry, "/mcp")
	require.NoError(t, err)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	return &mcpFixture{handler: mux, store: st, resolver: resolver, users: users, tokens: tokens}
}

// userWithPAT registers an account and mints a PAT for it, returning the user
// and the raw token secret.
func (f *mcpFixture) userWithPAT(t *testing.T, username string) (*store.User, string) {
	t.Helper()
	ctx := context.Background()
	user, err := f.users.Register(ctx, username+"@example.com", username, "password123")
	require.NoError(t, err)

	a := &auth.AuthContext{
		Kind:   auth.CredentialUserToken,
		UserID: user.ID,
		Scopes: []store.Scope{store.ScopeRead, store.ScopeWrite},
	}
	created, err := f.tokens.CreatePAT(ctx, a, "mcp", nil, 0)
	require.NoError(t, err)
	return user, created.Secret
}

// rpc posts a JSON-RPC message and decodes the response. sessionID may be
// empty for initialize calls.
func (f *mcpFixture) rpc(t *testing.T, bearer, sessionID, method string, params any) (*httptest.ResponseRecorder, *JSONRPCResponse) {
	t.Helper()

	msg := map[string]any{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		msg["params"] = params
	}
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	var resp JSONRPCResponse
	if w.Code == http.StatusOK && w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, &resp
}

// initialize runs the handshake and returns the session id.
func (f *mcpFixture) initialize(t *testing.T, bearer string) string {
	t.Helper()
	w, resp := f.rpc(t, bearer, "", "initialize", map[string]any{"protocolVersion": "2025-11-25"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Nil(t, resp.Error)
	sessionID := w.Header().Get("Mcp-Session-Id")
	require.NotEmpty(t, sessionID)
	return sessionID
}

// toolNames extracts the names from a tools/list result.
func toolNames(t *testing.T, resp *JSONRPCResponse) []string {
	t.Helper()
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result MCPListToolsResult
	require.NoError(t, json.Unmarshal(raw, &result))
	names := make([]string, len(result.Tools))
	for i, tool := range result.Tools {
		names[i] = tool.Name
	}
	return names
}

func TestSessionJWTRejectedAtToolFrontDoor(t *testing.T) {
	f := newMCPFixture(t)
	_, err := f.users.Register(context.Background(), "alice@example.com", "alice", "password123")
	require.NoError(t, err)
	pair, err := f.users.Login(context.Background(), "alice", "password123")
	require.NoError(t, err)

	// The same access token works at the conventional front door...
	_, resolveErr := f.resolver.Resolve(context.Background(), pair.AccessToken, true)
	require.NoError(t, resolveErr)

	// ...but not here.
	w, resp := f.rpc(t, pair.AccessToken, "", "initialize", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid or expired token", resp.Error.Message)
}

func TestInitializeRequiresCredential(t *testing.T) {
	f := newMCPFixture(t)

	_, resp := f.rpc(t, "", "", "initialize", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "authentication required", resp.Error.Message)
}

func TestToolsListFilteredByCredential(t *testing.T) {
	f := newMCPFixture(t)
	user, pat := f.userWithPAT(t, "alice")
	coll, err := f.store.GetCollectionByName(context.Background(), user.ID, service.DefaultCollectionName)
	require.NoError(t, err)

	// A read+write user credential sees read and write tools, including the
	// delete that the service will still restrict to the owner.
	sessionID := f.initialize(t, pat)
	w, resp := f.rpc(t, pat, sessionID, "tools/list", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Nil(t, resp.Error)
	names := toolNames(t, resp)
	assert.Contains(t, names, "store_document")
	assert.Contains(t, names, "delete_collection")

	// A read-only collection token sees read tools only.
	ownerCtx := &auth.AuthContext{
		Kind:   auth.CredentialUserToken,
		UserID: user.ID,
		Scopes: []store.Scope{store.ScopeRead, store.ScopeWrite},
	}
	cat, err := f.tokens.CreateCAT(context.Background(), ownerCtx, coll.ID, "reader", store.PermissionRead, 0)
	require.NoError(t, err)

	catSession := f.initialize(t, cat.Secret)
	_, resp = f.rpc(t, cat.Secret, catSession, "tools/list", nil)
	require.Nil(t, resp.Error)
	names = toolNames(t, resp)
	assert.Contains(t, names, "search_documents")
	assert.NotContains(t, names, "store_document")
	assert.NotContains(t, names, "delete_collection")
}

func TestToolCallGating(t *testing.T) {
	ctx := context.Background()
	f := newMCPFixture(t)
	user, pat := f.userWithPAT(t, "alice")

	sessionID := f.initialize(t, pat)

	// Unknown tool.
	_, resp := f.rpc(t, pat, sessionID, "tools/call", map[string]any{"name": "no_such_tool"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "tool not found", resp.Error.Message)

	// Write-level tool denied to a read-only credential, naming the level.
	coll, err := f.store.GetCollectionByName(ctx, user.ID, service.DefaultCollectionName)
	require.NoError(t, err)
	ownerCtx := &auth.AuthContext{
		Kind:   auth.CredentialUserToken,
		UserID: user.ID,
		Scopes: []store.Scope{store.ScopeRead, store.ScopeWrite},
	}
	cat, err := f.tokens.CreateCAT(ctx, ownerCtx, coll.ID, "reader", store.PermissionRead, 0)
	require.NoError(t, err)
	catSession := f.initialize(t, cat.Secret)
	_, resp = f.rpc(t, cat.Secret, catSession, "tools/call", map[string]any{
		"name": "store_document",
		"arguments": map[string]any{
			"collection_id": coll.ID,
			"title":         "x",
			"content":       "y",
		},
	})
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "write")

	// Owners can delete their own untokened collections here, matching the
	// conventional API.
	scratch := &store.Collection{OwnerID: user.ID, Name: "scratch"}
	require.NoError(t, f.store.CreateCollection(ctx, scratch))
	_, resp = f.rpc(t, pat, sessionID, "tools/call", map[string]any{
		"name":      "delete_collection",
		"arguments": map[string]any{"id": scratch.ID},
	})
	require.Nil(t, resp.Error)
}

func TestToolCallRoundTrip(t *testing.T) {
	f := newMCPFixture(t)
	user, pat := f.userWithPAT(t, "alice")
	coll, err := f.store.GetCollectionByName(context.Background(), user.ID, service.DefaultCollectionName)
	require.NoError(t, err)

	sessionID := f.initialize(t, pat)

	_, resp := f.rpc(t, pat, sessionID, "tools/call", map[string]any{
		"name": "store_document",
		"arguments": map[string]any{
			"collection_id": coll.ID,
			"title":         "Notes",
			"content":       "hello from mcp",
		},
	})
	require.Nil(t, resp.Error)

	_, resp = f.rpc(t, pat, sessionID, "tools/call", map[string]any{
		"name": "search_documents",
		"arguments": map[string]any{
			"collection_id": coll.ID,
			"query":         "hello",
		},
	})
	require.Nil(t, resp.Error)

	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result MCPCallToolResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Len(t, result.Content, 1)
	assert.Contains(t, result.Content[0].Text, "hello from mcp")
}

func TestSessionBoundToCredential(t *testing.T) {
	f := newMCPFixture(t)
	_, alicePAT := f.userWithPAT(t, "alice")
	_, bobPAT := f.userWithPAT(t, "bob")

	sessionID := f.initialize(t, alicePAT)

	// A different credential cannot ride an existing session.
	w, _ := f.rpc(t, bobPAT, sessionID, "tools/list", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// An unknown session forces re-initialization.
	w, _ = f.rpc(t, alicePAT, "bogus-session", "tools/list", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRevocationTakesEffectMidSession(t *testing.T) {
	f := newMCPFixture(t)
	ctx := context.Background()
	user, pat := f.userWithPAT(t, "alice")

	sessionID := f.initialize(t, pat)
	w, resp := f.rpc(t, pat, sessionID, "tools/list", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Nil(t, resp.Error)

	// Revoke the credential out of band; the established session does not
	// keep it alive.
	a := &auth.AuthContext{
		Kind:   auth.CredentialUserToken,
		UserID: user.ID,
		Scopes: []store.Scope{store.ScopeRead, store.ScopeWrite},
	}
	pats, err := f.tokens.ListPATs(ctx, a, "")
	require.NoError(t, err)
	require.Len(t, pats, 1)
	require.NoError(t, f.tokens.RevokePAT(ctx, a, pats[0].ID))

	_, resp = f.rpc(t, pat, sessionID, "tools/list", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid or expired token", resp.Error.Message)
}

func TestNotificationsAccepted(t *testing.T) {
	f := newMCPFixture(t)
	_, pat := f.userWithPAT(t, "alice")
	sessionID := f.initialize(t, pat)

	body := []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	req := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+pat)
	req.Header.Set("Mcp-Session-Id", sessionID)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestDeleteSessionRequiresOwner(t *testing.T) {
	f := newMCPFixture(t)
	_, alicePAT := f.userWithPAT(t, "alice")
	_, bobPAT := f.userWithPAT(t, "bob")
	sessionID := f.initialize(t, alicePAT)

	del := func(bearer string) int {
		req := httptest.NewRequest("DELETE", "/mcp", nil)
		req.Header.Set("Authorization", "Bearer "+bearer)
		req.Header.Set("Mcp-Session-Id", sessionID)
		w := httptest.NewRecorder()
		f.handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusForbidden, del(bobPAT))
	assert.Equal(t, http.StatusNoContent, del(alicePAT))

	// The session is gone afterwards.
	w, _ := f.rpc(t, alicePAT, sessionID, "tools/list", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
