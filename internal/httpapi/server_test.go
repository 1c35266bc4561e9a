// ABOUTME: End-to-end HTTP API tests over a real store and resolver
// ABOUTME: Exercises the uniform-401 contract, bootstrap promotion and token lifecycle

package httpapi

import (
	"bytes"
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

const testAdminSecret = "test-admin-secret"

type apiFixture struct {
	handler http.Handler
	store   *store.SQLiteStore
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	signer, err := auth.NewSigner([]byte("0123456789abcdef0123456789abcdef"), time.Minute, time.Hour)
	require.NoError(t, err)

	static := auth.StaticCredentials{AdminSecret: testAdminSecret}
	resolver := auth.NewResolver(st, st, st, st, signer, static)
	policy := auth.NewBootstrapPolicy(st, testAdminSecret)

	users := service.NewUsers(st, st, signer, policy)
	tokens := service.NewTokens(st, st, st)
	collections := service.NewCollections(st, st, st, resolver)
	documents := service.NewDocuments(st, resolver)

	mux := http.NewServeMux()
	NewServer(resolver, users, tokens, collections, documents).Register(mux)

	return &apiFixture{handler: mux, store: st}
}

// do performs a request with an optional bearer token and JSON body, returning
// the recorder and the decoded JSON object (nil on empty bodies).
func (f *apiFixture) do(t *testing.T, method, path, bearer string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

// register creates an account and returns the user id and a session access token.
func (f *apiFixture) register(t *testing.T, username string) (string, string) {
	t.Helper()
	w, body := f.do(t, "POST", "/api/v1/auth/register", "", map[string]any{
		"email":    username + "@example.com",
		"username": username,
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	id := body["id"].(string)

	w, body = f.do(t, "POST", "/api/v1/auth/login", "", map[string]any{
		"username": username,
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code)
	return id, body["access_token"].(string)
}

func TestUnauthenticatedResponsesAreUniform(t *testing.T) {
	f := newAPIFixture(t)

	cases := []struct {
		name   string
		bearer string
	}{
		{"missing header", ""},
		{"garbage token", "not-a-real-credential"},
		{"well-formed but unknown", "pat_live_AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, body := f.do(t, "GET", "/api/v1/auth/me", tc.bearer, nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "unauthorized", body["error"])
		})
	}
}

func TestForbiddenNamesTheMissingCapability(t *testing.T) {
	f := newAPIFixture(t)
	_, token := f.register(t, "alice")

	w, body := f.do(t, "GET", "/api/v1/admin/users", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, body["error"], "admin")
	assert.NotEqual(t, "unauthorized", body["error"])
}

func TestAdminSecretIsNotADataBearerToken(t *testing.T) {
	f := newAPIFixture(t)
	_, session := f.register(t, "alice")

	w, body := f.do(t, "POST", "/api/v1/collections", session, map[string]any{"name": "ops"})
	require.Equal(t, http.StatusCreated, w.Code)
	collID := body["id"].(string)

	// The static secret resolves, but only the promotion endpoint honors it.
	w, body = f.do(t, "GET", "/api/v1/collections", testAdminSecret, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NotEqual(t, "unauthorized", body["error"])

	w, body = f.do(t, "POST", "/api/v1/collections/"+collID+"/documents", testAdminSecret,
		map[string]any{"title": "x", "content": "y"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, body["error"], "promotion")

	w, _ = f.do(t, "DELETE", "/api/v1/collections/"+collID, testAdminSecret, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPATLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	_, session := f.register(t, "alice")

	// Create: the raw secret appears exactly once.
	w, body := f.do(t, "POST", "/api/v1/pats", session, map[string]any{"label": "ci"})
	require.Equal(t, http.StatusCreated, w.Code)
	patID := body["id"].(string)
	secret := body["token"].(string)
	require.NotEmpty(t, secret)

	// List: no secret, ever.
	w, body = f.do(t, "GET", "/api/v1/pats", session, nil)
	require.Equal(t, http.StatusOK, w.Code)
	listed := body["tokens"].([]any)
	require.Len(t, listed, 1)
	_, hasToken := listed[0].(map[string]any)["token"]
	assert.False(t, hasToken)

	// The PAT works as a bearer credential.
	w, _ = f.do(t, "GET", "/api/v1/auth/me", secret, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Rotate: new id and new secret; old secret stops working.
	w, body = f.do(t, "POST", "/api/v1/pats/"+patID+"/rotate", session, nil)
	require.Equal(t, http.StatusOK, w.Code)
	rotatedID := body["id"].(string)
	rotatedSecret := body["token"].(string)
	assert.NotEqual(t, patID, rotatedID)

	w, _ = f.do(t, "GET", "/api/v1/auth/me", secret, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = f.do(t, "GET", "/api/v1/auth/me", rotatedSecret, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Revoke: 204, and the credential dies immediately.
	w, _ = f.do(t, "DELETE", "/api/v1/pats/"+rotatedID, session, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, _ = f.do(t, "GET", "/api/v1/auth/me", rotatedSecret, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPromoteBootstrapPolicy(t *testing.T) {
	f := newAPIFixture(t)
	aliceID, _ := f.register(t, "alice")
	bobID, _ := f.register(t, "bob")

	// No admins yet: the secret requirement is waived.
	req := httptest.NewRequest("POST", "/api/v1/admin/users/"+aliceID+"/promote", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["is_admin"])

	// An admin exists now: promotion without the secret is refused uniformly.
	req = httptest.NewRequest("POST", "/api/v1/admin/users/"+bobID+"/promote", nil)
	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest("POST", "/api/v1/admin/users/"+bobID+"/promote", nil)
	req.Header.Set("X-Admin-Token", "wrong-secret")
	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// The configured secret works.
	req = httptest.NewRequest("POST", "/api/v1/admin/users/"+bobID+"/promote", nil)
	req.Header.Set("X-Admin-Token", testAdminSecret)
	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDocumentEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	_, session := f.register(t, "alice")

	w, body := f.do(t, "POST", "/api/v1/collections", session, map[string]any{"name": "notes"})
	require.Equal(t, http.StatusCreated, w.Code)
	collID := body["id"].(string)

	w, body = f.do(t, "POST", "/api/v1/collections/"+collID+"/documents", session, map[string]any{
		"title":   "Plan",
		"content": "# Plan\n\nship it",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	docID := body["id"].(string)

	w, body = f.do(t, "GET", "/api/v1/documents/"+docID, session, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Plan", body["title"])

	w, body = f.do(t, "GET", "/api/v1/collections/"+collID+"/search?q=ship", session, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["results"].([]any), 1)

	// A stranger probing the document id gets 404, not 403.
	_, otherSession := f.register(t, "bob")
	w, _ = f.do(t, "GET", "/api/v1/documents/"+docID, otherSession, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteCollectionWithActiveTokens(t *testing.T) {
	f := newAPIFixture(t)
	_, session := f.register(t, "alice")

	w, body := f.do(t, "POST", "/api/v1/collections", session, map[string]any{"name": "notes"})
	require.Equal(t, http.StatusCreated, w.Code)
	collID := body["id"].(string)

	w, body = f.do(t, "POST", "/api/v1/cats", session, map[string]any{
		"collection_id": collID,
		"label":         "reader",
		"permission":    "read",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	catID := body["id"].(string)

	w, _ = f.do(t, "DELETE", "/api/v1/collections/"+collID, session, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = f.do(t, "DELETE", "/api/v1/cats/"+catID, session, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w, _ = f.do(t, "DELETE", "/api/v1/collections/"+collID, session, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
