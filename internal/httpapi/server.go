// ABOUTME: HTTP API front door: routing, JSON helpers and error mapping
// ABOUTME: Session tokens are accepted here, unlike the tool-protocol front door

package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/2389/vellum/internal/auth"
	"github.com/2389/vellum/internal/service"
)

// Server is the conventional HTTP API. All /api/v1 routes except the auth
// endpoints require a resolvable bearer credential.
type Server struct {
	resolver    *auth.Resolver
	users       *service.Users
	tokens      *service.Tokens
	collections *service.Collections
	documents   *service.Documents
	logger      *slog.Logger
}

// NewServer creates the HTTP API server.
func NewServer(resolver *auth.Resolver, users *service.Users, tokens *service.Tokens, collections *service.Collections, documents *service.Documents) *Server {
	return &Server{
		resolver:    resolver,
		users:       users,
		tokens:      tokens,
		collections: collections,
		documents:   documents,
		logger:      slog.Default().With("component", "httpapi"),
	}
}

// Register adds all API routes to the mux.
func (s *Server) Register(mux *http.ServeMux) {
	// Unauthenticated endpoints
	mux.HandleFunc("POST /api/v1/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/v1/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/v1/auth/refresh", s.handleRefresh)
	mux.HandleFunc("GET /health", s.handleHealth)

	// Everything else goes through credential resolution
	mux.Handle("GET /api/v1/auth/me", s.authenticated(s.handleMe))

	mux.Handle("POST /api/v1/pats", s.authenticated(s.handleCreatePAT))
	mux.Handle("GET /api/v1/pats", s.authenticated(s.handleListPATs))
	mux.Handle("DELETE /api/v1/pats/{id}", s.authenticated(s.handleRevokePAT))
	mux.Handle("POST /api/v1/pats/{id}/rotate", s.authenticated(s.handleRotatePAT))

	mux.Handle("POST /api/v1/cats", s.authenticated(s.handleCreateCAT))
	mux.Handle("GET /api/v1/collections/{id}/cats", s.authenticated(s.handleListCATs))
	mux.Handle("DELETE /api/v1/cats/{id}", s.authenticated(s.handleRevokeCAT))
	mux.Handle("POST /api/v1/cats/{id}/rotate", s.authenticated(s.handleRotateCAT))

	mux.Handle("POST /api/v1/collections", s.authenticated(s.handleCreateCollection))
	mux.Handle("GET /api/v1/collections", s.authenticated(s.handleListCollections))
	mux.Handle("GET /api/v1/collections/{id}", s.authenticated(s.handleGetCollection))
	mux.Handle("PATCH /api/v1/collections/{id}", s.authenticated(s.handleRenameCollection))
	mux.Handle("DELETE /api/v1/collections/{id}", s.authenticated(s.handleDeleteCollection))

	mux.Handle("POST /api/v1/collections/{id}/documents", s.authenticated(s.handleCreateDocument))
	mux.Handle("GET /api/v1/collections/{id}/documents", s.authenticated(s.handleListDocuments))
	mux.Handle("GET /api/v1/collections/{id}/search", s.authenticated(s.handleSearchDocuments))
	mux.Handle("GET /api/v1/documents/{id}", s.authenticated(s.handleGetDocument))
	mux.Handle("PATCH /api/v1/documents/{id}", s.authenticated(s.handleUpdateDocument))
	mux.Handle("DELETE /api/v1/documents/{id}", s.authenticated(s.handleDeleteDocument))

	mux.Handle("GET /api/v1/admin/users", s.authenticated(s.handleListUsers))
	mux.Handle("GET /api/v1/admin/users/{id}", s.authenticated(s.handleGetUser))
	mux.Handle("PATCH /api/v1/admin/users/{id}", s.authenticated(s.handleUpdateUser))
	mux.Handle("DELETE /api/v1/admin/users/{id}", s.authenticated(s.handleDeleteUser))
	mux.HandleFunc("POST /api/v1/admin/users/{id}/promote", s.handlePromote)
}

// authenticated resolves the bearer credential and attaches the AuthContext.
// Session tokens are allowed at this front door.
func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, errMsg := extractBearerToken(r.Header.Get("Authorization"))
		if errMsg != "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		authCtx, err := s.resolver.Resolve(r.Context(), raw, true)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), authCtx)))
	})
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	const prefix = "Bearer "
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if len(authHeader) <= len(prefix) || authHeader[:len(prefix)] != prefix {
		return "", "invalid authorization header format"
	}
	return authHeader[len(prefix):], ""
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service-layer errors onto HTTP statuses. All
// authentication failures collapse to a uniform 401; authorization failures
// surface as 403 with the missing capability named.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, auth.ErrForbidden), errors.Is(err, auth.ErrAdminSecretUnset):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
