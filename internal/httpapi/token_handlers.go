// ABOUTME: Credential lifecycle endpoints for PATs and CATs
// ABOUTME: Raw secrets appear only in create and rotate responses

package httpapi

import (
	"net/http"
	"time"

	"github.com/2389/vellum/internal/auth"
	"github.com/2389/vellum/internal/store"
)

type patResponse struct {
	ID        string     `json:"id"`
	Label     string     `json:"label"`
	Scopes    []string   `json:"scopes"`
	Active    bool       `json:"is_active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
	CreatedAt time.Time  `json:"created_at"`

	// Token carries the raw secret, present only in create/rotate responses.
	Token string `json:"token,omitempty"`
}

func toPATResponse(p *store.PAT, secret string) patResponse {
	scopes := make([]string, len(p.Scopes))
	for i, sc := range p.Scopes {
		scopes[i] = string(sc)
	}
	return patResponse{
		ID:        p.ID,
		Label:     p.Label,
		Scopes:    scopes,
		Active:    p.Active,
		ExpiresAt: p.ExpiresAt,
		LastUsed:  p.LastUsed,
		CreatedAt: p.CreatedAt,
		Token:     secret,
	}
}

type catResponse struct {
	ID           string     `json:"id"`
	CollectionID string     `json:"collection_id"`
	Label        string     `json:"label"`
	Permission   string     `json:"permission"`
	Active       bool       `json:"is_active"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LastUsed     *time.Time `json:"last_used,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`

	Token string `json:"token,omitempty"`
}

func toCATResponse(c *store.CAT, secret string) catResponse {
	return catResponse{
		ID:           c.ID,
		CollectionID: c.CollectionID,
		Label:        c.Label,
		Permission:   string(c.Permission),
		Active:       c.Active,
		ExpiresAt:    c.ExpiresAt,
		LastUsed:     c.LastUsed,
		CreatedAt:    c.CreatedAt,
		Token:        secret,
	}
}

func (s *Server) handleCreatePAT(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label         string   `json:"label"`
		Scopes        []string `json:"scopes"`
		ExpiresInDays int      `json:"expires_in_days"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var scopes []store.Scope
	if req.Scopes != nil {
		scopes = make([]store.Scope, len(req.Scopes))
		for i, sc := range req.Scopes {
			scopes[i] = store.Scope(sc)
		}
	}

	created, err := s.tokens.CreatePAT(r.Context(), auth.FromContext(r.Context()), req.Label, scopes, req.ExpiresInDays)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPATResponse(created.PAT, created.Secret))
}

func (s *Server) handleListPATs(w http.ResponseWriter, r *http.Request) {
	pats, err := s.tokens.ListPATs(r.Context(), auth.FromContext(r.Context()), r.URL.Query().Get("user_id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	out := make([]patResponse, len(pats))
	for i, p := range pats {
		out[i] = toPATResponse(p, "")
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": out})
}

func (s *Server) handleRevokePAT(w http.ResponseWriter, r *http.Request) {
	if err := s.tokens.RevokePAT(r.Context(), auth.FromContext(r.Context()), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRotatePAT(w http.ResponseWriter, r *http.Request) {
	created, err := s.tokens.RotatePAT(r.Context(), auth.FromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPATResponse(created.PAT, created.Secret))
}

func (s *Server) handleCreateCAT(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CollectionID  string `json:"collection_id"`
		Label         string `json:"label"`
		Permission    string `json:"permission"`
		ExpiresInDays int    `json:"expires_in_days"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := s.tokens.CreateCAT(r.Context(), auth.FromContext(r.Context()), req.CollectionID, req.Label, store.Permission(req.Permission), req.ExpiresInDays)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCATResponse(created.CAT, created.Secret))
}

func (s *Server) handleListCATs(w http.ResponseWriter, r *http.Request) {
	cats, err := s.tokens.ListCATs(r.Context(), auth.FromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	out := make([]catResponse, len(cats))
	for i, c := range cats {
		out[i] = toCATResponse(c, "")
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": out})
}

func (s *Server) handleRevokeCAT(w http.ResponseWriter, r *http.Request) {
	if err := s.tokens.RevokeCAT(r.Context(), auth.FromContext(r.Context()), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRotateCAT(w http.ResponseWriter, r *http.Request) {
	created, err := s.tokens.RotateCAT(r.Context(), auth.FromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCATResponse(created.CAT, created.Secret))
}
