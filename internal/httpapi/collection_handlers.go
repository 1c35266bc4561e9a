// ABOUTME: Collection and document endpoints for the HTTP API
// ABOUTME: Deletion conflicts (active CATs) surface as 409

package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/2389/vellum/internal/auth"
	"github.com/2389/vellum/internal/service"
	"github.com/2389/vellum/internal/store"
)

type collectionResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	OwnerID       string    `json:"owner_id"`
	DocumentCount *int      `json:"document_count,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func toCollectionResponse(c *store.Collection) collectionResponse {
	return collectionResponse{
		ID:        c.ID,
		Name:      c.Name,
		OwnerID:   c.OwnerID,
		CreatedAt: c.CreatedAt,
	}
}

type documentResponse struct {
	ID           string         `json:"id"`
	CollectionID string         `json:"collection_id"`
	Title        string         `json:"title"`
	Content      string         `json:"content,omitempty"`
	ContentHash  string         `json:"content_hash"`
	DocumentType string         `json:"document_type"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func toDocumentResponse(d *store.Document, includeContent bool) documentResponse {
	out := documentResponse{
		ID:           d.ID,
		CollectionID: d.CollectionID,
		Title:        d.Title,
		ContentHash:  d.ContentHash,
		DocumentType: d.DocumentType,
		Metadata:     d.Metadata,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	if includeContent {
		out.Content = d.Content
	}
	return out
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	coll, err := s.collections.Create(r.Context(), auth.FromContext(r.Context()), req.Name)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCollectionResponse(coll))
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	colls, err := s.collections.List(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	out := make([]collectionResponse, len(colls))
	for i, c := range colls {
		out[i] = toCollectionResponse(c)
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": out})
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	info, err := s.collections.Get(r.Context(), auth.FromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	resp := toCollectionResponse(info.Collection)
	resp.DocumentCount = &info.DocumentCount
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRenameCollection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	coll, err := s.collections.Rename(r.Context(), auth.FromContext(r.Context()), r.PathValue("id"), req.Name)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCollectionResponse(coll))
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	if err := s.collections.Delete(r.Context(), auth.FromContext(r.Context()), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title        string         `json:"title"`
		Content      string         `json:"content"`
		DocumentType string         `json:"document_type"`
		Metadata     map[string]any `json:"metadata"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	doc, err := s.documents.Create(r.Context(), auth.FromContext(r.Context()), r.PathValue("id"), req.Title, req.Content, req.DocumentType, req.Metadata)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDocumentResponse(doc, true))
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	docs, err := s.documents.List(r.Context(), auth.FromContext(r.Context()), r.PathValue("id"), limit, offset)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	out := make([]documentResponse, len(docs))
	for i, d := range docs {
		out[i] = toDocumentResponse(d, false)
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

func (s *Server) handleSearchDocuments(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	results, err := s.documents.Search(r.Context(), auth.FromContext(r.Context()), r.PathValue("id"), r.URL.Query().Get("q"), limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	type searchHit struct {
		Document documentResponse `json:"document"`
		Excerpt  string           `json:"excerpt"`
	}
	out := make([]searchHit, len(results))
	for i, res := range results {
		out[i] = searchHit{Document: toDocumentResponse(res.Document, false), Excerpt: res.Excerpt}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.documents.Get(r.Context(), auth.FromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc, true))
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title    *string        `json:"title"`
		Content  *string        `json:"content"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	doc, err := s.documents.Update(r.Context(), auth.FromContext(r.Context()), r.PathValue("id"), service.DocumentUpdate{
		Title:    req.Title,
		Content:  req.Content,
		Metadata: req.Metadata,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc, true))
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.documents.Delete(r.Context(), auth.FromContext(r.Context()), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
