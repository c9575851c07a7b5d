package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	respond "github.com/CARBONMOLECULE09/bear-code/internal/api/respond"
	"github.com/CARBONMOLECULE09/bear-code/internal/api/validate"
	"github.com/CARBONMOLECULE09/bear-code/internal/auth"
	"github.com/CARBONMOLECULE09/bear-code/internal/model"
	"github.com/CARBONMOLECULE09/bear-code/internal/services"
)

// SearchHandler exposes indexing, search and document management.
type SearchHandler struct {
	svc   *services.CodeService
	users auth.Resolver
}

func NewSearchHandler(svc *services.CodeService, users auth.Resolver) *SearchHandler {
	return &SearchHandler{svc: svc, users: users}
}

// IndexCode POST /api/v1/search/index
func (h *SearchHandler) IndexCode(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r, h.users)
	if !ok {
		return
	}
	var req struct {
		Code     string             `json:"code"`
		Language string             `json:"language"`
		Metadata model.CodeMetadata `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if model.IsValidationError(err) {
			respond.WriteServiceError(w, err)
			return
		}
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.IndexCode(req.Code, req.Language); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	rec, err := h.svc.IndexCode(r.Context(), userID, req.Code, req.Language, req.Metadata)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, rec)
}

// SearchCode POST /api/v1/search/query
func (h *SearchHandler) SearchCode(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r, h.users)
	if !ok {
		return
	}
	var req struct {
		Query   string                 `json:"query"`
		Limit   int                    `json:"limit"`
		Filters map[string]interface{} `json:"filters"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.SearchCode(req.Query, req.Limit); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	out, err := h.svc.SearchCode(r.Context(), userID, req.Query, req.Limit, req.Filters)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// ListDocuments GET /api/v1/search/documents
func (h *SearchHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r, h.users)
	if !ok {
		return
	}
	page, err := validate.Page(r.URL.Query().Get("page"), r.URL.Query().Get("limit"))
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	out, err := h.svc.ListDocuments(r.Context(), userID, page)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// DeleteDocument DELETE /api/v1/search/documents/{documentId}
func (h *SearchHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r, h.users)
	if !ok {
		return
	}
	if err := h.svc.DeleteDocument(r.Context(), userID, mux.Vars(r)["documentId"]); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SearchHistory GET /api/v1/search/history
func (h *SearchHandler) SearchHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r, h.users)
	if !ok {
		return
	}
	page, err := validate.Page(r.URL.Query().Get("page"), r.URL.Query().Get("limit"))
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	out, err := h.svc.SearchHistory(r.Context(), userID, page)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// IndexStats GET /api/v1/search/index/stats
func (h *SearchHandler) IndexStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r, h.users)
	if !ok {
		return
	}
	st, err := h.svc.IndexStats(r.Context(), userID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, st)
}
