package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"clip-catalog/internal/database"
)

// TagRequest creates a tag.
type TagRequest struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// GetAllTags returns all tags with their clip counts.
func (h *Handlers) GetAllTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.db.GetAllTags(r.Context())
	if err != nil {
		writeStoreError(w, "get tags", err)
		return
	}
	if tags == nil {
		tags = []database.Tag{}
	}
	writeJSON(w, http.StatusOK, tags)
}

// CreateTag adds a tag. Names are unique.
func (h *Handlers) CreateTag(w http.ResponseWriter, r *http.Request) {
	var req TagRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeJSONError(w, "name is required", http.StatusBadRequest)
		return
	}

	tag, err := h.db.CreateTag(r.Context(), req.Name, req.Color)
	if err != nil {
		writeStoreError(w, "create tag", err)
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}

// DeleteTag removes a tag from the catalog and from every clip.
func (h *Handlers) DeleteTag(w http.ResponseWriter, r *http.Request) {
	if err := h.db.DeleteTag(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeStoreError(w, "delete tag", err)
		return
	}
	writeJSONStatus(w, "ok")
}
