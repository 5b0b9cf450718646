package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"clip-catalog/internal/database"
)

// CollectionRequest creates or updates a collection.
type CollectionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color,omitempty"`
	SortOrder   int    `json:"sortOrder"`
}

func (h *Handlers) GetAllCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := h.db.GetAllCollections(r.Context())
	if err != nil {
		writeStoreError(w, "get collections", err)
		return
	}
	if cols == nil {
		cols = []database.Collection{}
	}
	writeJSON(w, http.StatusOK, cols)
}

func (h *Handlers) CreateCollection(w http.ResponseWriter, r *http.Request) {
	var req CollectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeJSONError(w, "name is required", http.StatusBadRequest)
		return
	}

	col, err := h.db.CreateCollection(r.Context(), req.Name, req.Description, req.Color)
	if err != nil {
		writeStoreError(w, "create collection", err)
		return
	}
	writeJSON(w, http.StatusCreated, col)
}

func (h *Handlers) UpdateCollection(w http.ResponseWriter, r *http.Request) {
	var req CollectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeJSONError(w, "name is required", http.StatusBadRequest)
		return
	}

	col := &database.Collection{
		ID:          mux.Vars(r)["id"],
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
		SortOrder:   req.SortOrder,
	}
	if col.Color == "" {
		col.Color = database.DefaultTagColor
	}
	if err := h.db.UpdateCollection(r.Context(), col); err != nil {
		writeStoreError(w, "update collection", err)
		return
	}
	writeJSON(w, http.StatusOK, col)
}

func (h *Handlers) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	if err := h.db.DeleteCollection(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeStoreError(w, "delete collection", err)
		return
	}
	writeJSONStatus(w, "ok")
}

// GetCollectionClips returns member clip ids in collection order.
func (h *Handlers) GetCollectionClips(w http.ResponseWriter, r *http.Request) {
	ids, err := h.db.GetCollectionClipIDs(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, "get collection clips", err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

// AddCollectionClips appends clips to a collection, all or nothing.
func (h *Handlers) AddCollectionClips(w http.ResponseWriter, r *http.Request) {
	var req ClipIDsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.ClipIDs) == 0 {
		writeJSONError(w, "clipIds is required", http.StatusBadRequest)
		return
	}
	if err := h.db.AddClipsToCollection(r.Context(), mux.Vars(r)["id"], req.ClipIDs); err != nil {
		writeStoreError(w, "add clips to collection", err)
		return
	}
	writeJSONStatus(w, "ok")
}

// RemoveCollectionClips drops clips from a collection; the clips remain in
// the catalog.
func (h *Handlers) RemoveCollectionClips(w http.ResponseWriter, r *http.Request) {
	var req ClipIDsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.ClipIDs) == 0 {
		writeJSONError(w, "clipIds is required", http.StatusBadRequest)
		return
	}
	if err := h.db.RemoveClipsFromCollection(r.Context(), mux.Vars(r)["id"], req.ClipIDs); err != nil {
		writeStoreError(w, "remove clips from collection", err)
		return
	}
	writeJSONStatus(w, "ok")
}
