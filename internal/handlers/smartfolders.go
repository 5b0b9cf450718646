package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"clip-catalog/internal/database"
)

// SmartFolderRequest creates or updates a smart folder. Rules are stored
// as given.
type SmartFolderRequest struct {
	Name  string          `json:"name"`
	Color string          `json:"color,omitempty"`
	Rules json.RawMessage `json:"rules"`
}

func (h *Handlers) GetAllSmartFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.db.GetAllSmartFolders(r.Context())
	if err != nil {
		writeStoreError(w, "get smart folders", err)
		return
	}
	if folders == nil {
		folders = []database.SmartFolder{}
	}
	writeJSON(w, http.StatusOK, folders)
}

func (h *Handlers) CreateSmartFolder(w http.ResponseWriter, r *http.Request) {
	var req SmartFolderRequest
	if !decodeSmartFolder(w, r, &req) {
		return
	}

	folder, err := h.db.CreateSmartFolder(r.Context(), req.Name, req.Color, database.RuleSet(req.Rules))
	if err != nil {
		writeStoreError(w, "create smart folder", err)
		return
	}
	writeJSON(w, http.StatusCreated, folder)
}

func (h *Handlers) UpdateSmartFolder(w http.ResponseWriter, r *http.Request) {
	var req SmartFolderRequest
	if !decodeSmartFolder(w, r, &req) {
		return
	}

	id := mux.Vars(r)["id"]
	if err := h.db.UpdateSmartFolder(r.Context(), id, req.Name, req.Color, database.RuleSet(req.Rules)); err != nil {
		writeStoreError(w, "update smart folder", err)
		return
	}
	writeJSONStatus(w, "ok")
}

func (h *Handlers) DeleteSmartFolder(w http.ResponseWriter, r *http.Request) {
	if err := h.db.DeleteSmartFolder(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeStoreError(w, "delete smart folder", err)
		return
	}
	writeJSONStatus(w, "ok")
}

func decodeSmartFolder(w http.ResponseWriter, r *http.Request, req *SmartFolderRequest) bool {
	if !decodeJSON(w, r, req) {
		return false
	}
	if strings.TrimSpace(req.Name) == "" {
		writeJSONError(w, "name is required", http.StatusBadRequest)
		return false
	}
	if len(req.Rules) == 0 || string(req.Rules) == "null" {
		req.Rules = json.RawMessage("[]")
	}
	return true
}
