package handlers

import (
	"net/http"
	"strings"

	"clip-catalog/internal/database"
	"clip-catalog/internal/search"
)

const maxSearchLimit = 200

// SearchHit pairs a match score with its clip.
type SearchHit struct {
	Score float32        `json:"score"`
	Clip  *database.Clip `json:"clip"`
}

// SearchResponse is returned by GET /api/search.
type SearchResponse struct {
	Query   string      `json:"query"`
	Results []SearchHit `json:"results"`
}

// Search ranks clips by how closely their descriptions match q.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	resp := SearchResponse{Query: query, Results: []SearchHit{}}
	if query == "" {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	limit := intParam(r, "limit", search.DefaultLimit, maxSearchLimit)
	matches, err := search.Search(r.Context(), h.db, query, limit)
	if err != nil {
		writeStoreError(w, "search", err)
		return
	}

	for _, m := range matches {
		clip, err := h.db.GetClip(r.Context(), m.ClipID)
		if err != nil {
			// deleted between the two reads
			continue
		}
		resp.Results = append(resp.Results, SearchHit{Score: m.Score, Clip: clip})
	}
	writeJSON(w, http.StatusOK, resp)
}
