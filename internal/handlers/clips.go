package handlers

import (
	"net/http"
	"os"
	"slices"
	"strings"

	"github.com/gorilla/mux"

	"clip-catalog/internal/database"
	"clip-catalog/internal/media"
	"clip-catalog/internal/search"
)

// ClipIDsRequest names a set of clips.
type ClipIDsRequest struct {
	ClipIDs []string `json:"clipIds"`
}

// BulkTagRequest attaches or detaches one tag across clips.
type BulkTagRequest struct {
	ClipIDs []string `json:"clipIds"`
	TagID   string   `json:"tagId"`
}

// StarRequest sets the starred flag on one or more clips.
type StarRequest struct {
	ClipIDs []string `json:"clipIds,omitempty"`
	Starred bool     `json:"starred"`
}

// DescriptionRequest replaces a clip's description.
type DescriptionRequest struct {
	Description string `json:"description"`
}

// ClipTagRequest attaches a tag to a single clip.
type ClipTagRequest struct {
	TagID string `json:"tagId"`
}

// ListClips returns the catalog newest first. Optional filters: starred=true,
// tag=<tag id>, dir=<dir source>.
func (h *Handlers) ListClips(w http.ResponseWriter, r *http.Request) {
	clips, err := h.db.GetAllClips(r.Context())
	if err != nil {
		writeStoreError(w, "list clips", err)
		return
	}

	q := r.URL.Query()
	starred := q.Get("starred") == "true"
	tag := q.Get("tag")
	dir := strings.ToLower(q.Get("dir"))
	if starred || tag != "" || dir != "" {
		clips = slices.DeleteFunc(clips, func(c database.Clip) bool {
			return (starred && !c.Starred) ||
				(tag != "" && !slices.Contains(c.Tags, tag)) ||
				(dir != "" && c.DirSource != dir)
		})
	}

	if clips == nil {
		clips = []database.Clip{}
	}
	writeJSON(w, http.StatusOK, clips)
}

// GetClip returns one clip.
func (h *Handlers) GetClip(w http.ResponseWriter, r *http.Request) {
	clip, err := h.db.GetClip(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, "get clip", err)
		return
	}
	writeJSON(w, http.StatusOK, clip)
}

// DeleteClips removes clips from the catalog. Files on disk are untouched,
// so a later scan will re-add any that still exist.
func (h *Handlers) DeleteClips(w http.ResponseWriter, r *http.Request) {
	var req ClipIDsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.ClipIDs) == 0 {
		writeJSONError(w, "clipIds is required", http.StatusBadRequest)
		return
	}

	n, err := h.db.DeleteClips(r.Context(), req.ClipIDs)
	if err != nil {
		writeStoreError(w, "delete clips", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// UpdateDescription stores a description and refreshes its embedding.
func (h *Handlers) UpdateDescription(w http.ResponseWriter, r *http.Request) {
	var req DescriptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := search.Describe(r.Context(), h.db, mux.Vars(r)["id"], req.Description); err != nil {
		writeStoreError(w, "update description", err)
		return
	}
	writeJSONStatus(w, "ok")
}

// SetStarred stars or unstars one clip.
func (h *Handlers) SetStarred(w http.ResponseWriter, r *http.Request) {
	var req StarRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.db.SetStarred(r.Context(), mux.Vars(r)["id"], req.Starred); err != nil {
		writeStoreError(w, "star clip", err)
		return
	}
	writeJSONStatus(w, "ok")
}

// GetClipTags returns the tag ids attached to a clip.
func (h *Handlers) GetClipTags(w http.ResponseWriter, r *http.Request) {
	ids, err := h.db.GetClipTagIDs(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, "get clip tags", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

// AddClipTag attaches a tag to one clip.
func (h *Handlers) AddClipTag(w http.ResponseWriter, r *http.Request) {
	var req ClipTagRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TagID == "" {
		writeJSONError(w, "tagId is required", http.StatusBadRequest)
		return
	}
	if err := h.db.AddClipTag(r.Context(), mux.Vars(r)["id"], req.TagID); err != nil {
		writeStoreError(w, "tag clip", err)
		return
	}
	writeJSONStatus(w, "ok")
}

// RemoveClipTag detaches a tag from one clip.
func (h *Handlers) RemoveClipTag(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.db.RemoveClipTag(r.Context(), vars["id"], vars["tagId"]); err != nil {
		writeStoreError(w, "untag clip", err)
		return
	}
	writeJSONStatus(w, "ok")
}

// BulkTag attaches a tag to every listed clip, all or nothing.
func (h *Handlers) BulkTag(w http.ResponseWriter, r *http.Request) {
	var req BulkTagRequest
	if !decodeBulkTag(w, r, &req) {
		return
	}
	if err := h.db.BulkAddTag(r.Context(), req.ClipIDs, req.TagID); err != nil {
		writeStoreError(w, "tag clips", err)
		return
	}
	writeJSONStatus(w, "ok")
}

// BulkUntag detaches a tag from every listed clip, all or nothing.
func (h *Handlers) BulkUntag(w http.ResponseWriter, r *http.Request) {
	var req BulkTagRequest
	if !decodeBulkTag(w, r, &req) {
		return
	}
	if err := h.db.BulkRemoveTag(r.Context(), req.ClipIDs, req.TagID); err != nil {
		writeStoreError(w, "untag clips", err)
		return
	}
	writeJSONStatus(w, "ok")
}

func decodeBulkTag(w http.ResponseWriter, r *http.Request, req *BulkTagRequest) bool {
	if !decodeJSON(w, r, req) {
		return false
	}
	if req.TagID == "" || len(req.ClipIDs) == 0 {
		writeJSONError(w, "clipIds and tagId are required", http.StatusBadRequest)
		return false
	}
	return true
}

// BulkStar sets the starred flag on every listed clip, all or nothing.
func (h *Handlers) BulkStar(w http.ResponseWriter, r *http.Request) {
	var req StarRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.ClipIDs) == 0 {
		writeJSONError(w, "clipIds is required", http.StatusBadRequest)
		return
	}
	if err := h.db.BulkStar(r.Context(), req.ClipIDs, req.Starred); err != nil {
		writeStoreError(w, "star clips", err)
		return
	}
	writeJSONStatus(w, "ok")
}

// GetThumbnail serves a clip's generated thumbnail.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	clip, err := h.db.GetClip(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, "get clip", err)
		return
	}
	if clip.ThumbPath == nil {
		writeJSONError(w, "Thumbnail not generated yet", http.StatusNotFound)
		return
	}
	if _, err := os.Stat(*clip.ThumbPath); err != nil {
		writeJSONError(w, "Thumbnail missing", http.StatusNotFound)
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=86400")
	http.ServeFile(w, r, *clip.ThumbPath)
}

// GetWaveform returns normalised audio peaks for a clip. The optional bars
// query parameter picks the resolution; the default one is cached after the
// first request.
func (h *Handlers) GetWaveform(w http.ResponseWriter, r *http.Request) {
	if h.waveforms == nil {
		writeJSONError(w, "Waveforms unavailable", http.StatusServiceUnavailable)
		return
	}

	clip, err := h.db.GetClip(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, "get clip", err)
		return
	}

	bars := intParam(r, "bars", media.DefaultWaveformBars, media.MaxWaveformBars)
	peaks, err := media.CachedWaveform(r.Context(), h.db, h.waveforms, clip.ID, clip.Path, bars)
	if err != nil {
		writeStoreError(w, "compute waveform", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"clipId": clip.ID,
		"peaks":  peaks,
	})
}
