package handlers

import (
	"context"
	"net/http"
	"time"

	"clip-catalog/internal/startup"
)

// GetVersion returns the application version and build information
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, startup.GetBuildInfo())
}

// MediaToolsResponse reports which external tools were found.
type MediaToolsResponse struct {
	FFmpeg    string `json:"ffmpeg"`
	FFprobe   string `json:"ffprobe"`
	Available bool   `json:"available"`
}

// GetMediaTools reports whether ffmpeg and ffprobe can be run.
func (h *Handlers) GetMediaTools(w http.ResponseWriter, r *http.Request) {
	if h.tools == nil {
		writeJSON(w, http.StatusOK, MediaToolsResponse{})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	writeJSON(w, http.StatusOK, MediaToolsResponse{
		FFmpeg:    h.tools.FFmpeg,
		FFprobe:   h.tools.FFprobe,
		Available: h.tools.Available(ctx),
	})
}
