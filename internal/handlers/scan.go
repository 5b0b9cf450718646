package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"clip-catalog/internal/logging"
	"clip-catalog/internal/media"
	"clip-catalog/internal/watchdirs"
)

// WatchDirsResponse describes both the stored list and what a scan will use.
type WatchDirsResponse struct {
	Configured []string `json:"configured"`
	Resolved   []string `json:"resolved"`
	Existing   []string `json:"existing"`
}

// WatchDirsRequest replaces the persisted watch directories.
type WatchDirsRequest struct {
	Dirs []string `json:"dirs"`
}

// ScanNow runs a full pass synchronously and returns its result.
func (h *Handlers) ScanNow(w http.ResponseWriter, r *http.Request) {
	res, err := h.scanner.ScanDetailed(r.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			writeJSONError(w, "Scan cancelled", http.StatusServiceUnavailable)
			return
		}
		writeStoreError(w, "scan", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ScanStatus reports scanner activity without starting a pass.
func (h *Handlers) ScanStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.scanner.Status())
}

func (h *Handlers) GetWatchDirs(w http.ResponseWriter, r *http.Request) {
	configured, err := h.dirs.Configured(r.Context())
	if err != nil {
		logging.Warn("Reading watch directories: %v", err)
	}
	resolved := h.dirs.Resolve(r.Context())

	resp := WatchDirsResponse{
		Configured: nonNil(configured),
		Resolved:   nonNil(resolved),
		Existing:   nonNil(watchdirs.Existing(resolved)),
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetWatchDirs persists a new list. An empty list reverts to the platform
// default.
func (h *Handlers) SetWatchDirs(w http.ResponseWriter, r *http.Request) {
	var req WatchDirsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	saved, err := h.dirs.Set(r.Context(), req.Dirs)
	if err != nil {
		writeStoreError(w, "save watch directories", err)
		return
	}

	resolved := h.dirs.Resolve(r.Context())
	if h.onDirsChanged != nil {
		h.onDirsChanged(resolved)
	}

	writeJSON(w, http.StatusOK, WatchDirsResponse{
		Configured: nonNil(saved),
		Resolved:   nonNil(resolved),
		Existing:   nonNil(watchdirs.Existing(resolved)),
	})
}

// TriggerBackfill starts a thumbnail and probe run in the background.
func (h *Handlers) TriggerBackfill(w http.ResponseWriter, _ *http.Request) {
	if h.backfill == nil {
		writeJSONError(w, "Backfill unavailable", http.StatusServiceUnavailable)
		return
	}
	if h.backfill.IsRunning() {
		writeJSONError(w, media.ErrBackfillRunning.Error(), http.StatusConflict)
		return
	}

	go func() {
		start := time.Now()
		res, err := h.backfill.Run(h.ctx)
		switch {
		case errors.Is(err, media.ErrBackfillRunning):
			logging.Debug("Backfill already running, request ignored")
		case err != nil && h.ctx.Err() == nil:
			logging.Error("Backfill failed after %v: %v", time.Since(start).Round(time.Millisecond), err)
		case err == nil:
			logging.Info("Backfill finished: %d thumbnails, %d probed, %d failed", res.Thumbnails, res.Probed, res.Failed)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// GetStats returns catalog counts.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.Stats(r.Context())
	if err != nil {
		writeStoreError(w, "get stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
