package handlers

import (
	"net/http"
	"runtime"
	"time"

	"clip-catalog/internal/startup"
	"clip-catalog/internal/watcher"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	Scanning     bool   `json:"scanning"`
	ScanRuns     int64  `json:"scanRuns"`
	LastScan     string `json:"lastScan,omitempty"`
	LastScanErr  string `json:"lastScanError,omitempty"`
	WatcherState string `json:"watcherState,omitempty"`
	WatchedDirs  int    `json:"watchedDirs"`

	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// ready is true once the first scan has finished.
func (h *Handlers) ready() bool {
	return h.scanner.Status().Runs > 0
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	st := h.scanner.Status()

	resp := HealthResponse{
		Ready:        st.Runs > 0,
		Version:      startup.Version,
		Uptime:       time.Since(h.started).Round(time.Second).String(),
		Scanning:     st.Scanning,
		ScanRuns:     st.Runs,
		LastScanErr:  st.LastError,
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}
	if !st.LastScan.IsZero() {
		resp.LastScan = st.LastScan.Format(time.RFC3339)
	}

	resp.Status = statusHealthy
	if !resp.Ready {
		resp.Status = statusStarting
	}
	if st.LastError != "" {
		resp.Status = statusDegraded
	}

	if h.watcher != nil {
		state := h.watcher.State()
		resp.WatcherState = state.String()
		resp.WatchedDirs = len(h.watcher.Watched())
		if state == watcher.StateStopped && h.ctx.Err() == nil {
			resp.Status = statusDegraded
		}
	}

	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	if r.Method == http.MethodHead {
		w.WriteHeader(code)
		return
	}
	writeJSON(w, code, resp)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ReadinessCheck returns 200 only when the service is ready to accept traffic
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if h.ready() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}
