package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"clip-catalog/internal/metrics"
)

func TestResponseWriterWriteHeader(t *testing.T) {
	t.Parallel()

	rw := newResponseWriter(httptest.NewRecorder())
	if rw.statusCode != http.StatusOK {
		t.Errorf("Expected default status code 200, got %d", rw.statusCode)
	}

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusInternalServerError)
	if rw.statusCode != http.StatusNotFound {
		t.Errorf("Status code = %d, want first value 404", rw.statusCode)
	}
}

func TestResponseWriterWrite(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)
	if _, err := rw.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if _, err := rw.Write([]byte(" world")); err != nil {
		t.Fatal(err)
	}
	if rw.bytesWritten != 11 {
		t.Errorf("bytesWritten = %d, want 11", rw.bytesWritten)
	}
	if !rw.wroteHeader {
		t.Error("Expected Write to mark the header written")
	}
	if rw.Unwrap() != rec {
		t.Error("Unwrap should return the underlying writer")
	}
}

func TestResponseWriterHijackUnsupported(t *testing.T) {
	t.Parallel()

	rw := newResponseWriter(httptest.NewRecorder())
	if _, _, err := rw.Hijack(); err == nil {
		t.Error("Expected error hijacking a recorder")
	}
}

func TestShouldSkip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		path   string
		config LoggingConfig
		want   bool
	}{
		{"api request", "/api/clips", DefaultLoggingConfig(), false},
		{"health check off", "/healthz", LoggingConfig{LogHealthChecks: false}, true},
		{"health check on", "/healthz", LoggingConfig{LogHealthChecks: true}, false},
		{"skip prefix", "/api/events", LoggingConfig{SkipPaths: []string{"/api/events"}}, true},
	}
	for _, tt := range tests {
		if got := shouldSkip(tt.path, tt.config); got != tt.want {
			t.Errorf("%s: shouldSkip(%q) = %v, want %v", tt.name, tt.path, got, tt.want)
		}
	}
}

func TestSanitizeLogField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"a\nb\rc", "a b c"},
		{"nul\x00byte", "nulbyte"},
		{"\x1b[31mred", "[31mred"},
		{"tab\tok", "tab\tok"},
	}
	for _, tt := range tests {
		if got := sanitizeLogField(tt.in); got != tt.want {
			t.Errorf("sanitizeLogField(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatLine(t *testing.T) {
	t.Parallel()

	l := NewW3CLogger(DefaultLoggingConfig(), "test")
	req := httptest.NewRequest(http.MethodGet, "/api/search?q=desk", http.NoBody)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("User-Agent", "curl 8.0")

	rw := newResponseWriter(httptest.NewRecorder())
	rw.WriteHeader(http.StatusTeapot)
	_, _ = rw.Write([]byte("abc"))

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got := l.formatLine(now, req, rw, 12*time.Millisecond)
	want := `2026-01-02 03:04:05 10.0.0.1 GET /api/search q=desk 418 3 12 - "curl 8.0" -`
	if got != want {
		t.Errorf("formatLine() =\n%s\nwant\n%s", got, want)
	}
}

func TestGetClientIP(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "192.168.1.5:1234"
	if got := getClientIP(req); got != "192.168.1.5" {
		t.Errorf("RemoteAddr: got %q", got)
	}

	req.Header.Set("X-Real-IP", "10.1.1.1")
	if got := getClientIP(req); got != "10.1.1.1" {
		t.Errorf("X-Real-IP: got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	if got := getClientIP(req); got != "1.2.3.4" {
		t.Errorf("X-Forwarded-For: got %q", got)
	}
}

func TestLoggerPassesThrough(t *testing.T) {
	t.Parallel()

	handler := Logger(DefaultLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tags", http.NoBody))
	if rec.Code != http.StatusCreated || rec.Body.String() != "ok" {
		t.Errorf("Response = %d %q", rec.Code, rec.Body.String())
	}
}

func TestCompressionMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name              string
		body              string
		contentType       string
		accept            string
		acceptEncoding    string
		expectCompression bool
	}{
		{"large JSON", strings.Repeat(`{"key":"value"}`, 200), "application/json", "", "gzip", true},
		{"small JSON", `{"ok":true}`, "application/json", "", "gzip", false},
		{"thumbnail", strings.Repeat("data", 500), "image/jpeg", "", "gzip", false},
		{"no gzip support", strings.Repeat(`{"k":1}`, 500), "application/json", "", "", false},
		{"event stream", strings.Repeat("data: x\n\n", 500), "text/event-stream", "text/event-stream", "gzip", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				_, _ = w.Write([]byte(tt.body))
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/clips", http.NoBody)
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			compressed := rec.Header().Get("Content-Encoding") == "gzip"
			if compressed != tt.expectCompression {
				t.Fatalf("compressed = %v, want %v", compressed, tt.expectCompression)
			}

			body := rec.Body.String()
			if compressed {
				gr, err := gzip.NewReader(rec.Body)
				if err != nil {
					t.Fatalf("gzip.NewReader: %v", err)
				}
				defer gr.Close()
				raw, err := io.ReadAll(gr)
				if err != nil {
					t.Fatalf("decompress: %v", err)
				}
				body = string(raw)
			}
			if body != tt.body {
				t.Error("Body does not round-trip")
			}
		})
	}
}

func TestCompressionMultipleWrites(t *testing.T) {
	t.Parallel()

	chunk := strings.Repeat("x", 600)
	handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		for range 4 {
			_, _ = w.Write([]byte(chunk))
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	gr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	defer gr.Close()
	raw, _ := io.ReadAll(gr)
	if len(raw) != 4*len(chunk) {
		t.Errorf("Decompressed %d bytes, want %d", len(raw), 4*len(chunk))
	}
}

func TestCompressionKeepsStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		body       string
		compressed bool
	}{
		{"large error", http.StatusNotFound, strings.Repeat(`{"error":"missing"}`, 100), true},
		{"empty response", http.StatusNoContent, "", false},
		{"small created", http.StatusCreated, `{"id":"x"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			config := DefaultCompressionConfig()
			config.Level = gzip.BestSpeed
			handler := Compression(config)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/clips/x", http.NoBody)
			req.Header.Set("Accept-Encoding", "gzip, deflate")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := rec.Header().Get("Content-Encoding") == "gzip"; got != tt.compressed {
				t.Errorf("compressed = %v, want %v", got, tt.compressed)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"/api/clips", "/api/clips"},
		{"/api/clips/abc", "/api/clips/abc"},
		{"/api/clips/abc/thumbnail", "/api/clips/abc/{path}"},
		{"/a/b/c/d/e/f", "/a/b/c/{path}"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.in); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsStreamingPath(t *testing.T) {
	t.Parallel()

	cfg := DefaultMetricsConfig()
	if !isStreamingPath("/api/events", cfg.StreamingPaths) {
		t.Error("Expected /api/events to be streaming")
	}
	if isStreamingPath("/api/clips", cfg.StreamingPaths) {
		t.Error("Did not expect /api/clips to be streaming")
	}
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Metrics(DefaultMetricsConfig()))
	r.HandleFunc("/api/clips/{id}/star", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPut)

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodPut, "/api/clips/{id}/star", "204")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/clips/"+id+"/star", http.NoBody))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d", rec.Code)
		}
	}

	if got := testutil.ToFloat64(counter) - before; got != 3 {
		t.Errorf("Expected 3 requests under one template label, got %v", got)
	}
}

func TestMetricsSkipPaths(t *testing.T) {
	handler := Metrics(DefaultMetricsConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/healthz", "200")
	before := testutil.ToFloat64(counter)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))

	if testutil.ToFloat64(counter) != before {
		t.Error("Health checks should not be recorded")
	}
}
