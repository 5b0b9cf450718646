package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"clip-catalog/internal/database"
	"clip-catalog/internal/events"
	"clip-catalog/internal/scanner"
	"clip-catalog/internal/watchdirs"
)

type testEnv struct {
	h        *Handlers
	db       *database.Database
	bus      *events.Bus
	watchDir string
}

// setupIntegrationTest wires handlers to a real catalog in a temp directory
// with one watch directory.
func setupIntegrationTest(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	tempDir := t.TempDir()
	watchDir := filepath.Join(tempDir, "videos")
	if err := os.MkdirAll(watchDir, 0o755); err != nil {
		t.Fatalf("failed to create watch directory: %v", err)
	}

	db, err := database.New(context.Background(), filepath.Join(tempDir, "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	dirs := watchdirs.NewResolver(db, watchdirs.WithDefault(func() string { return "" }))
	if _, err := dirs.Set(context.Background(), []string{watchDir}); err != nil {
		t.Fatalf("failed to set watch directory: %v", err)
	}

	bus := events.NewBus()
	t.Cleanup(bus.Close)

	sc := scanner.New(db, dirs, scanner.WithPublisher(bus))
	return &testEnv{
		h:        New(db, sc, dirs, bus, opts...),
		db:       db,
		bus:      bus,
		watchDir: watchDir,
	}
}

func (e *testEnv) addFile(t *testing.T, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(e.watchDir, name), []byte("data"), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func (e *testEnv) scan(t *testing.T) []database.Clip {
	t.Helper()
	w := httptest.NewRecorder()
	e.h.ScanNow(w, httptest.NewRequest(http.MethodPost, "/api/scan", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("scan status = %d: %s", w.Code, w.Body.String())
	}
	var res struct {
		Clips []database.Clip `json:"clips"`
	}
	decodeBody(t, w, &res)
	return res.Clips
}

func do(handler http.HandlerFunc, method, target, body string, vars map[string]string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, bytes.NewBufferString(body))
	}
	if vars != nil {
		r = mux.SetURLVars(r, vars)
	}
	w := httptest.NewRecorder()
	handler(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}
}

func TestScanAndListClipsIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := setupIntegrationTest(t)
	env.addFile(t, "2026-01-28 18-40-28.mp4")
	env.addFile(t, "2026-01-29_09-00-00.mp4")
	env.addFile(t, "notes.txt")
	env.addFile(t, "2026-01-30_09-00-00.mov")

	clips := env.scan(t)
	if len(clips) != 2 {
		t.Fatalf("scan returned %d clips, want 2", len(clips))
	}
	if clips[0].Filename != "2026-01-29_09-00-00.mp4" {
		t.Errorf("first clip = %s, want newest first", clips[0].Filename)
	}

	// a second pass inserts nothing and keeps ids
	again := env.scan(t)
	if len(again) != 2 || again[0].ID != clips[0].ID {
		t.Errorf("rescan changed catalog: %+v", again)
	}

	w := do(env.h.ListClips, http.MethodGet, "/api/clips", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var listed []database.Clip
	decodeBody(t, w, &listed)
	if len(listed) != 2 {
		t.Errorf("listed %d clips, want 2", len(listed))
	}

	w = do(env.h.GetClip, http.MethodGet, "/api/clips/x", "", map[string]string{"id": clips[1].ID})
	if w.Code != http.StatusOK {
		t.Errorf("get clip status = %d", w.Code)
	}
	w = do(env.h.GetClip, http.MethodGet, "/api/clips/x", "", map[string]string{"id": "missing"})
	if w.Code != http.StatusNotFound {
		t.Errorf("get missing clip status = %d, want 404", w.Code)
	}

	w = do(env.h.ScanStatus, http.MethodGet, "/api/scan/status", "", nil)
	var st scanner.Status
	decodeBody(t, w, &st)
	if st.Runs != 2 || st.Scanning {
		t.Errorf("status = %+v, want 2 idle runs", st)
	}
}

func TestListClipsFiltersIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := setupIntegrationTest(t)
	env.addFile(t, "2026-01-01_10-00-00.mp4")
	env.addFile(t, "2026-01-02_10-00-00.mp4")
	clips := env.scan(t)

	ctx := context.Background()
	tag, err := env.db.CreateTag(ctx, "beach", "")
	if err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	if err := env.db.AddClipTag(ctx, clips[0].ID, tag.ID); err != nil {
		t.Fatalf("AddClipTag: %v", err)
	}
	if err := env.db.SetStarred(ctx, clips[1].ID, true); err != nil {
		t.Fatalf("SetStarred: %v", err)
	}

	tests := []struct {
		name   string
		query  string
		wantID string
		want   int
	}{
		{"starred", "?starred=true", clips[1].ID, 1},
		{"tag", "?tag=" + tag.ID, clips[0].ID, 1},
		{"dir", "?dir=videos", "", 2},
		{"unknown dir", "?dir=elsewhere", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(env.h.ListClips, http.MethodGet, "/api/clips"+tt.query, "", nil)
			var got []database.Clip
			decodeBody(t, w, &got)
			if len(got) != tt.want {
				t.Fatalf("got %d clips, want %d", len(got), tt.want)
			}
			if tt.wantID != "" && got[0].ID != tt.wantID {
				t.Errorf("got clip %s, want %s", got[0].ID, tt.wantID)
			}
		})
	}
}

func TestTagsIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := setupIntegrationTest(t)
	env.addFile(t, "2026-01-01_10-00-00.mp4")
	env.addFile(t, "2026-01-02_10-00-00.mp4")
	clips := env.scan(t)

	w := do(env.h.CreateTag, http.MethodPost, "/api/tags", `{"name":"surf"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create tag status = %d: %s", w.Code, w.Body.String())
	}
	var tag database.Tag
	decodeBody(t, w, &tag)
	if tag.Color != database.DefaultTagColor {
		t.Errorf("color = %q, want default", tag.Color)
	}

	w = do(env.h.CreateTag, http.MethodPost, "/api/tags", `{"name":"surf"}`, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate tag status = %d, want 409", w.Code)
	}
	w = do(env.h.CreateTag, http.MethodPost, "/api/tags", `{"name":"  "}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank tag status = %d, want 400", w.Code)
	}

	body := `{"clipIds":["` + clips[0].ID + `","` + clips[1].ID + `"],"tagId":"` + tag.ID + `"}`
	w = do(env.h.BulkTag, http.MethodPost, "/api/clips/bulk/tag", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("bulk tag status = %d: %s", w.Code, w.Body.String())
	}

	w = do(env.h.GetClipTags, http.MethodGet, "/", "", map[string]string{"id": clips[0].ID})
	var ids []string
	decodeBody(t, w, &ids)
	if len(ids) != 1 || ids[0] != tag.ID {
		t.Errorf("clip tags = %v, want [%s]", ids, tag.ID)
	}

	// one unknown id rolls back the whole batch
	bad := `{"clipIds":["` + clips[0].ID + `","nope"],"tagId":"` + tag.ID + `"}`
	w = do(env.h.BulkUntag, http.MethodPost, "/api/clips/bulk/untag", bad, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("bulk untag with unknown clip = %d, want 404", w.Code)
	}
	w = do(env.h.GetClipTags, http.MethodGet, "/", "", map[string]string{"id": clips[0].ID})
	decodeBody(t, w, &ids)
	if len(ids) != 1 {
		t.Errorf("clip tags after failed untag = %v, want unchanged", ids)
	}
	w = do(env.h.BulkTag, http.MethodPost, "/api/clips/bulk/tag", `{"clipIds":["nope"],"tagId":"`+tag.ID+`"}`, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("bulk tag unknown clip status = %d, want 404", w.Code)
	}

	w = do(env.h.RemoveClipTag, http.MethodDelete, "/", "", map[string]string{"id": clips[1].ID, "tagId": tag.ID})
	if w.Code != http.StatusOK {
		t.Errorf("remove clip tag status = %d", w.Code)
	}

	w = do(env.h.DeleteTag, http.MethodDelete, "/", "", map[string]string{"id": tag.ID})
	if w.Code != http.StatusOK {
		t.Errorf("delete tag status = %d", w.Code)
	}
	w = do(env.h.DeleteTag, http.MethodDelete, "/", "", map[string]string{"id": tag.ID})
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestStarAndDescribeIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := setupIntegrationTest(t)
	env.addFile(t, "2026-01-01_10-00-00.mp4")
	env.addFile(t, "2026-01-02_10-00-00.mp4")
	clips := env.scan(t)

	w := do(env.h.BulkStar, http.MethodPost, "/", `{"clipIds":["`+clips[0].ID+`","`+clips[1].ID+`"],"starred":true}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("bulk star status = %d: %s", w.Code, w.Body.String())
	}
	w = do(env.h.SetStarred, http.MethodPut, "/", `{"starred":false}`, map[string]string{"id": clips[0].ID})
	if w.Code != http.StatusOK {
		t.Fatalf("star status = %d", w.Code)
	}

	got, err := env.db.GetClip(context.Background(), clips[0].ID)
	if err != nil {
		t.Fatalf("GetClip: %v", err)
	}
	if got.Starred {
		t.Error("clip still starred")
	}

	w = do(env.h.UpdateDescription, http.MethodPut, "/", `{"description":"sunset over the harbour"}`, map[string]string{"id": clips[1].ID})
	if w.Code != http.StatusOK {
		t.Fatalf("describe status = %d: %s", w.Code, w.Body.String())
	}

	w = do(env.h.Search, http.MethodGet, "/api/search?q=harbour+sunset", "", nil)
	var res SearchResponse
	decodeBody(t, w, &res)
	if len(res.Results) != 1 || res.Results[0].Clip.ID != clips[1].ID {
		t.Errorf("search results = %+v, want the described clip", res.Results)
	}

	w = do(env.h.Search, http.MethodGet, "/api/search?q=", "", nil)
	decodeBody(t, w, &res)
	if len(res.Results) != 0 {
		t.Errorf("empty query returned %d results", len(res.Results))
	}
}

func TestCollectionsIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := setupIntegrationTest(t)
	env.addFile(t, "2026-01-01_10-00-00.mp4")
	clips := env.scan(t)

	w := do(env.h.CreateCollection, http.MethodPost, "/", `{"name":"Trip"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create collection status = %d: %s", w.Code, w.Body.String())
	}
	var col database.Collection
	decodeBody(t, w, &col)

	vars := map[string]string{"id": col.ID}
	w = do(env.h.AddCollectionClips, http.MethodPost, "/", `{"clipIds":["`+clips[0].ID+`"]}`, vars)
	if w.Code != http.StatusOK {
		t.Fatalf("add clips status = %d: %s", w.Code, w.Body.String())
	}

	w = do(env.h.GetCollectionClips, http.MethodGet, "/", "", vars)
	var ids []string
	decodeBody(t, w, &ids)
	if len(ids) != 1 {
		t.Errorf("collection clips = %v, want 1", ids)
	}

	w = do(env.h.RemoveCollectionClips, http.MethodDelete, "/", `{"clipIds":["`+clips[0].ID+`"]}`, vars)
	if w.Code != http.StatusOK {
		t.Errorf("remove clips status = %d", w.Code)
	}

	w = do(env.h.DeleteCollection, http.MethodDelete, "/", "", vars)
	if w.Code != http.StatusOK {
		t.Errorf("delete collection status = %d", w.Code)
	}
	w = do(env.h.DeleteCollection, http.MethodDelete, "/", "", vars)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestSmartFoldersIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := setupIntegrationTest(t)

	w := do(env.h.CreateSmartFolder, http.MethodPost, "/", `{"name":"Recent"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	var folder database.SmartFolder
	decodeBody(t, w, &folder)
	if string(folder.Rules) != "[]" {
		t.Errorf("rules = %s, want []", folder.Rules)
	}

	rules := `{"name":"Recent","rules":[{"field":"recordedAt","op":"within","value":"7d"}]}`
	w = do(env.h.UpdateSmartFolder, http.MethodPut, "/", rules, map[string]string{"id": folder.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", w.Code, w.Body.String())
	}

	w = do(env.h.GetAllSmartFolders, http.MethodGet, "/", "", nil)
	var all []database.SmartFolder
	decodeBody(t, w, &all)
	if len(all) != 1 || !strings.Contains(string(all[0].Rules), "within") {
		t.Errorf("folders = %+v, want updated rules", all)
	}

	w = do(env.h.UpdateSmartFolder, http.MethodPut, "/", rules, map[string]string{"id": "missing"})
	if w.Code != http.StatusNotFound {
		t.Errorf("update missing status = %d, want 404", w.Code)
	}
}

func TestDeleteClipsIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := setupIntegrationTest(t)
	env.addFile(t, "2026-01-01_10-00-00.mp4")
	clips := env.scan(t)

	w := do(env.h.DeleteClips, http.MethodDelete, "/", `{"clipIds":[]}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty delete status = %d, want 400", w.Code)
	}

	w = do(env.h.DeleteClips, http.MethodDelete, "/", `{"clipIds":["`+clips[0].ID+`"]}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", w.Code, w.Body.String())
	}
	var res map[string]int64
	decodeBody(t, w, &res)
	if res["deleted"] != 1 {
		t.Errorf("deleted = %d, want 1", res["deleted"])
	}

	// the file is still on disk, so the next scan brings it back
	if again := env.scan(t); len(again) != 1 {
		t.Errorf("rescan found %d clips, want 1", len(again))
	}
}

func TestWatchDirsIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	var notified []string
	env := setupIntegrationTest(t, OnWatchDirsChanged(func(dirs []string) { notified = dirs }))
	other := t.TempDir()

	body, _ := json.Marshal(WatchDirsRequest{Dirs: []string{env.watchDir, other, env.watchDir}})
	w := do(env.h.SetWatchDirs, http.MethodPut, "/", string(body), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("set status = %d: %s", w.Code, w.Body.String())
	}

	var resp WatchDirsResponse
	decodeBody(t, w, &resp)
	if len(resp.Configured) != 2 {
		t.Errorf("configured = %v, want duplicates removed", resp.Configured)
	}
	if len(notified) != 2 {
		t.Errorf("callback got %v, want 2 dirs", notified)
	}

	w = do(env.h.GetWatchDirs, http.MethodGet, "/", "", nil)
	decodeBody(t, w, &resp)
	if len(resp.Resolved) != 2 || len(resp.Existing) != 2 {
		t.Errorf("get = %+v", resp)
	}
}

func TestHealthIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := setupIntegrationTest(t)

	w := do(env.h.ReadinessCheck, http.MethodGet, "/readyz", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before scan = %d, want 503", w.Code)
	}
	w = do(env.h.HealthCheck, http.MethodGet, "/healthz", "", nil)
	var health HealthResponse
	decodeBody(t, w, &health)
	if health.Status != statusStarting || w.Code != http.StatusServiceUnavailable {
		t.Errorf("healthz before scan = %d %s", w.Code, health.Status)
	}

	env.scan(t)

	w = do(env.h.HealthCheck, http.MethodGet, "/healthz", "", nil)
	decodeBody(t, w, &health)
	if w.Code != http.StatusOK || health.Status != statusHealthy || !health.Ready {
		t.Errorf("healthz after scan = %d %+v", w.Code, health)
	}
	w = do(env.h.LivenessCheck, http.MethodHead, "/livez", "", nil)
	if w.Code != http.StatusOK || w.Body.Len() != 0 {
		t.Errorf("HEAD livez = %d with %d body bytes", w.Code, w.Body.Len())
	}
}

func TestUnavailableCollaborators(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := setupIntegrationTest(t)

	w := do(env.h.TriggerBackfill, http.MethodPost, "/api/backfill", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("backfill without backfiller = %d, want 503", w.Code)
	}
	w = do(env.h.GetWaveform, http.MethodGet, "/", "", map[string]string{"id": "x"})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("waveform without tools = %d, want 503", w.Code)
	}
	w = do(env.h.GetMediaTools, http.MethodGet, "/", "", nil)
	var tools MediaToolsResponse
	decodeBody(t, w, &tools)
	if tools.Available {
		t.Error("tools reported available without configuration")
	}
}

type fixedWaveformer struct{ calls int }

func (f *fixedWaveformer) Waveform(_ context.Context, _ string, bars int) ([]float32, error) {
	f.calls++
	return make([]float32, bars), nil
}

func TestWaveformBarsIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	gen := &fixedWaveformer{}
	env := setupIntegrationTest(t, WithWaveformer(gen))
	env.addFile(t, "2026-01-28 18-40-28.mp4")
	clip := env.scan(t)[0]
	vars := map[string]string{"id": clip.ID}

	tests := []struct {
		target string
		want   int
	}{
		{"/api/clips/x/waveform", 200},
		{"/api/clips/x/waveform", 200},
		{"/api/clips/x/waveform?bars=64", 64},
		{"/api/clips/x/waveform?bars=-3", 200},
		{"/api/clips/x/waveform?bars=100000", 2000},
	}
	for _, tt := range tests {
		w := do(env.h.GetWaveform, http.MethodGet, tt.target, "", vars)
		var body struct {
			Peaks []float32 `json:"peaks"`
		}
		decodeBody(t, w, &body)
		if len(body.Peaks) != tt.want {
			t.Errorf("GET %s returned %d peaks, want %d", tt.target, len(body.Peaks), tt.want)
		}
	}

	// The default resolution is computed once; the others every time.
	if gen.calls != 3 {
		t.Errorf("waveform generated %d times, want 3", gen.calls)
	}
	wf, err := env.db.GetWaveform(context.Background(), clip.ID)
	if err != nil || wf == nil || wf.SampleCount != 200 {
		t.Errorf("cached waveform = %+v, %v; want 200 samples", wf, err)
	}
}

func TestStreamEventsIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := setupIntegrationTest(t)
	srv := httptest.NewServer(http.HandlerFunc(env.h.StreamEvents))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	// the handler subscribes before writing the preamble
	buf := make([]byte, 256)
	if _, err := resp.Body.Read(buf); err != nil {
		t.Fatalf("read preamble: %v", err)
	}

	env.bus.Publish(events.CatalogChanged(3))

	var got strings.Builder
	for !strings.Contains(got.String(), "\n\n") {
		n, err := resp.Body.Read(buf)
		if err != nil {
			t.Fatalf("read event: %v (so far %q)", err, got.String())
		}
		got.Write(buf[:n])
	}
	if !strings.HasPrefix(got.String(), "event: catalog.changed\ndata: ") {
		t.Errorf("frame = %q", got.String())
	}
	if !strings.Contains(got.String(), `"count":3`) {
		t.Errorf("frame missing count: %q", got.String())
	}
}
