package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"clip-catalog/internal/database"
	"clip-catalog/internal/events"
)

type staticDirs []string

func (d staticDirs) Resolve(context.Context) []string { return d }

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds(kind events.Kind) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func setupTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "clips.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func TestScanEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	t.Parallel()

	base := t.TempDir()
	first := filepath.Join(base, "Desk")
	second := filepath.Join(base, "recorder")
	writeFile(t, filepath.Join(first, "2026-01-28 18-40-28.mp4"), 1024)
	writeFile(t, filepath.Join(second, "Clips", "2026-01-29_09-00-00.mp4"), 10)

	db := setupTestDB(t)
	bus := &recorder{}
	s := New(db, staticDirs{first, second}, WithLocation(time.UTC), WithPublisher(bus))

	clips, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, clips, 2)

	require.Equal(t, "2026-01-29_09-00-00.mp4", clips[0].Filename)
	require.Equal(t, "clips", clips[0].DirSource)
	require.Equal(t, time.Date(2026, 1, 29, 9, 0, 0, 0, time.UTC), clips[0].RecordedAt)

	require.Equal(t, "2026-01-28 18-40-28.mp4", clips[1].Filename)
	require.Equal(t, "desk", clips[1].DirSource)
	require.EqualValues(t, 1024, clips[1].FileSize)
	require.NotEmpty(t, clips[1].ID)

	changed := bus.kinds(events.KindCatalogChanged)
	require.Len(t, changed, 1)
	require.Equal(t, 2, changed[0].Count)

	progress := bus.kinds(events.KindScanProgress)
	require.NotEmpty(t, progress)
	last := progress[len(progress)-1].Progress
	require.Equal(t, PhaseComplete, last.Phase)
	require.Equal(t, 2, last.Done)
}

func TestScanIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "2026-01-01_10-00-00.mp4"), 1)
	writeFile(t, filepath.Join(dir, "cam", "2026-01-02_10-00-00.mp4"), 1)

	db := setupTestDB(t)
	s := New(db, staticDirs{dir})

	first, err := s.ScanDetailed(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, first.Inserted)

	second, err := s.ScanDetailed(context.Background())
	require.NoError(t, err)
	require.Zero(t, second.Inserted)
	require.Equal(t, first.Clips, second.Clips)

	n, err := db.CountClips(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestScanOverlappingDirectoriesInsertOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	t.Parallel()

	root := t.TempDir()
	sub := filepath.Join(root, "cam")
	writeFile(t, filepath.Join(sub, "2026-01-01_10-00-00.mp4"), 1)

	db := setupTestDB(t)
	s := New(db, staticDirs{root, sub, root})

	res, err := s.ScanDetailed(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Clips, 1)
	require.Equal(t, 1, res.Inserted)
}

func TestScanDepthAndFilter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "2026-01-01_10-00-00.mp4"), 1)
	writeFile(t, filepath.Join(root, ".hidden", "2026-01-02_10-00-00.mp4"), 1)
	writeFile(t, filepath.Join(root, "a", "b", "2026-01-03_10-00-00.mp4"), 1)
	writeFile(t, filepath.Join(root, "notes.txt"), 1)
	writeFile(t, filepath.Join(root, "holiday.mp4"), 1)
	writeFile(t, filepath.Join(root, "2026-13-01_10-00-00.mp4"), 1)

	db := setupTestDB(t)
	s := New(db, staticDirs{root})

	res, err := s.ScanDetailed(context.Background())
	require.NoError(t, err)

	var names []string
	for _, c := range res.Clips {
		names = append(names, c.Filename)
	}
	require.ElementsMatch(t, []string{"2026-01-01_10-00-00.mp4", "2026-01-02_10-00-00.mp4"}, names)

	require.Len(t, res.Skipped, 1)
	require.Equal(t, ReasonBadTimestamp, res.Skipped[0].Reason)
	require.Equal(t, filepath.Join(root, "2026-13-01_10-00-00.mp4"), res.Skipped[0].Path)
}

func TestScanSkipsMissingDirectories(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "2026-01-01_10-00-00.mp4"), 1)
	missing := filepath.Join(root, "does-not-exist")

	db := setupTestDB(t)
	s := New(db, staticDirs{missing, root})

	res, err := s.ScanDetailed(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Clips, 1)
	require.Len(t, res.Skipped, 1)
	require.Equal(t, ReasonMissingDir, res.Skipped[0].Reason)
}

func TestScanWithNoDirectories(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	t.Parallel()

	db := setupTestDB(t)
	clips, err := New(db, staticDirs(nil)).Scan(context.Background())
	require.NoError(t, err)
	require.NotNil(t, clips)
	require.Empty(t, clips)
}

func TestScanRemovesOrphansWithAssociations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	keep := filepath.Join(root, "2026-01-01_10-00-00.mp4")
	gone := filepath.Join(root, "2026-01-02_10-00-00.mp4")
	writeFile(t, keep, 1)
	writeFile(t, gone, 1)

	db := setupTestDB(t)
	s := New(db, staticDirs{root})

	clips, err := s.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, clips, 2)

	var goneID string
	for _, c := range clips {
		if c.Path == gone {
			goneID = c.ID
		}
	}
	require.NotEmpty(t, goneID)

	tag, err := db.CreateTag(ctx, "highlight", "")
	require.NoError(t, err)
	require.NoError(t, db.AddClipTag(ctx, goneID, tag.ID))
	col, err := db.CreateCollection(ctx, "Best of", "", "")
	require.NoError(t, err)
	require.NoError(t, db.AddClipsToCollection(ctx, col.ID, []string{goneID}))
	require.NoError(t, db.UpsertEmbedding(ctx, goneID, []byte{1, 2, 3, 4}, database.DefaultEmbeddingModel))
	require.NoError(t, db.SaveWaveform(ctx, goneID, []byte{9}, 1))

	require.NoError(t, os.Remove(gone))

	res, err := s.ScanDetailed(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Orphans)
	require.NoError(t, res.OrphanErr)
	require.Len(t, res.Clips, 1)
	require.Equal(t, keep, res.Clips[0].Path)

	tags, err := db.GetAllTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	require.Zero(t, tags[0].ClipCount)

	cols, err := db.GetAllCollections(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 1)
	require.Zero(t, cols[0].ClipCount)

	embeddings, err := db.GetAllEmbeddings(ctx)
	require.NoError(t, err)
	require.Empty(t, embeddings)

	wf, err := db.GetWaveform(ctx, goneID)
	require.NoError(t, err)
	require.Nil(t, wf)
}

func TestScanHonoursCancellation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "2026-01-01_10-00-00.mp4"), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(setupTestDB(t), staticDirs{root})
	_, err := s.Scan(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Contains(t, s.Status().LastError, "context canceled")
}

// flakyStore wraps a real database and injects failures.
type flakyStore struct {
	*database.Database
	failInsert  string
	failExists  string
	failDelete  bool
	failListAll int
	listCalls   int
}

func (f *flakyStore) ExistsByPath(ctx context.Context, path string) (bool, error) {
	if path == f.failExists {
		return false, errors.New("disk I/O error")
	}
	return f.Database.ExistsByPath(ctx, path)
}

func (f *flakyStore) InsertIfAbsent(ctx context.Context, c *database.Clip) (bool, error) {
	if c.Path == f.failInsert {
		return false, errors.New("constraint failed")
	}
	return f.Database.InsertIfAbsent(ctx, c)
}

func (f *flakyStore) GetAllClips(ctx context.Context) ([]database.Clip, error) {
	f.listCalls++
	if f.listCalls == f.failListAll {
		return nil, errors.New("database is locked")
	}
	return f.Database.GetAllClips(ctx)
}

func (f *flakyStore) DeleteClips(ctx context.Context, ids []string) (int64, error) {
	if f.failDelete {
		return 0, errors.New("read-only database")
	}
	return f.Database.DeleteClips(ctx, ids)
}

func TestScanPerItemFailuresAreSkipped(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	t.Parallel()

	root := t.TempDir()
	ok := filepath.Join(root, "2026-01-01_10-00-00.mp4")
	badInsert := filepath.Join(root, "2026-01-02_10-00-00.mp4")
	badExists := filepath.Join(root, "2026-01-03_10-00-00.mp4")
	for _, p := range []string{ok, badInsert, badExists} {
		writeFile(t, p, 1)
	}

	store := &flakyStore{Database: setupTestDB(t), failInsert: badInsert, failExists: badExists}
	res, err := New(store, staticDirs{root}).ScanDetailed(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Inserted)
	require.Len(t, res.Clips, 1)

	reasons := map[string]SkipReason{}
	for _, item := range res.Skipped {
		require.Error(t, item.Err)
		reasons[item.Path] = item.Reason
	}
	require.Equal(t, map[string]SkipReason{badInsert: ReasonInsert, badExists: ReasonExistsCheck}, reasons)
}

func TestScanOrphanFailureIsBestEffort(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	path := filepath.Join(root, "2026-01-01_10-00-00.mp4")
	writeFile(t, path, 1)

	store := &flakyStore{Database: setupTestDB(t)}
	s := New(store, staticDirs{root})
	_, err := s.Scan(ctx)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	store.failDelete = true

	res, err := s.ScanDetailed(ctx)
	require.NoError(t, err)
	require.Error(t, res.OrphanErr)
	require.Zero(t, res.Orphans)
	require.Len(t, res.Clips, 1)
}

func TestScanFailsWhenFinalListFails(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	t.Parallel()

	// First GetAllClips is reconciliation, second is the final listing.
	store := &flakyStore{Database: setupTestDB(t), failListAll: 2}
	s := New(store, staticDirs{t.TempDir()})

	_, err := s.Scan(context.Background())
	require.Error(t, err)
	require.Equal(t, int64(1), s.Status().Runs)
	require.NotEmpty(t, s.Status().LastError)
}

func TestConcurrentScansDoNotDuplicate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	t.Parallel()

	root := t.TempDir()
	for _, name := range []string{"2026-01-01_10-00-00.mp4", "2026-01-02_10-00-00.mp4", "2026-01-03_10-00-00.mp4"} {
		writeFile(t, filepath.Join(root, name), 1)
	}

	db := setupTestDB(t)
	scanners := []*Scanner{New(db, staticDirs{root}), New(db, staticDirs{root})}

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(s *Scanner) {
			defer wg.Done()
			_, err := s.Scan(context.Background())
			errs <- err
		}(scanners[i%2])
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	n, err := db.CountClips(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestOnCompleteCallback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "2026-01-01_10-00-00.mp4"), 1)

	var got *ScanResult
	s := New(setupTestDB(t), staticDirs{root}, WithOnComplete(func(r *ScanResult) { got = r }))
	_, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, 1, got.Inserted)

	st := s.Status()
	require.False(t, st.Scanning)
	require.Equal(t, 1, st.LastInserted)
	require.Empty(t, st.LastError)
}

func TestSkippedItemJSON(t *testing.T) {
	t.Parallel()

	item := SkippedItem{Path: "/v/a.mp4", Reason: ReasonInsert, Err: errors.New("boom")}
	b, err := item.MarshalJSON()
	require.NoError(t, err)
	require.JSONEq(t, `{"path":"/v/a.mp4","reason":"insert","error":"boom"}`, string(b))
	require.Equal(t, "/v/a.mp4 (insert): boom", item.String())
}
