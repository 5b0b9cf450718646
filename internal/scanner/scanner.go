package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"clip-catalog/internal/database"
	"clip-catalog/internal/events"
	"clip-catalog/internal/filesystem"
	"clip-catalog/internal/logging"
	"clip-catalog/internal/metrics"
)

// progressEvery controls how often walking progress is published.
const progressEvery = 10

// Progress phases published on the event bus.
const (
	PhaseWalking     = "walking"
	PhaseReconciling = "reconciling"
	PhaseComplete    = "complete"
)

// Store is the subset of the catalog the scanner reads and writes.
type Store interface {
	ExistsByPath(ctx context.Context, path string) (bool, error)
	InsertIfAbsent(ctx context.Context, clip *database.Clip) (bool, error)
	GetAllClips(ctx context.Context) ([]database.Clip, error)
	DeleteClips(ctx context.Context, ids []string) (int64, error)
}

// Resolver supplies the directories to scan.
type Resolver interface {
	Resolve(ctx context.Context) []string
}

// SkipReason classifies a file or directory the scan passed over.
type SkipReason string

const (
	ReasonMissingDir    SkipReason = "missing_dir"
	ReasonUnreadableDir SkipReason = "unreadable_dir"
	ReasonBadTimestamp  SkipReason = "bad_timestamp"
	ReasonExistsCheck   SkipReason = "exists_check"
	ReasonInsert        SkipReason = "insert"
)

// SkippedItem records a non-fatal per-item failure.
type SkippedItem struct {
	Path   string
	Reason SkipReason
	Err    error
}

func (s SkippedItem) String() string {
	if s.Err == nil {
		return fmt.Sprintf("%s (%s)", s.Path, s.Reason)
	}
	return fmt.Sprintf("%s (%s): %v", s.Path, s.Reason, s.Err)
}

// MarshalJSON renders Err as a string.
func (s SkippedItem) MarshalJSON() ([]byte, error) {
	out := struct {
		Path   string     `json:"path"`
		Reason SkipReason `json:"reason"`
		Error  string     `json:"error,omitempty"`
	}{Path: s.Path, Reason: s.Reason}
	if s.Err != nil {
		out.Error = s.Err.Error()
	}
	return json.Marshal(out)
}

// ScanResult is the outcome of one pass.
type ScanResult struct {
	Clips    []database.Clip `json:"clips"`
	Dirs     []string        `json:"dirs"`
	Inserted int             `json:"inserted"`
	Skipped  []SkippedItem   `json:"skipped"`
	Orphans  int             `json:"orphans"`
	// OrphanErr is set when reconciliation failed; the pass still succeeds.
	OrphanErr error         `json:"-"`
	Duration  time.Duration `json:"duration"`
}

// Status is a snapshot of scanner activity for health reporting.
type Status struct {
	Scanning     bool      `json:"scanning"`
	Runs         int64     `json:"runs"`
	LastScan     time.Time `json:"lastScan,omitempty"`
	LastDuration string    `json:"lastDuration,omitempty"`
	LastInserted int       `json:"lastInserted"`
	LastSkipped  int       `json:"lastSkipped"`
	LastOrphans  int       `json:"lastOrphans"`
	LastError    string    `json:"lastError,omitempty"`
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLocation sets the zone recorder filenames are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scanner) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithPublisher sets where progress and catalog.changed events go.
func WithPublisher(p events.Publisher) Option {
	return func(s *Scanner) {
		if p != nil {
			s.bus = p
		}
	}
}

// WithOnComplete registers a callback run after each successful pass.
func WithOnComplete(fn func(*ScanResult)) Option {
	return func(s *Scanner) {
		s.onComplete = fn
	}
}

// Scanner walks the watch directories and reconciles the catalog with them.
type Scanner struct {
	store      Store
	resolver   Resolver
	loc        *time.Location
	bus        events.Publisher
	onComplete func(*ScanResult)

	// scanMu serializes passes so the seen set stays per pass.
	scanMu sync.Mutex

	stateMu  sync.Mutex
	scanning bool
	status   Status
}

// New creates a Scanner.
func New(store Store, resolver Resolver, opts ...Option) *Scanner {
	s := &Scanner{
		store:    store,
		resolver: resolver,
		loc:      time.Local,
		bus:      events.Discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan runs one pass and returns the full catalog afterwards. Skipped items
// are logged, not returned.
func (s *Scanner) Scan(ctx context.Context) ([]database.Clip, error) {
	res, err := s.ScanDetailed(ctx)
	if err != nil {
		return nil, err
	}
	return res.Clips, nil
}

// ScanDetailed runs one pass and reports what it inserted, skipped and
// removed. Only a failure to read the final catalog, or cancellation, is
// returned as an error.
func (s *Scanner) ScanDetailed(ctx context.Context) (res *ScanResult, err error) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	s.setScanning(true)
	metrics.ScannerIsRunning.Set(1)
	defer metrics.ScannerIsRunning.Set(0)

	start := time.Now()
	res = &ScanResult{Skipped: []SkippedItem{}}
	defer func() {
		res.Duration = time.Since(start)
		s.finish(res, err)
	}()

	res.Dirs = s.resolver.Resolve(ctx)
	logging.Info("Starting scan of %d watch director%s", len(res.Dirs), plural(len(res.Dirs), "y", "ies"))

	candidates := s.walk(ctx, res)
	if err := s.process(ctx, candidates, res); err != nil {
		return res, err
	}

	s.reconcile(ctx, res)

	clips, err := s.store.GetAllClips(ctx)
	if err != nil {
		return res, fmt.Errorf("load catalog after scan: %w", err)
	}
	res.Clips = clips

	s.bus.Publish(events.ScanProgress(len(clips), len(clips), PhaseComplete))
	s.bus.Publish(events.CatalogChanged(len(clips)))

	logging.Info("Scan complete: %d clips, %d new, %d skipped, %d orphans removed in %v",
		len(clips), res.Inserted, len(res.Skipped), res.Orphans, time.Since(start).Round(time.Millisecond))
	return res, nil
}

// Status returns a snapshot of scanner state.
func (s *Scanner) Status() Status {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	st := s.status
	st.Scanning = s.scanning
	return st
}

// RunPeriodic rescans every interval until ctx is cancelled. It is a safety
// net for changes the watcher cannot see.
func (s *Scanner) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	logging.Info("Periodic rescan enabled (interval: %v)", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.ScanDetailed(ctx); err != nil && ctx.Err() == nil {
				logging.Error("Periodic rescan failed: %v", err)
			}
		case <-ctx.Done():
			logging.Info("Periodic rescan stopped")
			return
		}
	}
}

type candidate struct {
	path string
	name string
	dir  string
	info func() (fs.FileInfo, error)
}

// walk collects recorder files from each root and its immediate
// subdirectories. Paths reached through overlapping roots are returned once.
func (s *Scanner) walk(ctx context.Context, res *ScanResult) []candidate {
	seen := make(map[string]struct{})
	var out []candidate

	for _, root := range res.Dirs {
		abs, err := filepath.Abs(root)
		if err != nil {
			abs = filepath.Clean(root)
		}

		info, err := filesystem.Stat(ctx, abs, filesystem.DefaultRetryConfig())
		if err != nil || !info.IsDir() {
			logging.Debug("Watch directory %s not available, skipping", abs)
			s.skip(res, SkippedItem{Path: abs, Reason: ReasonMissingDir, Err: err})
			continue
		}

		walkErr := filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == abs {
					return err
				}
				logging.Debug("Cannot read %s: %v", path, err)
				s.skip(res, SkippedItem{Path: path, Reason: ReasonUnreadableDir, Err: err})
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			depth := depthBelow(abs, path)
			if d.IsDir() {
				if depth > 1 {
					return filepath.SkipDir
				}
				return nil
			}
			if depth < 1 || depth > 2 || !d.Type().IsRegular() {
				return nil
			}
			if !MatchesPattern(d.Name()) {
				return nil
			}
			if _, dup := seen[path]; dup {
				return nil
			}
			seen[path] = struct{}{}

			out = append(out, candidate{
				path: path,
				name: d.Name(),
				dir:  filepath.Dir(path),
				info: d.Info,
			})
			return nil
		})
		if walkErr != nil {
			s.skip(res, SkippedItem{Path: abs, Reason: ReasonUnreadableDir, Err: walkErr})
		}
	}
	return out
}

// process inserts candidates that are not catalogued yet.
func (s *Scanner) process(ctx context.Context, candidates []candidate, res *ScanResult) error {
	total := len(candidates)
	s.bus.Publish(events.ScanProgress(total, 0, PhaseWalking))

	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.processOne(ctx, c, res)
		if done := i + 1; done%progressEvery == 0 || done == total {
			s.bus.Publish(events.ScanProgress(total, done, PhaseWalking))
		}
	}
	return nil
}

func (s *Scanner) processOne(ctx context.Context, c candidate, res *ScanResult) {
	recordedAt, ok := ParseTimestampIn(c.name, s.loc)
	if !ok {
		s.skip(res, SkippedItem{Path: c.path, Reason: ReasonBadTimestamp})
		return
	}

	exists, err := s.store.ExistsByPath(ctx, c.path)
	if err != nil {
		logging.Warn("Existence check failed for %s: %v", c.path, err)
		s.skip(res, SkippedItem{Path: c.path, Reason: ReasonExistsCheck, Err: err})
		return
	}
	if exists {
		return
	}

	var size int64
	if info, err := c.info(); err == nil {
		size = info.Size()
	} else {
		logging.Debug("Could not stat %s, recording size 0: %v", c.path, err)
	}

	clip := &database.Clip{
		Filename:   c.name,
		Path:       c.path,
		DirSource:  strings.ToLower(filepath.Base(c.dir)),
		RecordedAt: recordedAt.UTC(),
		FileSize:   size,
	}
	inserted, err := s.store.InsertIfAbsent(ctx, clip)
	if err != nil {
		logging.Warn("Failed to insert %s: %v", c.path, err)
		s.skip(res, SkippedItem{Path: c.path, Reason: ReasonInsert, Err: err})
		return
	}
	if inserted {
		res.Inserted++
		metrics.ScannerClipsInserted.Inc()
		logging.Debug("Catalogued %s", c.path)
	}
}

// reconcile removes clips whose files are gone. Failures are logged and the
// pass continues.
func (s *Scanner) reconcile(ctx context.Context, res *ScanResult) {
	clips, err := s.store.GetAllClips(ctx)
	if err != nil {
		res.OrphanErr = fmt.Errorf("list clips for reconciliation: %w", err)
		logging.Error("Orphan reconciliation skipped: %v", err)
		return
	}

	total := len(clips)
	s.bus.Publish(events.ScanProgress(total, 0, PhaseReconciling))

	retry := filesystem.DefaultRetryConfig()
	var orphans []string
	for _, c := range clips {
		if _, err := filesystem.Stat(ctx, c.Path, retry); errors.Is(err, fs.ErrNotExist) {
			orphans = append(orphans, c.ID)
		}
	}
	s.bus.Publish(events.ScanProgress(total, total, PhaseReconciling))

	if len(orphans) == 0 {
		return
	}

	n, err := s.store.DeleteClips(ctx, orphans)
	if err != nil {
		res.OrphanErr = fmt.Errorf("delete %d orphans: %w", len(orphans), err)
		logging.Error("Error removing orphaned clips: %v", err)
		return
	}
	res.Orphans = int(n)
	metrics.ScannerOrphansRemoved.Add(float64(n))
	logging.Info("Removed %d orphaned clip%s", n, plural(int(n), "", "s"))
}

func (s *Scanner) skip(res *ScanResult, item SkippedItem) {
	res.Skipped = append(res.Skipped, item)
	metrics.ScannerItemsSkipped.WithLabelValues(string(item.Reason)).Inc()
}

func (s *Scanner) setScanning(v bool) {
	s.stateMu.Lock()
	s.scanning = v
	s.stateMu.Unlock()
}

func (s *Scanner) finish(res *ScanResult, err error) {
	status := "success"
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = "cancelled"
	case err != nil:
		status = "error"
	}
	metrics.ScannerRunsTotal.WithLabelValues(status).Inc()
	metrics.ScannerRunDuration.Observe(res.Duration.Seconds())
	metrics.ScannerLastRunTimestamp.Set(float64(time.Now().Unix()))

	s.stateMu.Lock()
	s.scanning = false
	s.status.Runs++
	s.status.LastScan = time.Now()
	s.status.LastDuration = res.Duration.Round(time.Millisecond).String()
	s.status.LastInserted = res.Inserted
	s.status.LastSkipped = len(res.Skipped)
	s.status.LastOrphans = res.Orphans
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
	s.stateMu.Unlock()

	if err == nil && s.onComplete != nil {
		s.onComplete(res)
	}
}

// depthBelow counts path separators between root and path; root itself is 0.
func depthBelow(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
