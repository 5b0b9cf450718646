package startup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"clip-catalog/internal/logging"
	"clip-catalog/internal/media"
	"clip-catalog/internal/memory"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// EnvPrefix is prepended to every configuration key when read from the
// environment, so "database-dir" becomes CLIPS_DATABASE_DIR.
const EnvPrefix = "CLIPS"

// Configuration keys.
const (
	KeyConfigFile      = "config"
	KeyDatabaseDir     = "database-dir"
	KeyCacheDir        = "cache-dir"
	KeyPort            = "port"
	KeyMetricsEnabled  = "metrics-enabled"
	KeyDebounce        = "debounce"
	KeyRescanInterval  = "rescan-interval"
	KeyLogLevel        = "log-level"
	KeyLogFile         = "log-file"
	KeyLogHealthChecks = "log-health-checks"
	KeyFFmpegPath      = "ffmpeg-path"
	KeyFFprobePath     = "ffprobe-path"
	KeyBackfillWorkers = "backfill-workers"
	KeyTimezone        = "timezone"
	KeyMemoryLimit     = "memory-limit"
	KeyMemoryRatio     = "memory-ratio"
)

const (
	defaultPort     = "8080"
	defaultDebounce = 2 * time.Second
	appDirName      = "clip-catalog"
	databaseFile    = "clips.db"
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	DatabaseDir     string
	CacheDir        string
	Port            string
	MetricsEnabled  bool
	Debounce        time.Duration
	RescanInterval  time.Duration
	LogFile         string
	LogHealthChecks bool
	FFmpegPath      string
	FFprobePath     string
	BackfillWorkers int
	Location        *time.Location
	MemoryLimit     int64
	MemoryRatio     float64

	// Derived paths
	DatabasePath string
	ThumbnailDir string

	// Disabled when the cache directory is not writable
	ThumbnailsEnabled bool
}

// NewViper returns a viper instance with defaults applied and CLIPS_*
// environment variables bound.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDatabaseDir, defaultDataDir())
	v.SetDefault(KeyCacheDir, defaultCacheDir())
	v.SetDefault(KeyPort, defaultPort)
	v.SetDefault(KeyMetricsEnabled, true)
	v.SetDefault(KeyDebounce, defaultDebounce.String())
	v.SetDefault(KeyRescanInterval, "0")
	v.SetDefault(KeyLogHealthChecks, false)
	v.SetDefault(KeyFFmpegPath, "ffmpeg")
	v.SetDefault(KeyFFprobePath, "ffprobe")
	v.SetDefault(KeyBackfillWorkers, 0)
	v.SetDefault(KeyMemoryRatio, 0.85)
}

// BindFlags registers the persistent command-line flags and binds them into
// v. Flags win over environment variables, which win over the config file.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	flags.String(KeyConfigFile, "", "config file (yaml, toml or json)")
	flags.String(KeyDatabaseDir, v.GetString(KeyDatabaseDir), "directory holding "+databaseFile)
	flags.String(KeyCacheDir, v.GetString(KeyCacheDir), "directory for thumbnails")
	flags.String(KeyLogLevel, "", "log level: debug, info, warn, error")
	flags.String(KeyLogFile, "", "also write logs to this rotating file")
	flags.String(KeyFFmpegPath, v.GetString(KeyFFmpegPath), "ffmpeg binary")
	flags.String(KeyFFprobePath, v.GetString(KeyFFprobePath), "ffprobe binary")
	flags.Int(KeyBackfillWorkers, 0, "thumbnail/probe workers (0 = auto)")
	flags.String(KeyTimezone, "", "IANA zone clip filenames are recorded in (default local)")

	var errs []error
	flags.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil {
			errs = append(errs, err)
		}
	})
	if len(errs) > 0 {
		return fmt.Errorf("bind flags: %w", errs[0])
	}
	return nil
}

// BindServeFlags registers the flags that only matter to the long-running
// server.
func BindServeFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	flags.String(KeyPort, v.GetString(KeyPort), "HTTP listen port")
	flags.Bool(KeyMetricsEnabled, v.GetBool(KeyMetricsEnabled), "serve Prometheus metrics on /metrics")
	flags.String(KeyDebounce, v.GetString(KeyDebounce), "quiet period before a watcher rescan")
	flags.String(KeyRescanInterval, v.GetString(KeyRescanInterval), "periodic full rescan interval (0 disables)")

	for _, key := range []string{KeyPort, KeyMetricsEnabled, KeyDebounce, KeyRescanInterval} {
		if err := v.BindPFlag(key, flags.Lookup(key)); err != nil {
			return fmt.Errorf("bind flag %s: %w", key, err)
		}
	}
	return nil
}

// ReadConfigFile loads the file named by the config key, if any.
func ReadConfigFile(v *viper.Viper) error {
	path := v.GetString(KeyConfigFile)
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	logging.Debug("Using config file: %s", v.ConfigFileUsed())
	return nil
}

// LoadConfig prints the startup banner and resolves the configuration,
// logging each section. Use Load for one-shot commands.
func LoadConfig(v *viper.Viper) (*Config, error) {
	applyLogging(v)
	printBanner()
	logSystemInfo()
	return load(v, logging.Info)
}

// Load resolves the configuration without the banner; section output is
// logged at debug level.
func Load(v *viper.Viper) (*Config, error) {
	applyLogging(v)
	return load(v, logging.Debug)
}

func applyLogging(v *viper.Viper) {
	if s := v.GetString(KeyLogLevel); s != "" {
		if level, ok := logging.ParseLevel(s); ok {
			logging.SetLevel(level)
		} else {
			logging.Warn("Invalid log level %q, keeping %s", s, logging.GetLevel())
		}
	}
	if path := v.GetString(KeyLogFile); path != "" {
		if err := logging.EnableFileOutput(path, 0); err != nil {
			logging.Warn("Log file disabled: %v", err)
		}
	}
}

func load(v *viper.Viper, say func(string, ...interface{})) (*Config, error) {
	say("------------------------------------------------------------")
	say("CONFIGURATION")
	say("------------------------------------------------------------")

	cfg := &Config{
		DatabaseDir:     v.GetString(KeyDatabaseDir),
		CacheDir:        v.GetString(KeyCacheDir),
		Port:            v.GetString(KeyPort),
		MetricsEnabled:  v.GetBool(KeyMetricsEnabled),
		LogFile:         v.GetString(KeyLogFile),
		LogHealthChecks: v.GetBool(KeyLogHealthChecks),
		FFmpegPath:      v.GetString(KeyFFmpegPath),
		FFprobePath:     v.GetString(KeyFFprobePath),
		BackfillWorkers: v.GetInt(KeyBackfillWorkers),
		MemoryLimit:     v.GetInt64(KeyMemoryLimit),
		MemoryRatio:     v.GetFloat64(KeyMemoryRatio),
	}
	cfg.Debounce = durationOr(v, KeyDebounce, defaultDebounce)
	cfg.RescanInterval = durationOr(v, KeyRescanInterval, 0)
	cfg.Location = locationOr(v.GetString(KeyTimezone))

	say("  DATABASE_DIR:        %s", cfg.DatabaseDir)
	say("  CACHE_DIR:           %s", cfg.CacheDir)
	say("  PORT:                %s", cfg.Port)
	say("  METRICS_ENABLED:     %v", cfg.MetricsEnabled)
	say("  DEBOUNCE:            %v", cfg.Debounce)
	say("  RESCAN_INTERVAL:     %s", intervalString(cfg.RescanInterval))
	say("  FFMPEG_PATH:         %s", cfg.FFmpegPath)
	say("  FFPROBE_PATH:        %s", cfg.FFprobePath)
	say("  BACKFILL_WORKERS:    %s", workersString(cfg.BackfillWorkers))
	say("  TIMEZONE:            %s", cfg.Location)
	say("  LOG_LEVEL:           %s", logging.GetLevel())
	if cfg.LogFile != "" {
		say("  LOG_FILE:            %s", cfg.LogFile)
	}

	if cfg.Port == "" {
		return nil, fmt.Errorf("port must not be empty")
	}
	if cfg.BackfillWorkers < 0 {
		logging.Warn("  Negative BACKFILL_WORKERS, using auto")
		cfg.BackfillWorkers = 0
	}

	say("")
	say("------------------------------------------------------------")
	say("DIRECTORY SETUP")
	say("------------------------------------------------------------")

	var err error
	cfg.DatabaseDir, err = filepath.Abs(cfg.DatabaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	say("  Database directory (absolute): %s", cfg.DatabaseDir)

	cfg.CacheDir, err = filepath.Abs(cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory path: %w", err)
	}
	say("  Cache directory (absolute): %s", cfg.CacheDir)

	cfg.DatabasePath = filepath.Join(cfg.DatabaseDir, databaseFile)
	cfg.ThumbnailDir = filepath.Join(cfg.CacheDir, "thumbnails")

	if err := ensureDirectory(cfg.DatabaseDir, "database"); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}

	logging.Debug("  Testing database directory write access...")
	if err := testWriteAccess(cfg.DatabaseDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable (required for database): %w", err)
	}
	say("  [OK] Database directory is writable")

	cfg.ThumbnailsEnabled = setupOptionalDir(cfg.ThumbnailDir, "thumbnails")

	say("")
	say("  Feature availability:")
	say("    Catalog:     ENABLED (required)")
	say("    Thumbnails:  %s", enabledString(cfg.ThumbnailsEnabled))
	say("    Rescan:      %s", enabledString(cfg.RescanInterval > 0))
	say("    Metrics:     %s", enabledString(cfg.MetricsEnabled))

	return cfg, nil
}

func durationOr(v *viper.Viper, key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" || raw == "0" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		logging.Warn("  Invalid %s %q, using default: %v", envName(key), raw, def)
		return def
	}
	return d
}

func locationOr(name string) *time.Location {
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logging.Warn("  Invalid TIMEZONE %q, using local time: %v", name, err)
		return time.Local
	}
	return loc
}

func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

func intervalString(d time.Duration) string {
	if d <= 0 {
		return "disabled"
	}
	return d.String()
}

func workersString(n int) string {
	if n <= 0 {
		return "auto"
	}
	return fmt.Sprintf("%d", n)
}

func setupOptionalDir(path, name string) bool {
	logging.Debug("  Setting up %s directory: %s", name, path)

	if err := os.MkdirAll(path, 0o755); err != nil {
		logging.Warn("    Failed to create %s directory: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	if err := testWriteAccess(path); err != nil {
		logging.Warn("    %s directory is not writable: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	logging.Debug("    [OK] %s directory ready", name)
	return true
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration, clips int64) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database initialized in %v", duration)
	logging.Info("  Catalogued clips: %d", clips)
}

// LogFFmpegInit checks the media tools and reports whether thumbnails and
// probing can run.
func LogFFmpegInit(ctx context.Context, tools media.Tools, thumbnailsEnabled bool) bool {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("MEDIA TOOLS")
	logging.Info("------------------------------------------------------------")
	logging.Debug("  ffmpeg:  %s", tools.FFmpeg)
	logging.Debug("  ffprobe: %s", tools.FFprobe)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if !tools.Available(ctx) {
		logging.Warn("  FFmpeg check failed")
		logging.Warn("  Thumbnails, durations and waveforms will be unavailable")
		return false
	}
	logging.Info("  [OK] FFmpeg is available")

	if !thumbnailsEnabled {
		logging.Info("  Thumbnails disabled (cache directory not writable)")
	}
	return true
}

// LogWatchInit logs the resolved watch directories.
func LogWatchInit(dirs []string, debounce time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("WATCHER INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	if len(dirs) == 0 {
		logging.Warn("  No watch directories resolved, catalog will stay empty")
	}
	for _, dir := range dirs {
		logging.Info("  Watching: %s", dir)
	}
	logging.Info("  Debounce: %v", debounce)
}

// LogBackfillInit logs the backfill pool size.
func LogBackfillInit(workers int, enabled bool) {
	if !enabled {
		logging.Info("  Backfill disabled")
		return
	}
	logging.Info("  Backfill workers: %d", workers)
}

// LogMemoryConfig logs how GOMEMLIMIT was resolved.
func LogMemoryConfig(result memory.ConfigResult) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("MEMORY")
	logging.Info("------------------------------------------------------------")
	switch result.Source {
	case "GOMEMLIMIT":
		logging.Info("  GOMEMLIMIT:      %s (from environment)", humanize.IBytes(uint64(result.GoMemLimit)))
	case "MEMORY_LIMIT":
		logging.Info("  Container limit: %s", humanize.IBytes(uint64(result.ContainerLimit)))
		logging.Info("  GOMEMLIMIT:      %s (%.0f%%)", humanize.IBytes(uint64(result.GoMemLimit)), result.Ratio*100)
	default:
		logging.Info("  No memory limit configured")
	}
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes, grouped by prefix, at debug
// level.
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
			logging.Debug("")
		}
	}

	logging.Info("  HTTP logging enabled")
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set CLIPS_LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    API:           http://0.0.0.0:%s/api", config.Port)
	logging.Info("    Events:        http://0.0.0.0:%s/api/events", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.Port)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	banner := `
------------------------------------------------------------
   _____ _ _          _____      _        _
  / ____| (_)        / ____|    | |      | |
 | |    | |_ _ __   | |     __ _| |_ __ _| | ___   __ _
 | |    | | | '_ \  | |    / _' | __/ _' | |/ _ \ / _' |
 | |____| | | |_) | | |___| (_| | || (_| | | (_) | (_| |
  \_____|_|_| .__/   \_____\__,_|\__\__,_|_|\___/ \__, |
            | |                                    __/ |
            |_|                                   |___/
------------------------------------------------------------`
	fmt.Fprintln(os.Stderr, banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, appDirName)
	}
	return appDirName
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, appDirName)
	}
	return filepath.Join(appDirName, "cache")
}
