package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"clip-catalog/internal/events"
	"clip-catalog/internal/handlers"
	"clip-catalog/internal/logging"
	"clip-catalog/internal/media"
	"clip-catalog/internal/memory"
	"clip-catalog/internal/metrics"
	"clip-catalog/internal/middleware"
	"clip-catalog/internal/scanner"
	"clip-catalog/internal/startup"
	"clip-catalog/internal/watcher"
	"clip-catalog/internal/workers"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with the filesystem watcher",
		Long: `Serve the catalog over HTTP. On start it runs an initial scan, then keeps
the catalog in sync: a filesystem watcher rescans after changes settle for the
debounce window, and an optional periodic rescan catches anything the watcher
missed. Thumbnails and durations are filled in by a background backfill.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}
	cobra.CheckErr(startup.BindServeFlags(v, cmd.Flags()))
	return cmd
}

func runServe(parent context.Context, v *viper.Viper) error {
	startTime := time.Now()

	ctx, stop := signal.NotifyContext(orBackground(parent), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := openCatalog(ctx, v, true)
	if err != nil {
		return err
	}
	defer c.Close()
	cfg := c.cfg

	startup.LogMemoryConfig(memory.Configure(cfg.MemoryLimit, cfg.MemoryRatio))
	monitor := memory.NewMonitor(memory.DefaultConfig())

	metrics.InitializeMetrics()
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)

	bus := events.NewBus()
	defer bus.Close()

	var bg sync.WaitGroup
	spawn := func(fn func()) {
		bg.Add(1)
		go func() {
			defer bg.Done()
			fn()
		}()
	}

	tools, prober, thumbs, toolsOK := c.backfillParts(ctx, true)
	var backfill *media.Backfiller
	nWorkers := workers.Backfill(cfg.BackfillWorkers)
	if toolsOK {
		backfill = media.NewBackfiller(c.db, prober, thumbs,
			media.WithWorkers(nWorkers),
			media.WithEvents(bus),
			media.WithGate(monitor),
		)
	}
	startup.LogBackfillInit(nWorkers, backfill != nil)

	sc := scanner.New(c.db, c.dirs,
		scanner.WithLocation(cfg.Location),
		scanner.WithPublisher(bus),
		scanner.WithOnComplete(func(res *scanner.ScanResult) {
			if res.Inserted > 0 && backfill != nil && !backfill.IsRunning() {
				spawn(func() { runBackfill(ctx, backfill) })
			}
		}),
	)

	resolved := c.dirs.Resolve(ctx)
	startup.LogWatchInit(resolved, cfg.Debounce)
	w := watcher.New(sc, c.dirs, watcher.WithDebounce(cfg.Debounce))
	sup := newWatchSupervisor(w)

	opts := []handlers.Option{
		handlers.WithContext(ctx),
		handlers.WithWatcher(w),
		handlers.OnWatchDirsChanged(func([]string) { sup.Restart() }),
	}
	if backfill != nil {
		opts = append(opts, handlers.WithBackfiller(backfill))
	}
	if toolsOK {
		opts = append(opts, handlers.WithMediaTools(tools))
	}
	h := handlers.New(c.db, sc, c.dirs, bus, opts...)

	router := setupRouter(h, cfg.MetricsEnabled)
	startup.LogHTTPRoutes(router, cfg.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = cfg.LogHealthChecks
	handler := middleware.Compression(middleware.DefaultCompressionConfig())(
		middleware.Logger(loggingConfig)(router),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // event streams stay open
		IdleTimeout:       60 * time.Second,
	}

	spawn(func() { monitor.Run(ctx) })
	spawn(func() { sup.Run(ctx) })
	spawn(func() { sc.RunPeriodic(ctx, cfg.RescanInterval) })
	spawn(func() {
		// Clips left unfinished by an earlier run are picked up even when
		// the initial pass inserts nothing.
		if _, err := sc.ScanDetailed(ctx); err != nil {
			if ctx.Err() == nil {
				logging.Error("Initial scan failed: %v", err)
			}
			return
		}
		runBackfill(ctx, backfill)
	})

	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.NewCollector(c.db, cfg.DatabasePath, time.Minute)
		collector.Start()
	}

	serveErr := make(chan error, 1)
	go func() {
		startup.LogServerStarted(startup.ServerConfig{
			Port:            cfg.Port,
			MetricsEnabled:  cfg.MetricsEnabled,
			StartupDuration: time.Since(startTime),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			stop()
			bg.Wait()
			return err
		}
	case <-ctx.Done():
		startup.LogShutdownInitiated("interrupt")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Closing event streams")
	bus.Close()
	startup.LogShutdownStepComplete("Event streams closed")

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Stopping watcher and background work")
	bg.Wait()
	startup.LogShutdownStepComplete("Background work stopped")

	if collector != nil {
		collector.Stop()
		startup.LogShutdownStepComplete("Metrics collector stopped")
	}

	startup.LogShutdownComplete()
	return nil
}

func runBackfill(ctx context.Context, b *media.Backfiller) {
	if b == nil {
		return
	}
	res, err := b.Run(ctx)
	switch {
	case errors.Is(err, media.ErrBackfillRunning):
	case err != nil:
		if ctx.Err() == nil {
			logging.Error("Backfill failed: %v", err)
		}
	case res.Total > 0:
		logging.Info("Backfill finished: %d thumbnails, %d probed, %d failed in %v",
			res.Thumbnails, res.Probed, res.Failed, res.Duration.Round(time.Millisecond))
	}
}

func setupRouter(h *handlers.Handlers, metricsEnabled bool) *mux.Router {
	r := mux.NewRouter()

	// Health and version
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET", "HEAD")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")
	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	// Clips
	api.HandleFunc("/clips", h.ListClips).Methods("GET")
	api.HandleFunc("/clips", h.DeleteClips).Methods("DELETE")
	api.HandleFunc("/clips/bulk/tag", h.BulkTag).Methods("POST")
	api.HandleFunc("/clips/bulk/untag", h.BulkUntag).Methods("POST")
	api.HandleFunc("/clips/bulk/star", h.BulkStar).Methods("POST")
	api.HandleFunc("/clips/{id}", h.GetClip).Methods("GET")
	api.HandleFunc("/clips/{id}/description", h.UpdateDescription).Methods("PUT")
	api.HandleFunc("/clips/{id}/star", h.SetStarred).Methods("PUT")
	api.HandleFunc("/clips/{id}/tags", h.GetClipTags).Methods("GET")
	api.HandleFunc("/clips/{id}/tags", h.AddClipTag).Methods("POST")
	api.HandleFunc("/clips/{id}/tags/{tagId}", h.RemoveClipTag).Methods("DELETE")
	api.HandleFunc("/clips/{id}/thumbnail", h.GetThumbnail).Methods("GET")
	api.HandleFunc("/clips/{id}/waveform", h.GetWaveform).Methods("GET")

	// Tags
	api.HandleFunc("/tags", h.GetAllTags).Methods("GET")
	api.HandleFunc("/tags", h.CreateTag).Methods("POST")
	api.HandleFunc("/tags/{id}", h.DeleteTag).Methods("DELETE")

	// Collections
	api.HandleFunc("/collections", h.GetAllCollections).Methods("GET")
	api.HandleFunc("/collections", h.CreateCollection).Methods("POST")
	api.HandleFunc("/collections/{id}", h.UpdateCollection).Methods("PUT")
	api.HandleFunc("/collections/{id}", h.DeleteCollection).Methods("DELETE")
	api.HandleFunc("/collections/{id}/clips", h.GetCollectionClips).Methods("GET")
	api.HandleFunc("/collections/{id}/clips", h.AddCollectionClips).Methods("POST")
	api.HandleFunc("/collections/{id}/clips", h.RemoveCollectionClips).Methods("DELETE")

	// Smart folders
	api.HandleFunc("/smart-folders", h.GetAllSmartFolders).Methods("GET")
	api.HandleFunc("/smart-folders", h.CreateSmartFolder).Methods("POST")
	api.HandleFunc("/smart-folders/{id}", h.UpdateSmartFolder).Methods("PUT")
	api.HandleFunc("/smart-folders/{id}", h.DeleteSmartFolder).Methods("DELETE")

	// Sync
	api.HandleFunc("/scan", h.ScanNow).Methods("POST")
	api.HandleFunc("/scan/status", h.ScanStatus).Methods("GET")
	api.HandleFunc("/settings/watch-dirs", h.GetWatchDirs).Methods("GET")
	api.HandleFunc("/settings/watch-dirs", h.SetWatchDirs).Methods("PUT")
	api.HandleFunc("/backfill", h.TriggerBackfill).Methods("POST")

	// Search, stats and system
	api.HandleFunc("/search", h.Search).Methods("GET")
	api.HandleFunc("/stats", h.GetStats).Methods("GET")
	api.HandleFunc("/system/ffmpeg", h.GetMediaTools).Methods("GET")

	// Live updates
	api.HandleFunc("/events", h.StreamEvents).Methods("GET")
	api.HandleFunc("/ws", h.StreamWebSocket).Methods("GET")

	return r
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
