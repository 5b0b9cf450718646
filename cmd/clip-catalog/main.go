package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"clip-catalog/internal/database"
	"clip-catalog/internal/logging"
	"clip-catalog/internal/media"
	"clip-catalog/internal/startup"
	"clip-catalog/internal/watchdirs"
)

func newRootCmd() *cobra.Command {
	v := startup.NewViper()

	root := &cobra.Command{
		Use:   "clip-catalog",
		Short: "Catalog recorder clips and keep the catalog in sync with disk",
		Long: `clip-catalog indexes video clips whose filenames carry a recording
timestamp (for example "2026-01-28 18-40-28.mp4") from one or more watch
directories into a SQLite catalog. The catalog stores tags, stars,
collections, smart folders and descriptions on top of the files, and is kept
in sync by a filesystem watcher and on-demand rescans.`,
		Version:       startup.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return startup.ReadConfigFile(v)
		},
	}

	cobra.CheckErr(startup.BindFlags(v, root.PersistentFlags()))

	root.AddCommand(
		newServeCmd(v),
		newScanCmd(v),
		newDirsCmd(v),
		newBackfillCmd(v),
	)
	return root
}

func main() {
	err := newRootCmd().Execute()
	if closeErr := logging.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// catalog is what every command needs: resolved configuration, an open
// database and the watch directory resolver.
type catalog struct {
	cfg  *startup.Config
	db   *database.Database
	dirs *watchdirs.Resolver
}

// openCatalog loads configuration and opens the database. verbose selects
// the banner and section logging used by serve.
func openCatalog(ctx context.Context, v *viper.Viper, verbose bool) (*catalog, error) {
	load := startup.Load
	if verbose {
		load = startup.LoadConfig
	}
	cfg, err := load(v)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	dbStart := time.Now()
	db, err := database.New(ctx, cfg.DatabasePath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if verbose {
		n, err := db.CountClips(ctx)
		if err != nil {
			logging.Warn("Failed to count clips: %v", err)
		}
		startup.LogDatabaseInit(time.Since(dbStart), int64(n))
	}

	return &catalog{cfg: cfg, db: db, dirs: watchdirs.NewResolver(db)}, nil
}

func (c *catalog) Close() {
	if err := c.db.Close(); err != nil {
		logging.Error("Failed to close database: %v", err)
	}
}

// backfillParts builds the prober and thumbnailer the tools allow. Either
// may be nil.
func (c *catalog) backfillParts(ctx context.Context, verbose bool) (tools media.Tools, prober media.Prober, thumbs media.Processor, ok bool) {
	tools = media.FindTools(c.cfg.FFmpegPath, c.cfg.FFprobePath)

	var available bool
	if verbose {
		available = startup.LogFFmpegInit(ctx, tools, c.cfg.ThumbnailsEnabled)
	} else {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		available = tools.Available(checkCtx)
		cancel()
	}
	if !available {
		return tools, nil, nil, false
	}

	prober = media.FFprobe{Path: tools.FFprobe}
	if c.cfg.ThumbnailsEnabled {
		thumbs = media.NewFFmpegThumbnailer(tools.FFmpeg, c.cfg.ThumbnailDir)
	}
	return tools, prober, thumbs, true
}
