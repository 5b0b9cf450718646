package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"clip-catalog/internal/events"
	"clip-catalog/internal/media"
	"clip-catalog/internal/workers"
)

func newBackfillCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Generate missing thumbnails and durations",
		Long: `Run ffprobe and ffmpeg over every catalogued clip that lacks a duration or
thumbnail. Clips that fail are left as they are and retried on the next run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(orBackground(cmd.Context()), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBackfillCmd(ctx, v, cmd.OutOrStdout())
		},
	}
}

func runBackfillCmd(ctx context.Context, v *viper.Viper, out io.Writer) error {
	c, err := openCatalog(ctx, v, false)
	if err != nil {
		return err
	}
	defer c.Close()

	_, prober, thumbs, ok := c.backfillParts(ctx, false)
	if !ok {
		return errors.New("ffmpeg and ffprobe are required for backfill")
	}

	bus := events.NewBus()
	defer bus.Close()

	opts := []media.BackfillOption{
		media.WithWorkers(workers.Backfill(c.cfg.BackfillWorkers)),
		media.WithEvents(bus),
	}

	var bar *progressbar.ProgressBar
	if isTerminal(os.Stderr) {
		bar = newProgressBar("Backfilling")
		ch, unsubscribe := bus.Subscribe(64)
		defer unsubscribe()
		go followProgress(ch, bar)
	}

	res, err := media.NewBackfiller(c.db, prober, thumbs, opts...).Run(ctx)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}

	fmt.Fprintf(out, "Processed %d clips in %v: %d thumbnails, %d probed, %d failed\n",
		res.Total, res.Duration.Round(time.Millisecond), res.Thumbnails, res.Probed, res.Failed)
	return nil
}
