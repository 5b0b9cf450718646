package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"clip-catalog/internal/events"
	"clip-catalog/internal/scanner"
)

func newScanCmd(v *viper.Viper) *cobra.Command {
	var (
		asJSON      bool
		showSkipped bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the watch directories once and reconcile the catalog",
		Long: `Walk every watch directory (and its immediate subdirectories), add clips
whose filenames carry a recording timestamp, and remove catalog entries whose
files no longer exist.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(orBackground(cmd.Context()), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runScan(ctx, v, cmd.OutOrStdout(), asJSON, showSkipped)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the scan result as JSON")
	cmd.Flags().BoolVar(&showSkipped, "show-skipped", false, "list every skipped file and directory")
	return cmd
}

func runScan(ctx context.Context, v *viper.Viper, out io.Writer, asJSON, showSkipped bool) error {
	c, err := openCatalog(ctx, v, false)
	if err != nil {
		return err
	}
	defer c.Close()

	bus := events.NewBus()
	defer bus.Close()

	var bar *progressbar.ProgressBar
	if !asJSON && isTerminal(os.Stderr) {
		bar = newProgressBar("Scanning")
		ch, unsubscribe := bus.Subscribe(64)
		defer unsubscribe()
		go followProgress(ch, bar)
	}

	sc := scanner.New(c.db, c.dirs,
		scanner.WithLocation(c.cfg.Location),
		scanner.WithPublisher(bus),
	)
	res, err := sc.ScanDetailed(ctx)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printScanSummary(out, res, showSkipped)
	return nil
}

func printScanSummary(out io.Writer, res *scanner.ScanResult, showSkipped bool) {
	var total int64
	for _, clip := range res.Clips {
		total += clip.FileSize
	}

	fmt.Fprintf(out, "Scanned %d director%s in %v\n", len(res.Dirs), pluralY(len(res.Dirs)), res.Duration.Round(time.Millisecond))
	for _, dir := range res.Dirs {
		fmt.Fprintf(out, "  %s\n", dir)
	}
	fmt.Fprintf(out, "Clips:    %s (%s)\n", humanize.Comma(int64(len(res.Clips))), humanize.IBytes(uint64(total)))
	fmt.Fprintf(out, "New:      %s\n", humanize.Comma(int64(res.Inserted)))
	fmt.Fprintf(out, "Removed:  %s\n", humanize.Comma(int64(res.Orphans)))
	fmt.Fprintf(out, "Skipped:  %s\n", humanize.Comma(int64(len(res.Skipped))))
	if res.OrphanErr != nil {
		fmt.Fprintf(out, "Warning: orphan cleanup failed: %v\n", res.OrphanErr)
	}
	if showSkipped {
		for _, item := range res.Skipped {
			fmt.Fprintf(out, "  %s\n", item)
		}
	}
}

func newProgressBar(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// followProgress mirrors scan.progress events onto bar until ch closes.
func followProgress(ch <-chan events.Event, bar *progressbar.ProgressBar) {
	for e := range ch {
		if e.Kind != events.KindScanProgress || e.Progress == nil {
			continue
		}
		p := e.Progress
		if p.Total > 0 {
			bar.ChangeMax(p.Total)
		}
		bar.Describe(fmt.Sprintf("%-12s", p.Phase))
		_ = bar.Set(p.Done)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
