package main

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"clip-catalog/internal/watchdirs"
)

func newDirsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dirs",
		Short: "Show or change the watch directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDirsShow(cmd.Context(), v, cmd.OutOrStdout())
		},
	}

	set := &cobra.Command{
		Use:   "set [dir...]",
		Short: "Replace the watch directories (no arguments reverts to the default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDirsSet(cmd.Context(), v, cmd.OutOrStdout(), args)
		},
	}
	cmd.AddCommand(set)
	return cmd
}

func runDirsShow(ctx context.Context, v *viper.Viper, out io.Writer) error {
	ctx = orBackground(ctx)
	c, err := openCatalog(ctx, v, false)
	if err != nil {
		return err
	}
	defer c.Close()

	configured, err := c.dirs.Configured(ctx)
	if err != nil {
		fmt.Fprintf(out, "Stored list unreadable: %v\n", err)
	}
	if len(configured) == 0 {
		fmt.Fprintln(out, "No watch directories configured, using the default.")
	}
	printDirs(out, c.dirs.Resolve(ctx))
	return nil
}

func runDirsSet(ctx context.Context, v *viper.Viper, out io.Writer, dirs []string) error {
	ctx = orBackground(ctx)
	c, err := openCatalog(ctx, v, false)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.dirs.Set(ctx, dirs); err != nil {
		return fmt.Errorf("failed to save watch directories: %w", err)
	}
	printDirs(out, c.dirs.Resolve(ctx))
	return nil
}

func printDirs(out io.Writer, dirs []string) {
	existing := watchdirs.Existing(dirs)
	for _, dir := range dirs {
		mark := "ok"
		if !slices.Contains(existing, dir) {
			mark = "missing"
		}
		fmt.Fprintf(out, "  %-8s %s\n", mark, dir)
	}
}
