package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"graphmem/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		follow bool
		filter logs.Filter
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent pipeline log entries",
		Long: "Read the JSON log file under paths.log_dir, newest entries last.\n" +
			"Filter by job, run, stage, or minimum level; --follow keeps streaming until Ctrl-C.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if lines < 0 {
				return fmt.Errorf("--lines must not be negative, got %d", lines)
			}
			if filter.MinLevel != "" && !logs.ValidLevel(filter.MinLevel) {
				return fmt.Errorf("unknown level %q (want debug, info, warn, or error)", filter.MinLevel)
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.LogPath()

			entries, offset, err := logs.Last(path, filter, lines)
			if err != nil {
				return err
			}
			emit := logEmitter(cmd, ctx)
			if len(entries) == 0 && !follow && !ctx.JSONMode() {
				fmt.Fprintf(cmd.OutOrStdout(), "No matching log entries in %s\n", path)
				return nil
			}
			if ctx.JSONMode() && !follow {
				if entries == nil {
					entries = []logs.Entry{}
				}
				return writeJSON(cmd, entries)
			}
			for _, entry := range entries {
				emit(entry)
			}
			if !follow {
				return nil
			}

			followCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err = logs.Follow(followCtx, path, offset, filter, logs.DefaultPollInterval, emit)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of entries to show (0 for all)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming new entries")
	cmd.Flags().StringVar(&filter.JobID, "job", "", "Only entries for this job id")
	cmd.Flags().StringVar(&filter.RunID, "run", "", "Only entries for this run id")
	cmd.Flags().StringVar(&filter.Stage, "stage", "", "Only entries for this stage")
	cmd.Flags().StringVar(&filter.MinLevel, "level", "", "Minimum level (debug, info, warn, error)")
	return cmd
}

// logEmitter prints entries as text, or as JSON lines in --json mode.
func logEmitter(cmd *cobra.Command, ctx *commandContext) func(logs.Entry) {
	out := cmd.OutOrStdout()
	if ctx.JSONMode() {
		return func(entry logs.Entry) {
			if entry.Raw != "" {
				fmt.Fprintln(out, entry.Raw)
			}
		}
	}
	return func(entry logs.Entry) {
		fmt.Fprintln(out, entry.Format())
	}
}
