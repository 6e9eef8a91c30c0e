package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"graphmem/internal/logging"
	"graphmem/internal/queue"
	"graphmem/internal/queueaccess"
	"graphmem/internal/staging"
)

type pruneReport struct {
	DryRun   bool     `json:"dry_run"`
	Partials []string `json:"partials"`
	Orphans  []string `json:"orphans"`
	Bytes    int64    `json:"bytes"`
	Errors   []string `json:"errors,omitempty"`
}

func newPruneCommand(ctx *commandContext) *cobra.Command {
	var (
		partialAge time.Duration
		orphans    bool
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove stale partial downloads and unreferenced media",
		Long: "Delete yt-dlp partial files older than --partials-older-than from paths.download_dir.\n" +
			"With --orphans, also delete media no job references. Holds the run lock so\n" +
			"in-flight downloads are never touched.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if partialAge < 0 {
				return fmt.Errorf("--partials-older-than must not be negative, got %s", partialAge)
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, closer, err := ctx.logger(cmd)
			if err != nil {
				return err
			}
			defer closer.Close()
			logger = logging.NewComponentLogger(logger, "prune")
			opts := staging.Options{DryRun: dryRun, Logger: logger}
			dir := cfg.Paths.DownloadDir

			report := pruneReport{DryRun: dryRun, Partials: []string{}, Orphans: []string{}}
			err = ctx.withRunLock(func() error {
				partials := staging.CleanPartials(cmd.Context(), dir, partialAge, opts)
				report.add(partials, &report.Partials)
				if !orphans {
					return nil
				}
				return ctx.withStore(cmd, func(session queueaccess.Session) error {
					referenced, err := referencedDownloads(cmd, session.Store)
					if err != nil {
						return err
					}
					report.add(staging.CleanOrphaned(cmd.Context(), dir, referenced, opts), &report.Orphans)
					return nil
				})
			})
			if err != nil {
				return err
			}

			if ctx.JSONMode() {
				return writeJSON(cmd, report)
			}
			out := cmd.OutOrStdout()
			verb := "Removed"
			if dryRun {
				verb = "Would remove"
			}
			for _, path := range report.Partials {
				fmt.Fprintf(out, "partial  %s\n", path)
			}
			for _, path := range report.Orphans {
				fmt.Fprintf(out, "orphan   %s\n", path)
			}
			fmt.Fprintf(out, "%s %d file(s), %s\n",
				verb, len(report.Partials)+len(report.Orphans), humanize.IBytes(uint64(report.Bytes)))
			if files, size, err := staging.Usage(dir); err == nil {
				fmt.Fprintf(out, "Download directory holds %d file(s), %s\n", files, humanize.IBytes(uint64(size)))
			}
			if len(report.Errors) > 0 {
				for _, msg := range report.Errors {
					fmt.Fprintf(cmd.ErrOrStderr(), "prune: %s\n", msg)
				}
				return fmt.Errorf("prune could not remove %d file(s)", len(report.Errors))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&partialAge, "partials-older-than", 24*time.Hour, "Minimum age of partial downloads to remove")
	cmd.Flags().BoolVar(&orphans, "orphans", false, "Also remove media that no job references")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be removed without deleting")
	return cmd
}

func (r *pruneReport) add(result staging.Result, into *[]string) {
	*into = append(*into, result.Removed...)
	r.Bytes += result.Bytes
	for _, e := range result.Errors {
		r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", e.Path, e.Error))
	}
}

// referencedDownloads collects every download artifact recorded in the store.
func referencedDownloads(cmd *cobra.Command, store queue.JobStore) (map[string]struct{}, error) {
	jobs, err := store.List(cmd.Context())
	if err != nil {
		return nil, err
	}
	referenced := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		if path := job.StageOutputs[queue.Download]; path != "" {
			referenced[filepath.Clean(path)] = struct{}{}
		}
	}
	return referenced, nil
}
