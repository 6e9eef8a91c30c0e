package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"graphmem/internal/queue"
	"graphmem/internal/queueaccess"
	"graphmem/internal/workflow"
)

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var stageFlag string
	var allFailed bool
	var interrupted bool

	cmd := &cobra.Command{
		Use:   "retry [job-id]",
		Short: "Re-queue failed or interrupted jobs",
		Long: "Reset a failed job so the next run picks it up. Without --stage the job restarts the whole\n" +
			"pipeline; with --stage it must have failed in that stage and resumes there.\n" +
			"--all-failed resets every failed job at the stage it failed in. --interrupted releases\n" +
			"jobs left in progress by a crashed run and must not be used while a run is active.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var s queue.Stage
			if strings.TrimSpace(stageFlag) != "" {
				parsed, err := queue.ParseStage(stageFlag)
				if err != nil {
					return err
				}
				s = parsed
			}
			modes := 0
			if len(args) == 1 {
				modes++
			}
			if allFailed {
				modes++
			}
			if interrupted {
				modes++
			}
			if modes != 1 {
				return errors.New("give exactly one of a job id, --all-failed or --interrupted")
			}
			if interrupted && s != "" {
				return errors.New("--stage cannot be combined with --interrupted")
			}

			logger, closer, err := ctx.logger(cmd)
			if err != nil {
				return err
			}
			defer closer.Close()

			return ctx.withStore(cmd, func(session queueaccess.Session) error {
				controller := workflow.NewController(session.Store, logger)
				switch {
				case len(args) == 1:
					status, err := controller.Retry(cmd.Context(), args[0], s)
					if err != nil {
						return err
					}
					result := workflow.RetryResult{JobID: args[0], Status: status}
					return printRetryResults(cmd, ctx, []workflow.RetryResult{result})
				case allFailed:
					results, err := controller.RetryFailed(cmd.Context(), s)
					if err != nil {
						return err
					}
					return printRetryResults(cmd, ctx, results)
				default:
					var results []workflow.RetryResult
					err := ctx.withRunLock(func() error {
						var err error
						results, err = controller.RetryInterrupted(cmd.Context())
						return err
					})
					if err != nil {
						return err
					}
					return printRetryResults(cmd, ctx, results)
				}
			})
		},
	}

	cmd.Flags().StringVarP(&stageFlag, "stage", "s", "", "Stage to resume from (download, transcribe, ingest)")
	cmd.Flags().BoolVar(&allFailed, "all-failed", false, "Retry every failed job")
	cmd.Flags().BoolVar(&interrupted, "interrupted", false, "Release and re-queue jobs left in progress")
	return cmd
}

func printRetryResults(cmd *cobra.Command, ctx *commandContext, results []workflow.RetryResult) error {
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	if ctx.JSONMode() {
		if results == nil {
			results = []workflow.RetryResult{}
		}
		if err := writeJSON(cmd, results); err != nil {
			return err
		}
	} else {
		out := cmd.OutOrStdout()
		if len(results) == 0 {
			fmt.Fprintln(out, "Nothing to retry")
			return nil
		}
		for _, r := range results {
			if r.Error != "" {
				fmt.Fprintf(out, "%s: %s\n", r.JobID, r.Error)
				continue
			}
			fmt.Fprintf(out, "%s -> %s\n", r.JobID, formatLabel(string(r.Status)))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d job(s) could not be retried", failed, len(results))
	}
	return nil
}
