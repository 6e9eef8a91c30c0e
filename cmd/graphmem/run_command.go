package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"graphmem/internal/queue"
	"graphmem/internal/queueaccess"
	"graphmem/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run [download|transcribe|ingest]",
		Short: "Process eligible jobs through one stage or the whole pipeline",
		Long: "Without a stage, sweep every configured stage until no job is eligible.\n" +
			"With a stage, drain that stage once. Per-job failures are reported in the summary;\n" +
			"interrupting (Ctrl-C) stops new claims and waits for in-flight jobs.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target queue.Stage
			if len(args) == 1 {
				s, err := queue.ParseStage(args[0])
				if err != nil {
					return err
				}
				target = s
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

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return ctx.withRunLock(func() error {
				return ctx.withStore(cmd, func(session queueaccess.Session) error {
					runner, err := newRunner(cfg, session.Store, logger)
					if err != nil {
						return err
					}
					summary, runErr := runner.Run(runCtx, target)
					notifyRun(cmd.Context(), notifierFor(cfg), logger, summary, runErr)
					if err := printRunSummary(cmd, ctx, summary); err != nil {
						return err
					}
					if runErr != nil {
						return runErr
					}
					if summary.Cancelled {
						return context.Canceled
					}
					return nil
				})
			})
		},
	}
}

func printRunSummary(cmd *cobra.Command, ctx *commandContext, summary workflow.RunSummary) error {
	if ctx.JSONMode() {
		return writeJSON(cmd, summary)
	}
	if summary.RunID == "" {
		return nil
	}
	out := cmd.OutOrStdout()
	headers := []string{"Stage", "Claimed", "Succeeded", "Failed", "Interrupted"}
	aligns := []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight}
	fmt.Fprint(out, renderTable(headers, summaryRows(summary), aligns))
	fmt.Fprintf(out, "Run %s (%s, %d pass(es)) finished in %s\n",
		summary.RunID, summary.Mode, summary.Passes, summary.Duration().Round(time.Millisecond))
	if summary.Reconciled > 0 {
		fmt.Fprintf(out, "Reconciled %d interrupted job(s) before the run\n", summary.Reconciled)
	}
	if total := summary.Totals(); total.Failed > 0 {
		fmt.Fprintln(out, "Some jobs failed; see graphmem errors")
	}
	if summary.Cancelled {
		fmt.Fprintln(out, "Run interrupted; in-flight jobs were drained")
	}
	return nil
}
