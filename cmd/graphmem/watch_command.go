package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"graphmem/internal/daemon"
	"graphmem/internal/queueaccess"
	"graphmem/internal/workflow"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var schedule string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sweep the pipeline on a cron schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			expr := strings.TrimSpace(schedule)
			if expr == "" {
				expr = cfg.Workflow.WatchSchedule
			}
			logger, closer, err := ctx.logger(cmd)
			if err != nil {
				return err
			}
			defer closer.Close()

			watchCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return ctx.withStore(cmd, func(session queueaccess.Session) error {
				runner, err := newRunner(cfg, session.Store, logger)
				if err != nil {
					return err
				}
				lock := daemon.NewRunLock(cfg.LockPath())
				watcher, err := daemon.NewWatcher(expr, runner, lock, logger)
				if err != nil {
					return err
				}

				notifier := notifierFor(cfg)
				var mu sync.Mutex
				watcher.OnSweep = func(summary workflow.RunSummary, err error) {
					notifyRun(watchCtx, notifier, logger, summary, err)
					mu.Lock()
					defer mu.Unlock()
					if err != nil && !errors.Is(err, context.Canceled) {
						fmt.Fprintf(cmd.ErrOrStderr(), "sweep failed: %v\n", err)
					}
					_ = printRunSummary(cmd, ctx, summary)
				}

				if !ctx.JSONMode() {
					fmt.Fprintf(cmd.OutOrStdout(), "Watching with schedule %q (Ctrl-C to stop)\n", expr)
				}
				if err := watcher.Run(watchCtx); err != nil {
					return wrapLockError(err, lock.Path())
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron expression overriding workflow.watch_schedule")
	return cmd
}
