package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"graphmem/internal/config"
	"graphmem/internal/logging"
	"graphmem/internal/notifications"
	"graphmem/internal/workflow"
)

// notifyRun publishes the outcome of a run. Delivery problems are logged
// and never change the command result.
func notifyRun(ctx context.Context, svc notifications.Service, logger *slog.Logger, summary workflow.RunSummary, runErr error) {
	var err error
	switch {
	case runErr != nil && !errors.Is(runErr, context.Canceled):
		err = svc.NotifyRunAborted(context.WithoutCancel(ctx), summary.RunID, runErr)
	default:
		err = svc.NotifyRunCompleted(context.WithoutCancel(ctx), summary)
	}
	if err != nil {
		logging.WarnWithContext(logger, "run notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "run alert not delivered"),
		)
	}
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification to the configured ntfy topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Notifications.NtfyTopic == "" {
				return errors.New("notifications.ntfy_topic is not configured")
			}
			if err := notifications.NewService(cfg.Notifications).TestNotification(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Test notification sent to %s\n", cfg.Notifications.NtfyTopic)
			return nil
		},
	}
}

func notifierFor(cfg *config.Config) notifications.Service {
	return notifications.NewService(cfg.Notifications)
}
