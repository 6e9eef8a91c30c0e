package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"graphmem/internal/queue"
	"graphmem/internal/queueaccess"
)

type statusView struct {
	Counts         map[queue.Status]int `json:"counts"`
	Total          int                  `json:"total"`
	RecentFailures []queue.Failure      `json:"recent_failures"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show job counts per status and the most recent failures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(session queueaccess.Session) error {
				counts, err := session.Store.Counts(cmd.Context())
				if err != nil {
					return err
				}
				failures, err := session.Store.Failures(cmd.Context())
				if err != nil {
					return err
				}
				if len(failures) > recentFailureLimit {
					failures = failures[:recentFailureLimit]
				}
				view := statusView{Counts: counts, RecentFailures: failures}
				for _, n := range counts {
					view.Total += n
				}
				if view.RecentFailures == nil {
					view.RecentFailures = []queue.Failure{}
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, view)
				}

				out := cmd.OutOrStdout()
				if view.Total == 0 {
					fmt.Fprintln(out, "No jobs registered; add some with graphmem intake")
					return nil
				}
				fmt.Fprint(out, renderTable([]string{"Status", "Count"}, statusRows(counts), []columnAlignment{alignLeft, alignRight}))
				fmt.Fprintf(out, "Total jobs: %d\n", view.Total)
				if len(failures) > 0 {
					fmt.Fprintln(out)
					fmt.Fprintln(out, "Recent failures:")
					fmt.Fprint(out, renderTable(failureHeaders, failureRows(failures, messageWidth), nil))
				}
				return nil
			})
		},
	}
}

var failureHeaders = []string{"Job", "Title", "Stage", "Failed At", "Message"}

func newErrorsCommand(ctx *commandContext) *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "errors",
		Short: "List every failed job, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(session queueaccess.Session) error {
				failures, err := session.Store.Failures(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if failures == nil {
						failures = []queue.Failure{}
					}
					return writeJSON(cmd, failures)
				}
				out := cmd.OutOrStdout()
				if len(failures) == 0 {
					fmt.Fprintln(out, "No failed jobs")
					return nil
				}
				width := messageWidth
				if full {
					width = 0
				}
				fmt.Fprint(out, renderTable(failureHeaders, failureRows(failures, width), nil))
				fmt.Fprintf(out, "%d failed job(s); retry with graphmem retry <id> or --all-failed\n", len(failures))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "Print complete error messages")
	return cmd
}
