package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"graphmem/internal/queueaccess"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(session queueaccess.Session) error {
				job, err := session.Store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, job)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, jobRows(job), nil))
				return nil
			})
		},
	}
}
