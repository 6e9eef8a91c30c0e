package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"graphmem/internal/deps"
	"graphmem/internal/preflight"
	"graphmem/internal/queue"
	"graphmem/internal/stage"
)

type doctorReport struct {
	Dependencies  []deps.Status      `json:"dependencies"`
	Checks        []preflight.Result `json:"checks"`
	Collaborators []stage.Health     `json:"collaborators"`
	Problems      int                `json:"problems"`
}

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools, directories, the job store and the graph sink",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, closer, err := ctx.logger(cmd)
			if err != nil {
				return err
			}
			defer closer.Close()

			report := doctorReport{
				Dependencies: preflight.CheckSystemDeps(cmd.Context(), cfg),
				Checks:       preflight.RunAll(cmd.Context(), cfg),
			}
			bindings, err := buildBindings(cfg, logger)
			if err != nil {
				report.Collaborators = []stage.Health{stage.Unhealthy("collaborators", err.Error())}
			} else {
				for _, name := range cfg.StageOrder() {
					report.Collaborators = append(report.Collaborators, collaboratorHealth(cmd, bindings, name))
				}
			}

			colorize := shouldColorize(cmd.OutOrStdout())
			depLines, missing := dependencyLines(report.Dependencies, colorize)
			checks, failedChecks := checkLines(report.Checks, colorize)
			health, unhealthy := healthLines(report.Collaborators, colorize)
			report.Problems = missing + failedChecks + unhealthy

			if ctx.JSONMode() {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				for _, section := range []struct {
					title string
					lines []string
				}{
					{"Dependencies", depLines},
					{"Environment", checks},
					{"Collaborators", health},
				} {
					for _, line := range renderSectionHeader(section.title, colorize) {
						fmt.Fprintln(out, line)
					}
					for _, line := range section.lines {
						fmt.Fprintln(out, line)
					}
					fmt.Fprintln(out)
				}
			}
			if report.Problems > 0 {
				return fmt.Errorf("doctor found %d problem(s)", report.Problems)
			}
			if !ctx.JSONMode() {
				fmt.Fprintln(cmd.OutOrStdout(), "All checks passed")
			}
			return nil
		},
	}
}

func collaboratorHealth(cmd *cobra.Command, bindings stage.Bindings, name string) stage.Health {
	handler, err := bindings.Handler(queue.Stage(name))
	if err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return handler.HealthCheck(cmd.Context())
}
