package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"graphmem/internal/intake"
	"graphmem/internal/queue"
	"graphmem/internal/queueaccess"
	"graphmem/internal/ytdlp"
)

func newIntakeCommand(ctx *commandContext) *cobra.Command {
	var fromFile string
	var kindFlag string
	var limit int

	cmd := &cobra.Command{
		Use:   "intake [source...]",
		Short: "Register channels, video URLs or local files as jobs",
		Long: "Register sources as jobs. Each argument is treated as a channel, a video URL or a local path;\n" +
			"use --kind to force one interpretation. Registering a source twice is a no-op.",
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := collectSources(args, kindFlag, fromFile)
			if err != nil {
				return err
			}
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
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

			lister, err := ytdlp.New(cfg.Download, cfg.Paths.DownloadDir, ytdlp.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("configure channel listing: %w", err)
			}

			return ctx.withStore(cmd, func(session queueaccess.Session) error {
				svc := intake.New(session.Store, lister, cfg.Intake, logger)
				result, err := svc.Intake(cmd.Context(), sources, limit)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				if len(result.Jobs) == 0 {
					fmt.Fprintln(out, "No jobs registered")
				} else {
					rows := make([][]string, 0, len(result.Jobs))
					for _, job := range result.Jobs {
						state := "existing"
						if job.Created {
							state = "new"
						}
						rows = append(rows, []string{job.ID, job.Title, string(job.Source.Kind), state})
					}
					fmt.Fprint(out, renderTable([]string{"Job", "Title", "Kind", "State"}, rows, nil))
				}
				fmt.Fprintf(out, "Registered %d job(s), %d new, %d skipped\n", len(result.Jobs), result.Created(), len(result.Skipped))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&fromFile, "from-file", "f", "", "YAML file listing channels, urls and paths")
	cmd.Flags().StringVar(&kindFlag, "kind", "", "Treat every argument as this kind (channel, url, local)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum videos to register per channel (0 for all)")
	return cmd
}

func collectSources(args []string, kindFlag, fromFile string) ([]queue.Source, error) {
	var forced queue.SourceKind
	if strings.TrimSpace(kindFlag) != "" {
		kind, err := queue.ParseSourceKind(kindFlag)
		if err != nil {
			return nil, err
		}
		forced = kind
	}

	sources := make([]queue.Source, 0, len(args))
	for _, arg := range args {
		ref := strings.TrimSpace(arg)
		if ref == "" {
			continue
		}
		kind := forced
		if kind == "" {
			kind = intake.DetectKind(ref)
		}
		sources = append(sources, queue.Source{Kind: kind, Ref: ref})
	}
	if path := strings.TrimSpace(fromFile); path != "" {
		listed, err := intake.LoadSourceFile(path)
		if err != nil {
			return nil, err
		}
		sources = append(sources, listed...)
	}
	if len(sources) == 0 {
		return nil, errors.New("no sources given; pass channels, URLs or paths, or --from-file")
	}
	return sources, nil
}
