package main

import (
	"fmt"
	"log/slog"

	"graphmem/internal/config"
	"graphmem/internal/graphingest"
	"graphmem/internal/queue"
	"graphmem/internal/stage"
	"graphmem/internal/transcription"
	"graphmem/internal/workflow"
	"graphmem/internal/ytdlp"
)

// buildBindings constructs the collaborator for every stage in
// stages.order. Stages left out of the order are not configured.
func buildBindings(cfg *config.Config, logger *slog.Logger) (stage.Bindings, error) {
	var b stage.Bindings
	for _, name := range cfg.StageOrder() {
		switch queue.Stage(name) {
		case queue.Download:
			client, err := ytdlp.New(cfg.Download, cfg.Paths.DownloadDir, ytdlp.WithLogger(logger))
			if err != nil {
				return b, fmt.Errorf("configure downloader: %w", err)
			}
			b.Downloader = client
		case queue.Transcribe:
			client, err := transcription.New(cfg.Transcribe, transcription.WithLogger(logger))
			if err != nil {
				return b, fmt.Errorf("configure transcriber: %w", err)
			}
			b.Transcriber = client
		case queue.Ingest:
			ingester, err := graphingest.New(cfg.Ingest,
				graphingest.WithLogger(logger),
				graphingest.WithTranscriptSuffix(cfg.Transcribe.OutputSuffix),
			)
			if err != nil {
				return b, fmt.Errorf("configure ingester: %w", err)
			}
			b.Ingester = ingester
		}
	}
	return b, nil
}

func newRunner(cfg *config.Config, store queue.JobStore, logger *slog.Logger) (*workflow.Runner, error) {
	bindings, err := buildBindings(cfg, logger)
	if err != nil {
		return nil, err
	}
	opts, err := workflow.OptionsFromConfig(cfg, bindings)
	if err != nil {
		return nil, err
	}
	return workflow.NewRunner(store, opts, logger)
}
