package preflight

import (
	"context"

	"graphmem/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes the directory, store and graph checks for cfg. Binary
// checks are reported separately by CheckSystemDeps.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Download directory", cfg.Paths.DownloadDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	results = append(results, CheckStore(ctx, cfg))

	switch cfg.Ingest.Sink {
	case config.IngestSinkHTTP:
		results = append(results, CheckGraphEndpoint(ctx, cfg.Ingest.Endpoint, cfg.Ingest.APIKey))
	case config.IngestSinkFile:
		results = append(results, CheckDirectoryAccess("Episode directory", cfg.Ingest.OutputDir))
	}
	return results
}
