package preflight

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"graphmem/internal/config"
	"graphmem/internal/deps"
	"graphmem/internal/queueaccess"
)

// CheckGraphEndpoint verifies the ingest endpoint answers its health probe
// and accepts the API key.
func CheckGraphEndpoint(ctx context.Context, endpoint, apiKey string) Result {
	const name = "Graph endpoint"

	base := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing endpoint"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/healthcheck", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%v)", err)}
	}
	if key := strings.TrimSpace(apiKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%v)", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return Result{Name: name, Passed: true, Detail: base + " (reachable)"}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (invalid api key)"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%d)", resp.StatusCode)}
	}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// CheckStore opens the configured job store and verifies it answers. The
// SQLite backend also runs an integrity check.
func CheckStore(ctx context.Context, cfg *config.Config) Result {
	const name = "Job store"

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	session, err := queueaccess.Open(checkCtx, cfg)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer session.Close()

	if store, ok := session.SQLite(); ok {
		health, err := store.CheckHealth(checkCtx)
		if err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", session.Location, err)}
		}
		if !health.IntegrityCheck {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: integrity check failed)", session.Location)}
		}
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (schema v%d, %d jobs)", session.Location, health.SchemaVersion, health.TotalJobs)}
	}
	if p, ok := session.Store.(pinger); ok {
		if err := p.Ping(checkCtx); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", session.Location, err)}
		}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s reachable)", session.Location, session.Backend)}
}

// CheckSystemDeps evaluates the external binaries the configured stages run.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	var requirements []deps.Requirement
	for _, name := range cfg.StageOrder() {
		switch name {
		case "download":
			requirements = append(requirements, deps.Requirement{
				Name:        "yt-dlp",
				Command:     cfg.Download.Binary,
				Description: "Required for channel intake and media download",
				VersionArgs: []string{"--version"},
			})
		case "transcribe":
			requirements = append(requirements, deps.Requirement{
				Name:        "Transcriber",
				Command:     cfg.Transcribe.Command,
				Description: "Required for transcription",
			})
		}
	}
	if !slices.Contains(cfg.StageOrder(), "download") {
		requirements = append(requirements, deps.Requirement{
			Name:        "yt-dlp",
			Command:     cfg.Download.Binary,
			Description: "Used by channel intake",
			Optional:    true,
			VersionArgs: []string{"--version"},
		})
	}
	return deps.CheckBinaries(ctx, requirements)
}
