package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir     string `toml:"data_dir"`
	DownloadDir string `toml:"download_dir"`
	LogDir      string `toml:"log_dir"`
}

// Store selects the job store backend.
type Store struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

// Stages contains pipeline ordering and per-stage concurrency limits.
type Stages struct {
	Order                 []string `toml:"order"`
	DownloadConcurrency   int      `toml:"download_concurrency"`
	TranscribeConcurrency int      `toml:"transcribe_concurrency"`
	IngestConcurrency     int      `toml:"ingest_concurrency"`
}

// Download configures the yt-dlp downloader.
type Download struct {
	Binary         string `toml:"binary"`
	Format         string `toml:"format"`
	CookiesFile    string `toml:"cookies_file"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Transcribe configures the command-line transcriber.
type Transcribe struct {
	Command        string   `toml:"command"`
	Args           []string `toml:"args"`
	OutputSuffix   string   `toml:"output_suffix"`
	ReuseExisting  bool     `toml:"reuse_existing"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Ingest configures the knowledge-graph ingester.
type Ingest struct {
	Sink           string `toml:"sink"`
	Endpoint       string `toml:"endpoint"`
	APIKey         string `toml:"api_key"`
	GroupID        string `toml:"group_id"`
	OutputDir      string `toml:"output_dir"`
	ChunkSize      int    `toml:"chunk_size"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Intake configures channel expansion filters.
type Intake struct {
	MinDurationSeconds int    `toml:"min_duration_seconds"`
	SkipTitlePrefix    string `toml:"skip_title_prefix"`
}

// Workflow contains run-level behaviour.
type Workflow struct {
	ReconcileOnStart bool   `toml:"reconcile_on_start"`
	WatchSchedule    string `toml:"watch_schedule"`
}

// Notifications configures ntfy run alerts. An empty topic disables them.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	// OnlyFailures suppresses alerts for runs in which no job failed.
	OnlyFailures bool `toml:"only_failures"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for graphmem.
//
// Configuration sections by subsystem:
//   - Paths: data, download, and log directories
//   - Store: job store backend (sqlite or postgres)
//   - Stages: stage order and per-stage concurrency
//   - Download, Transcribe, Ingest: collaborator bindings
//   - Intake: channel expansion filters
//   - Workflow: reconciliation and watch schedule
//   - Notifications: ntfy run alerts
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Store         Store         `toml:"store"`
	Stages        Stages        `toml:"stages"`
	Download      Download      `toml:"download"`
	Transcribe    Transcribe    `toml:"transcribe"`
	Ingest        Ingest        `toml:"ingest"`
	Intake        Intake        `toml:"intake"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("graphmem.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the pipeline writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.DownloadDir, c.Paths.LogDir}
	if c.Ingest.Sink == IngestSinkFile {
		dirs = append(dirs, c.Ingest.OutputDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StageOrder returns the configured stage names in execution order.
func (c *Config) StageOrder() []string {
	out := make([]string, len(c.Stages.Order))
	copy(out, c.Stages.Order)
	return out
}

// Concurrency returns the in-flight limit for the named stage, or 0 for unknown names.
func (c *Config) Concurrency(stage string) int {
	switch strings.ToLower(strings.TrimSpace(stage)) {
	case "download":
		return c.Stages.DownloadConcurrency
	case "transcribe":
		return c.Stages.TranscribeConcurrency
	case "ingest":
		return c.Stages.IngestConcurrency
	default:
		return 0
	}
}

// LockPath is the flock file guarding pipeline runs.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "graphmem.lock")
}

// LogPath is the persistent log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "graphmem.log")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
