package ytdlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"graphmem/internal/config"
	"graphmem/internal/logging"
	"graphmem/internal/queue"
	"graphmem/internal/services"
	"graphmem/internal/stage"
)

// Entry is one video from a flat channel listing.
type Entry struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
	URL      string  `json:"url"`
}

// WatchURL is the canonical URL of the entry.
func (e Entry) WatchURL() string {
	return "https://www.youtube.com/watch?v=" + e.ID
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec services.Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithLogger sets the logger used for progress output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client wraps yt-dlp interactions.
type Client struct {
	binary      string
	format      string
	cookiesFile string
	outputDir   string
	timeout     time.Duration
	exec        services.Executor
	logger      *slog.Logger
}

// New constructs a yt-dlp client that downloads into outputDir.
func New(cfg config.Download, outputDir string, opts ...Option) (*Client, error) {
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		return nil, errors.New("yt-dlp binary required")
	}
	if strings.TrimSpace(outputDir) == "" {
		return nil, errors.New("download directory required")
	}
	client := &Client{
		binary:      binary,
		format:      strings.TrimSpace(cfg.Format),
		cookiesFile: strings.TrimSpace(cfg.CookiesFile),
		outputDir:   outputDir,
		timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		exec:        services.CommandExecutor{},
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	client.logger = logging.NewComponentLogger(client.logger, "ytdlp")
	return client, nil
}

// ListChannel returns the videos of a channel or playlist without
// downloading them. A positive limit is passed to yt-dlp as --playlist-end.
func (c *Client) ListChannel(ctx context.Context, channelURL string, limit int) ([]Entry, error) {
	channelURL = strings.TrimSpace(channelURL)
	if channelURL == "" {
		return nil, services.Wrap(services.ErrValidation, "intake", "list channel", "channel URL is required", nil)
	}
	args := []string{"--flat-playlist", "--skip-download", "--dump-json"}
	if limit > 0 {
		args = append(args, "--playlist-end", strconv.Itoa(limit))
	}
	args = append(c.withCookies(args), channelURL)

	var (
		entries []Entry
		skipped int
	)
	err := c.exec.Run(ctx, c.binary, args, func(line string) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil || entry.ID == "" {
			skipped++
			return
		}
		entries = append(entries, entry)
	})
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "intake", "list channel", channelURL, err)
	}
	if skipped > 0 {
		logging.WarnWithContext(c.logger, "skipped unreadable listing lines", "channel_listing_partial",
			logging.Int("skipped", skipped),
			logging.String("channel", channelURL),
			logging.String(logging.FieldImpact, "some channel entries were not registered"),
		)
	}
	return entries, nil
}

// Fetch satisfies stage.Downloader. URL sources are downloaded into the
// output directory; local sources are checked for existence.
func (c *Client) Fetch(ctx context.Context, source queue.Source) (string, error) {
	switch source.Kind {
	case queue.SourceLocal:
		return verifyLocal(source.Ref)
	case queue.SourceURL:
		return c.download(ctx, source.Ref)
	default:
		return "", services.Wrap(services.ErrValidation, "download", "fetch",
			fmt.Sprintf("%s sources are expanded at intake and cannot be downloaded", source.Kind), nil)
	}
}

// HealthCheck reports whether the yt-dlp binary is on PATH.
func (c *Client) HealthCheck(context.Context) stage.Health {
	if _, err := exec.LookPath(c.binary); err != nil {
		return stage.Unhealthyf("download", "%s not found on PATH", c.binary)
	}
	return stage.Healthy("download")
}

func verifyLocal(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "download", "resolve path", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", services.Wrap(services.ErrNotFound, "download", "verify local file", abs, nil)
		}
		return "", services.Wrap(services.ErrValidation, "download", "verify local file", abs, err)
	}
	if info.IsDir() {
		return "", services.Wrap(services.ErrValidation, "download", "verify local file", abs+" is a directory", nil)
	}
	return abs, nil
}

var (
	progressPattern    = regexp.MustCompile(`^\[download\]\s+(\d+(?:\.\d+)?)%`)
	destinationPattern = regexp.MustCompile(`^\[download\] Destination: (.+)$`)
)

func (c *Client) download(ctx context.Context, videoURL string) (string, error) {
	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "download", "prepare directory", c.outputDir, err)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := []string{
		"--no-playlist",
		"--newline",
		"--restrict-filenames",
		"-P", c.outputDir,
		"-o", "%(id)s.%(ext)s",
		"--print", "after_move:filepath",
	}
	if c.format != "" {
		args = append(args, "-f", c.format)
	}
	args = append(c.withCookies(args), videoURL)

	logger := logging.WithContext(ctx, c.logger)
	sampler := logging.NewProgressSampler(10)
	var finalPath string
	err := c.exec.Run(ctx, c.binary, args, func(line string) {
		line = strings.TrimSpace(line)
		if m := destinationPattern.FindStringSubmatch(line); m != nil {
			sampler.ShouldLog(-1, filepath.Ext(m[1]))
			return
		}
		if m := progressPattern.FindStringSubmatch(line); m != nil {
			percent, _ := strconv.ParseFloat(m[1], 64)
			if sampler.ShouldLog(percent, "") {
				logger.Debug("download progress", logging.Float64("percent", percent))
			}
			return
		}
		if filepath.IsAbs(line) {
			finalPath = line
		}
	})
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "download", "yt-dlp", videoURL, err)
	}
	if finalPath == "" {
		return "", services.Wrap(services.ErrExternalTool, "download", "yt-dlp", "no output file reported for "+videoURL, nil)
	}
	if _, err := os.Stat(finalPath); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "download", "yt-dlp", "reported file is missing", err)
	}
	return finalPath, nil
}

func (c *Client) withCookies(args []string) []string {
	if c.cookiesFile == "" {
		return args
	}
	return append(args, "--cookies", c.cookiesFile)
}
