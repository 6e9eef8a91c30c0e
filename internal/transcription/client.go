package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"graphmem/internal/config"
	"graphmem/internal/fileutil"
	"graphmem/internal/logging"
	"graphmem/internal/services"
	"graphmem/internal/stage"
)

const (
	inputPlaceholder  = "{input}"
	outputPlaceholder = "{output}"
)

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

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client is the command-driven Transcriber.
type Client struct {
	command string
	args    []string
	suffix  string
	reuse   bool
	timeout time.Duration
	exec    services.Executor
	logger  *slog.Logger
}

// New builds a transcriber from cfg.
func New(cfg config.Transcribe, opts ...Option) (*Client, error) {
	command := strings.TrimSpace(cfg.Command)
	if command == "" {
		return nil, errors.New("transcribe command required")
	}
	suffix := strings.TrimSpace(cfg.OutputSuffix)
	if suffix == "" {
		return nil, errors.New("transcript output suffix required")
	}
	client := &Client{
		command: command,
		args:    append([]string(nil), cfg.Args...),
		suffix:  suffix,
		reuse:   cfg.ReuseExisting,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		exec:    services.CommandExecutor{},
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	client.logger = logging.NewComponentLogger(client.logger, "transcriber")
	return client, nil
}

// TranscriptPath is where the transcript of mediaRef lives: beside the media,
// named after its stem.
func (c *Client) TranscriptPath(mediaRef string) string {
	dir := filepath.Dir(mediaRef)
	stem := strings.TrimSuffix(filepath.Base(mediaRef), filepath.Ext(mediaRef))
	return filepath.Join(dir, stem+c.suffix)
}

// Transcribe satisfies stage.Transcriber and returns the transcript path.
func (c *Client) Transcribe(ctx context.Context, mediaRef string) (string, error) {
	mediaRef = strings.TrimSpace(mediaRef)
	if mediaRef == "" {
		return "", services.Wrap(services.ErrValidation, "transcribe", "resolve media", "media reference is empty", nil)
	}
	logger := logging.WithContext(ctx, c.logger)
	target := c.TranscriptPath(mediaRef)

	if c.reuse {
		exists, err := fileutil.RegularFileExists(target)
		if err != nil {
			return "", services.Wrap(services.ErrValidation, "transcribe", "inspect transcript", target, err)
		}
		if exists {
			logger.Info("reusing existing transcript",
				logging.String(logging.FieldEventType, "transcript_reused"),
				logging.String("transcript", target),
			)
			return target, nil
		}
	}

	if exists, err := fileutil.RegularFileExists(mediaRef); err != nil || !exists {
		return "", services.Wrap(services.ErrNotFound, "transcribe", "verify media", mediaRef, err)
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	// Only a transcript this run created or rewrote counts as tool output;
	// a leftover file from an earlier run must not mask a failure.
	previous := statTranscript(target)

	var stdout strings.Builder
	args := c.expandArgs(mediaRef, target)
	start := time.Now()
	runErr := c.exec.Run(runCtx, c.command, args, func(line string) {
		stdout.WriteString(line)
		stdout.WriteByte('\n')
	})
	if runErr != nil && ctx.Err() != nil {
		return "", fmt.Errorf("transcribe %s: %w", mediaRef, ctx.Err())
	}

	// Some tools write the transcript and still exit non-zero.
	if previous.replacedBy(statTranscript(target)) {
		if runErr != nil {
			logging.WarnWithContext(logger, "transcriber failed but produced a transcript", "transcribe_partial",
				logging.Error(runErr),
				logging.String("transcript", target),
				logging.String(logging.FieldImpact, "transcript kept; review it before trusting the ingest"),
			)
		}
		logger.Info("transcript written by tool",
			logging.String(logging.FieldEventType, "transcript_ready"),
			logging.String("transcript", target),
			logging.Duration("transcribe_duration", time.Since(start)),
		)
		return target, nil
	}
	if runErr != nil {
		return "", services.Wrap(services.ErrExternalTool, "transcribe", c.command, mediaRef, runErr)
	}

	doc, err := parseDocument(stdout.String())
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "transcribe", "parse output", mediaRef, err)
	}
	if err := fileutil.WriteFileAtomic(target, []byte(doc.Markdown()), 0o644); err != nil {
		return "", services.Wrap(services.ErrTransient, "transcribe", "write transcript", target, err)
	}
	logger.Info("transcript rendered from tool output",
		logging.String(logging.FieldEventType, "transcript_ready"),
		logging.String("transcript", target),
		logging.Int("segments", len(doc.Segments)),
		logging.Duration("transcribe_duration", time.Since(start)),
	)
	return target, nil
}

type transcriptStat struct {
	exists  bool
	modTime time.Time
	size    int64
}

func statTranscript(path string) transcriptStat {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return transcriptStat{}
	}
	return transcriptStat{exists: true, modTime: info.ModTime(), size: info.Size()}
}

// replacedBy reports whether now is a transcript written after s was taken.
func (s transcriptStat) replacedBy(now transcriptStat) bool {
	if !now.exists {
		return false
	}
	return !s.exists || !now.modTime.Equal(s.modTime) || now.size != s.size
}

// HealthCheck reports whether the transcriber command is on PATH.
func (c *Client) HealthCheck(context.Context) stage.Health {
	if _, err := exec.LookPath(c.command); err != nil {
		return stage.Unhealthy("transcribe", fmt.Sprintf("%s not found on PATH", c.command))
	}
	return stage.Healthy("transcribe")
}

// Command returns the configured binary.
func (c *Client) Command() string { return c.command }

func (c *Client) expandArgs(input, output string) []string {
	args := make([]string, 0, len(c.args)+1)
	sawInput := false
	for _, arg := range c.args {
		if strings.Contains(arg, inputPlaceholder) {
			sawInput = true
		}
		arg = strings.ReplaceAll(arg, inputPlaceholder, input)
		arg = strings.ReplaceAll(arg, outputPlaceholder, output)
		args = append(args, arg)
	}
	if !sawInput {
		args = append(args, input)
	}
	return args
}
