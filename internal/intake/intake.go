package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"graphmem/internal/config"
	"graphmem/internal/logging"
	"graphmem/internal/queue"
	"graphmem/internal/ytdlp"
)

// ChannelLister expands a channel into its videos.
type ChannelLister interface {
	ListChannel(ctx context.Context, channelURL string, limit int) ([]ytdlp.Entry, error)
}

// Registered describes one job touched by an intake.
type Registered struct {
	ID      string       `json:"id"`
	Title   string       `json:"title,omitempty"`
	Source  queue.Source `json:"source"`
	Created bool         `json:"created"`
}

// Skipped describes a channel entry filtered out as a short.
type Skipped struct {
	ID     string `json:"id"`
	Title  string `json:"title,omitempty"`
	Reason string `json:"reason"`
}

// Result is the outcome of one intake call.
type Result struct {
	Jobs    []Registered `json:"jobs"`
	Skipped []Skipped    `json:"skipped,omitempty"`
}

// IDs lists the job ids in registration order.
func (r Result) IDs() []string {
	ids := make([]string, 0, len(r.Jobs))
	for _, job := range r.Jobs {
		ids = append(ids, job.ID)
	}
	return ids
}

// Created counts jobs that did not exist before.
func (r Result) Created() int {
	n := 0
	for _, job := range r.Jobs {
		if job.Created {
			n++
		}
	}
	return n
}

// Service registers sources as jobs.
type Service struct {
	store       queue.JobStore
	lister      ChannelLister
	minDuration float64
	skipPrefix  string
	logger      *slog.Logger
}

// New constructs an intake service. lister may be nil when channel sources
// are not expected.
func New(store queue.JobStore, lister ChannelLister, cfg config.Intake, logger *slog.Logger) *Service {
	return &Service{
		store:       store,
		lister:      lister,
		minDuration: float64(cfg.MinDurationSeconds),
		skipPrefix:  strings.ToLower(strings.TrimSpace(cfg.SkipTitlePrefix)),
		logger:      logging.NewComponentLogger(logger, "intake"),
	}
}

// Intake registers every source. A positive limit caps how many videos are
// taken from each channel; URL and path sources are always registered.
func (s *Service) Intake(ctx context.Context, sources []queue.Source, limit int) (Result, error) {
	if s.store == nil {
		return Result{}, errors.New("intake: job store is required")
	}
	var result Result
	for _, src := range sources {
		src.Ref = strings.TrimSpace(src.Ref)
		if err := src.Validate(); err != nil {
			return result, fmt.Errorf("intake: %w", err)
		}
		switch src.Kind {
		case queue.SourceChannel:
			if err := s.intakeChannel(ctx, src.Ref, limit, &result); err != nil {
				return result, err
			}
		case queue.SourceURL:
			src.Ref = CanonicalURL(src.Ref)
			reg, err := s.register(ctx, queue.NewJob{ID: URLJobID(src.Ref), Source: src})
			if err != nil {
				return result, err
			}
			result.Jobs = append(result.Jobs, reg)
		case queue.SourceLocal:
			abs, err := filepath.Abs(src.Ref)
			if err != nil {
				return result, fmt.Errorf("intake: resolve %s: %w", src.Ref, err)
			}
			reg, err := s.register(ctx, queue.NewJob{
				ID:     LocalJobID(abs),
				Title:  filepath.Base(abs),
				Source: queue.Source{Kind: queue.SourceLocal, Ref: abs},
			})
			if err != nil {
				return result, err
			}
			result.Jobs = append(result.Jobs, reg)
		}
	}
	s.logger.Info("intake finished",
		logging.String(logging.FieldEventType, "intake_complete"),
		logging.Int("jobs", len(result.Jobs)),
		logging.Int("created", result.Created()),
		logging.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

func (s *Service) intakeChannel(ctx context.Context, channelURL string, limit int, result *Result) error {
	if s.lister == nil {
		return errors.New("intake: channel sources need a channel lister")
	}
	entries, err := s.lister.ListChannel(ctx, channelURL, limit)
	if err != nil {
		return fmt.Errorf("intake: %w", err)
	}
	taken := 0
	for _, entry := range entries {
		if limit > 0 && taken >= limit {
			break
		}
		if reason, skip := s.isShort(entry); skip {
			result.Skipped = append(result.Skipped, Skipped{ID: entry.ID, Title: entry.Title, Reason: reason})
			s.logger.Debug("skipping short video", logging.String("video_id", entry.ID), logging.String("reason", reason))
			continue
		}
		title := strings.TrimSpace(entry.Title)
		if title == "" {
			title = "Video " + entry.ID
		}
		reg, err := s.register(ctx, queue.NewJob{
			ID:     entry.ID,
			Title:  title,
			Source: queue.Source{Kind: queue.SourceURL, Ref: entry.WatchURL()},
			Origin: channelURL,
		})
		if err != nil {
			return err
		}
		result.Jobs = append(result.Jobs, reg)
		taken++
	}
	return nil
}

func (s *Service) isShort(entry ytdlp.Entry) (string, bool) {
	if s.skipPrefix != "" && strings.HasPrefix(strings.ToLower(strings.TrimSpace(entry.Title)), s.skipPrefix) {
		return "title prefix", true
	}
	if s.minDuration > 0 && entry.Duration > 0 && entry.Duration < s.minDuration {
		return "duration", true
	}
	return "", false
}

func (s *Service) register(ctx context.Context, job queue.NewJob) (Registered, error) {
	id, created, err := s.store.PutIfAbsent(ctx, job)
	if err != nil {
		return Registered{}, fmt.Errorf("intake: register %s: %w", job.Source, err)
	}
	return Registered{ID: id, Title: job.Title, Source: job.Source, Created: created}, nil
}
