package graphingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"graphmem/internal/config"
	"graphmem/internal/logging"
	"graphmem/internal/services"
	"graphmem/internal/stage"
)

// Option configures the ingester.
type Option func(*Ingester)

// WithSink replaces the sink chosen from configuration.
func WithSink(sink Sink) Option {
	return func(i *Ingester) {
		if sink != nil {
			i.sink = sink
		}
	}
}

// WithLogger sets the ingester logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Ingester) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithTranscriptSuffix sets the transcript file suffix stripped to recover
// the video id.
func WithTranscriptSuffix(suffix string) Option {
	return func(i *Ingester) {
		i.suffix = strings.TrimSpace(suffix)
	}
}

// WithClock overrides the episode timestamp source.
func WithClock(now func() time.Time) Option {
	return func(i *Ingester) {
		if now != nil {
			i.now = now
		}
	}
}

// Ingester is the knowledge-graph Ingester collaborator.
type Ingester struct {
	sink      Sink
	groupID   string
	chunkSize int
	suffix    string
	now       func() time.Time
	logger    *slog.Logger
}

// New builds an ingester whose sink is selected by cfg.Sink.
func New(cfg config.Ingest, opts ...Option) (*Ingester, error) {
	ing := &Ingester{
		groupID:   strings.TrimSpace(cfg.GroupID),
		chunkSize: cfg.ChunkSize,
		suffix:    "_transcription.md",
		now:       time.Now,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(ing)
	}
	if ing.sink == nil {
		sink, err := sinkFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		ing.sink = sink
	}
	if ing.groupID == "" {
		ing.groupID = "graphmem"
	}
	if ing.chunkSize <= 0 {
		ing.chunkSize = DefaultChunkSize
	}
	ing.logger = logging.NewComponentLogger(ing.logger, "graphingest")
	return ing, nil
}

func sinkFromConfig(cfg config.Ingest) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Sink)) {
	case config.IngestSinkHTTP:
		return NewHTTPSink(cfg.Endpoint, cfg.APIKey, time.Duration(cfg.TimeoutSeconds)*time.Second)
	case config.IngestSinkFile, "":
		return NewFileSink(cfg.OutputDir)
	default:
		return nil, fmt.Errorf("unknown ingest sink %q", cfg.Sink)
	}
}

// Ingest satisfies stage.Ingester: it reads the transcript, builds episodes
// and hands them to the sink, returning the sink's reference.
func (i *Ingester) Ingest(ctx context.Context, transcriptRef string) (string, error) {
	logger := logging.WithContext(ctx, i.logger)
	data, err := os.ReadFile(transcriptRef)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", services.Wrap(services.ErrNotFound, "ingest", "read transcript", transcriptRef, nil)
		}
		return "", services.Wrap(services.ErrValidation, "ingest", "read transcript", transcriptRef, err)
	}
	content := strings.ToValidUTF8(string(data), "\uFFFD")
	if strings.TrimSpace(content) == "" {
		return "", services.Wrap(services.ErrValidation, "ingest", "read transcript", "transcript is empty", nil)
	}

	videoID := VideoIDFromTranscript(transcriptRef, i.suffix)
	batch := BuildBatch(i.groupID, videoID, content, i.chunkSize, i.now())
	if len(batch.Episodes) == 0 {
		return "", services.Wrap(services.ErrValidation, "ingest", "build episodes", "transcript produced no episodes", nil)
	}
	if batch.Skipped > 0 {
		logger.Debug("skipped short transcript chunks", logging.Int("skipped", batch.Skipped))
	}

	start := time.Now()
	ref, err := i.sink.Send(ctx, batch)
	if err != nil {
		return "", err
	}
	logger.Info("transcript ingested",
		logging.String(logging.FieldEventType, "ingest_complete"),
		logging.String("video_id", videoID),
		logging.Int("episodes", len(batch.Episodes)),
		logging.Int("chunks", batch.Chunks),
		logging.String("ingest_ref", ref),
		logging.Duration("ingest_duration", time.Since(start)),
	)
	return ref, nil
}

// HealthCheck delegates to the sink.
func (i *Ingester) HealthCheck(ctx context.Context) stage.Health {
	return i.sink.HealthCheck(ctx)
}
