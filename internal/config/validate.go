package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateStages(); err != nil {
		return err
	}
	if err := c.validateCollaborators(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if topic := c.Notifications.NtfyTopic; topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be a full http(s) topic URL, got %q", topic)
	}
	return c.validateLogging()
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case StoreDriverSQLite:
		return nil
	case StoreDriverPostgres:
		if c.Store.DSN == "" {
			return errors.New("store.dsn must be set when store.driver is postgres (or set GRAPHMEM_POSTGRES_DSN)")
		}
		return nil
	default:
		return fmt.Errorf("store.driver: unsupported value %q (expected sqlite or postgres)", c.Store.Driver)
	}
}

func (c *Config) validateStages() error {
	if len(c.Stages.Order) == 0 {
		return errors.New("stages.order must name at least one stage")
	}
	// Stages may be omitted but never reordered: each one must come after
	// the previous in download, transcribe, ingest order.
	last := -1
	for _, name := range c.Stages.Order {
		pos := stageIndex(name)
		if pos < 0 {
			return fmt.Errorf("stages.order: unknown stage %q (expected %s)", name, strings.Join(defaultStageOrder, ", "))
		}
		if pos == last {
			return fmt.Errorf("stages.order: stage %q listed twice", name)
		}
		if pos < last {
			return fmt.Errorf("stages.order: stage %q is out of pipeline order (expected %s)", name, strings.Join(defaultStageOrder, " -> "))
		}
		last = pos
	}
	return ensurePositive(
		positiveField{"stages.download_concurrency", c.Stages.DownloadConcurrency},
		positiveField{"stages.transcribe_concurrency", c.Stages.TranscribeConcurrency},
		positiveField{"stages.ingest_concurrency", c.Stages.IngestConcurrency},
	)
}

func (c *Config) validateCollaborators() error {
	if err := ensurePositive(
		positiveField{"download.timeout_seconds", c.Download.TimeoutSeconds},
		positiveField{"transcribe.timeout_seconds", c.Transcribe.TimeoutSeconds},
		positiveField{"ingest.timeout_seconds", c.Ingest.TimeoutSeconds},
		positiveField{"ingest.chunk_size", c.Ingest.ChunkSize},
	); err != nil {
		return err
	}
	if c.Intake.MinDurationSeconds < 0 {
		return errors.New("intake.min_duration_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateIngest() error {
	switch c.Ingest.Sink {
	case IngestSinkHTTP:
		if c.Ingest.Endpoint == "" {
			return errors.New("ingest.endpoint must be set when ingest.sink is http")
		}
		if !strings.HasPrefix(c.Ingest.Endpoint, "http://") && !strings.HasPrefix(c.Ingest.Endpoint, "https://") {
			return fmt.Errorf("ingest.endpoint must be an http(s) URL, got %q", c.Ingest.Endpoint)
		}
	case IngestSinkFile:
		if c.Ingest.OutputDir == "" {
			return errors.New("ingest.output_dir must be set when ingest.sink is file")
		}
	default:
		return fmt.Errorf("ingest.sink: unsupported value %q (expected http or file)", c.Ingest.Sink)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if _, err := cron.ParseStandard(c.Workflow.WatchSchedule); err != nil {
		return fmt.Errorf("workflow.watch_schedule: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func stageIndex(name string) int {
	return slices.Index(defaultStageOrder, name)
}

type positiveField struct {
	key   string
	value int
}

// ensurePositive reports the first non-positive field in argument order.
func ensurePositive(fields ...positiveField) error {
	for _, f := range fields {
		if f.value <= 0 {
			return fmt.Errorf("%s must be positive", f.key)
		}
	}
	return nil
}
