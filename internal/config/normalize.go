package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStore()
	c.normalizeStages()
	if err := c.normalizeDownload(); err != nil {
		return err
	}
	c.normalizeTranscribe()
	if err := c.normalizeIngest(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.Workflow.WatchSchedule = strings.TrimSpace(c.Workflow.WatchSchedule)
	if c.Workflow.WatchSchedule == "" {
		c.Workflow.WatchSchedule = defaultWatchSchedule
	}
	c.Intake.SkipTitlePrefix = strings.ToLower(strings.TrimSpace(c.Intake.SkipTitlePrefix))
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNtfyTimeout
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DownloadDir) == "" {
		c.Paths.DownloadDir = defaultDownloadDir
	}
	if c.Paths.DownloadDir, err = expandPath(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeStore() {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = defaultStoreDriver
	}
	if value, ok := os.LookupEnv("GRAPHMEM_POSTGRES_DSN"); ok && strings.TrimSpace(value) != "" {
		c.Store.DSN = strings.TrimSpace(value)
	}
	c.Store.DSN = strings.TrimSpace(c.Store.DSN)
}

func (c *Config) normalizeStages() {
	order := make([]string, 0, len(c.Stages.Order))
	for _, name := range c.Stages.Order {
		if trimmed := strings.ToLower(strings.TrimSpace(name)); trimmed != "" {
			order = append(order, trimmed)
		}
	}
	if len(order) == 0 {
		order = append(order, defaultStageOrder...)
	}
	c.Stages.Order = order
}

func (c *Config) normalizeDownload() error {
	c.Download.Binary = strings.TrimSpace(c.Download.Binary)
	if c.Download.Binary == "" {
		c.Download.Binary = defaultYTDLPBinary
	}
	c.Download.Format = strings.TrimSpace(c.Download.Format)
	if c.Download.Format == "" {
		c.Download.Format = defaultDownloadFormat
	}
	if strings.TrimSpace(c.Download.CookiesFile) != "" {
		var err error
		if c.Download.CookiesFile, err = expandPath(c.Download.CookiesFile); err != nil {
			return fmt.Errorf("download.cookies_file: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeTranscribe() {
	c.Transcribe.Command = strings.TrimSpace(c.Transcribe.Command)
	if c.Transcribe.Command == "" {
		c.Transcribe.Command = defaultTranscribeCommand
		if len(c.Transcribe.Args) == 0 {
			c.Transcribe.Args = append([]string(nil), defaultTranscribeArgs...)
		}
	}
	c.Transcribe.OutputSuffix = strings.TrimSpace(c.Transcribe.OutputSuffix)
	if c.Transcribe.OutputSuffix == "" {
		c.Transcribe.OutputSuffix = defaultTranscriptSuffix
	}
}

func (c *Config) normalizeIngest() error {
	c.Ingest.Sink = strings.ToLower(strings.TrimSpace(c.Ingest.Sink))
	if c.Ingest.Sink == "" {
		c.Ingest.Sink = defaultIngestSink
	}
	c.Ingest.Endpoint = strings.TrimRight(strings.TrimSpace(c.Ingest.Endpoint), "/")
	if value, ok := os.LookupEnv("GRAPHMEM_INGEST_API_KEY"); ok && strings.TrimSpace(value) != "" {
		c.Ingest.APIKey = strings.TrimSpace(value)
	}
	c.Ingest.APIKey = strings.TrimSpace(c.Ingest.APIKey)
	c.Ingest.GroupID = strings.TrimSpace(c.Ingest.GroupID)
	if c.Ingest.GroupID == "" {
		c.Ingest.GroupID = defaultIngestGroupID
	}
	if strings.TrimSpace(c.Ingest.OutputDir) == "" {
		c.Ingest.OutputDir = defaultEpisodesDir
	}
	var err error
	if c.Ingest.OutputDir, err = expandPath(c.Ingest.OutputDir); err != nil {
		return fmt.Errorf("ingest.output_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
