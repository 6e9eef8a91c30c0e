package config

const (
	defaultConfigPath            = "~/.config/graphmem/config.toml"
	defaultDataDir               = "~/.local/share/graphmem"
	defaultDownloadDir           = "~/.local/share/graphmem/downloads"
	defaultLogDir                = "~/.local/share/graphmem/logs"
	defaultEpisodesDir           = "~/.local/share/graphmem/episodes"
	defaultStoreDriver           = StoreDriverSQLite
	defaultDownloadConcurrency   = 2
	defaultTranscribeConcurrency = 1
	defaultIngestConcurrency     = 2
	defaultYTDLPBinary           = "yt-dlp"
	defaultDownloadFormat        = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"
	defaultDownloadTimeout       = 3600
	defaultTranscribeCommand     = "bunx"
	defaultTranscriptSuffix      = "_transcription.md"
	defaultTranscribeTimeout     = 7200
	defaultIngestSink            = IngestSinkFile
	defaultIngestGroupID         = "graphmem"
	defaultChunkSize             = 1000
	defaultIngestTimeout         = 60
	defaultMinDurationSeconds    = 60
	defaultSkipTitlePrefix       = "short"
	defaultWatchSchedule         = "*/15 * * * *"
	defaultNtfyTimeout           = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Store drivers.
const (
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
)

// Ingest sinks.
const (
	IngestSinkHTTP = "http"
	IngestSinkFile = "file"
)

var defaultStageOrder = []string{"download", "transcribe", "ingest"}

var defaultTranscribeArgs = []string{"offmute-advanced", "{input}", "-t", "budget", "-sc", "0"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			DownloadDir: defaultDownloadDir,
			LogDir:      defaultLogDir,
		},
		Store: Store{
			Driver: defaultStoreDriver,
		},
		Stages: Stages{
			Order:                 append([]string(nil), defaultStageOrder...),
			DownloadConcurrency:   defaultDownloadConcurrency,
			TranscribeConcurrency: defaultTranscribeConcurrency,
			IngestConcurrency:     defaultIngestConcurrency,
		},
		Download: Download{
			Binary:         defaultYTDLPBinary,
			Format:         defaultDownloadFormat,
			TimeoutSeconds: defaultDownloadTimeout,
		},
		Transcribe: Transcribe{
			Command:        defaultTranscribeCommand,
			Args:           append([]string(nil), defaultTranscribeArgs...),
			OutputSuffix:   defaultTranscriptSuffix,
			ReuseExisting:  true,
			TimeoutSeconds: defaultTranscribeTimeout,
		},
		Ingest: Ingest{
			Sink:           defaultIngestSink,
			GroupID:        defaultIngestGroupID,
			OutputDir:      defaultEpisodesDir,
			ChunkSize:      defaultChunkSize,
			TimeoutSeconds: defaultIngestTimeout,
		},
		Intake: Intake{
			MinDurationSeconds: defaultMinDurationSeconds,
			SkipTitlePrefix:    defaultSkipTitlePrefix,
		},
		Workflow: Workflow{
			WatchSchedule: defaultWatchSchedule,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
