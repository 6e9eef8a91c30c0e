package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"graphmem/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.DownloadDir = filepath.Join(base, "downloads")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Ingest.Sink = config.IngestSinkFile
	cfgVal.Ingest.OutputDir = filepath.Join(base, "episodes")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithConcurrency sets the same in-flight limit on every stage.
func WithConcurrency(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Stages.DownloadConcurrency = n
		b.cfg.Stages.TranscribeConcurrency = n
		b.cfg.Stages.IngestConcurrency = n
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default graphmem external
// binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{b.cfg.Download.Binary, b.cfg.Transcribe.Command}
		}
		for _, name := range names {
			writeStub(b.t, b.baseDir, name, "#!/bin/sh\nexit 0\n")
		}
	}
}

// WithStubScript installs a named shell script on PATH.
func WithStubScript(name, script string) ConfigOption {
	return func(b *configBuilder) {
		writeStub(b.t, b.baseDir, name, script)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

var pathPrepended = map[string]bool{}

func writeStub(t testing.TB, baseDir, name, script string) {
	t.Helper()
	binDir := filepath.Join(baseDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(binDir, name)
	if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	if pathPrepended[binDir] {
		return
	}
	pathPrepended[binDir] = true

	oldPath := os.Getenv("PATH")
	if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
		t.Fatalf("set PATH: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
		delete(pathPrepended, binDir)
	})
}
