package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"graphmem/internal/config"
	"graphmem/internal/testsupport"
)

const transcriberStub = `#!/bin/sh
cat <<'JSON'
{"summary": "A keynote about durable pipelines and graph memory.", "topics": ["pipelines"], "segments": [{"start": 0, "end": 4, "text": "Welcome to the keynote on graph memory systems."}]}
JSON
`

const failingTranscriberStub = `#!/bin/sh
echo "model quota exhausted" >&2
exit 3
`

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, transcriber string) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t,
		testsupport.WithStubbedBinaries("yt-dlp"),
		testsupport.WithStubScript("transcribe-stub", transcriber),
	)
	base := testsupport.BaseDir(cfg)
	home := filepath.Join(base, "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", home)

	cfg.Transcribe.Command = "transcribe-stub"
	cfg.Transcribe.Args = []string{"{input}"}
	cfg.Logging.Level = "error"

	configPath := filepath.Join(base, "graphmem.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

// addMedia writes a fake media file and returns its path.
func (e *cliTestEnv) addMedia(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(e.baseDir, "media", name)
	testsupport.WriteFile(t, path, "not really a video")
	return path
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{}
	if env != nil {
		flags = append(flags, "--config", env.configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
