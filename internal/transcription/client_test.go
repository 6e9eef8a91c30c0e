package transcription_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"graphmem/internal/config"
	"graphmem/internal/services"
	"graphmem/internal/testsupport"
	"graphmem/internal/transcription"
)

type fakeExecutor struct {
	lines  []string
	err    error
	before func(args []string)
	calls  int
	binary string
	args   []string
}

func (f *fakeExecutor) Run(_ context.Context, binary string, args []string, onStdout func(string)) error {
	f.calls++
	f.binary = binary
	f.args = append([]string(nil), args...)
	if f.before != nil {
		f.before(args)
	}
	for _, line := range f.lines {
		onStdout(line)
	}
	return f.err
}

func newClient(t *testing.T, exec *fakeExecutor, mutate ...func(*config.Transcribe)) *transcription.Client {
	t.Helper()
	cfg := config.Default().Transcribe
	for _, fn := range mutate {
		fn(&cfg)
	}
	client, err := transcription.New(cfg, transcription.WithExecutor(exec))
	if err != nil {
		t.Fatalf("transcription.New: %v", err)
	}
	return client
}

func writeMedia(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "talk.m4a")
	testsupport.WriteFile(t, path, "audio")
	return path
}

func TestNewRequiresCommandAndSuffix(t *testing.T) {
	if _, err := transcription.New(config.Transcribe{OutputSuffix: ".md"}); err == nil {
		t.Fatal("expected error without command")
	}
	if _, err := transcription.New(config.Transcribe{Command: "bunx"}); err == nil {
		t.Fatal("expected error without suffix")
	}
}

func TestTranscriptPath(t *testing.T) {
	client := newClient(t, &fakeExecutor{})
	if got := client.TranscriptPath("/media/talk.final.m4a"); got != "/media/talk.final_transcription.md" {
		t.Fatalf("unexpected transcript path %q", got)
	}
}

func TestTranscribeReusesExistingTranscript(t *testing.T) {
	media := writeMedia(t)
	exec := &fakeExecutor{}
	client := newClient(t, exec)
	existing := client.TranscriptPath(media)
	testsupport.WriteFile(t, existing, "# Full Transcription\n\nhello")

	got, err := client.Transcribe(context.Background(), media)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != existing {
		t.Fatalf("expected %q, got %q", existing, got)
	}
	if exec.calls != 0 {
		t.Fatalf("expected command not to run, ran %d times", exec.calls)
	}
}

func TestTranscribeIgnoresExistingWhenReuseDisabled(t *testing.T) {
	media := writeMedia(t)
	exec := &fakeExecutor{lines: []string{`{"transcript": "fresh text"}`}}
	client := newClient(t, exec, func(c *config.Transcribe) { c.ReuseExisting = false })
	testsupport.WriteFile(t, client.TranscriptPath(media), "stale")

	got, err := client.Transcribe(context.Background(), media)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if exec.calls != 1 {
		t.Fatalf("expected command to run once, ran %d times", exec.calls)
	}
	data, _ := os.ReadFile(got)
	if !strings.Contains(string(data), "fresh text") {
		t.Fatalf("expected regenerated transcript, got %q", data)
	}
}

func TestTranscribeFailureIsNotMaskedByStaleTranscript(t *testing.T) {
	media := writeMedia(t)
	exec := &fakeExecutor{err: errors.New("exit status 3")}
	client := newClient(t, exec, func(c *config.Transcribe) { c.ReuseExisting = false })
	stale := client.TranscriptPath(media)
	testsupport.WriteFile(t, stale, "stale")

	if _, err := client.Transcribe(context.Background(), media); err == nil {
		t.Fatal("expected command failure to be reported despite an old transcript on disk")
	}
	data, err := os.ReadFile(stale)
	if err != nil || string(data) != "stale" {
		t.Fatalf("expected old transcript left untouched, got %q (%v)", data, err)
	}
}

func TestTranscribeAcceptsToolRewrittenTranscript(t *testing.T) {
	media := writeMedia(t)
	exec := &fakeExecutor{
		err: errors.New("exit status 1"),
		before: func(args []string) {
			_ = os.WriteFile(args[len(args)-1], []byte("# Full Transcription\n\nrewritten by tool"), 0o644)
		},
	}
	client := newClient(t, exec, func(c *config.Transcribe) {
		c.ReuseExisting = false
		c.Args = []string{"{input}", "{output}"}
	})
	testsupport.WriteFile(t, client.TranscriptPath(media), "stale")

	got, err := client.Transcribe(context.Background(), media)
	if err != nil {
		t.Fatalf("expected rewritten transcript to be accepted, got %v", err)
	}
	data, _ := os.ReadFile(got)
	if !strings.Contains(string(data), "rewritten by tool") {
		t.Fatalf("unexpected transcript %q", data)
	}
}

func TestTranscribeRendersJSONOutput(t *testing.T) {
	media := writeMedia(t)
	exec := &fakeExecutor{lines: []string{
		"Processing chunk 1/2...",
		`{"segments": [`,
		`  {"start": 0, "end": 4.2, "text": " Welcome back. "},`,
		`  {"start": 3725.9, "end": 3730, "text": "Closing thoughts."},`,
		`  {"start": 3731, "end": 3732, "text": "  "}`,
		`], "summary": "A talk about graphs.", "topics": ["graphs", " "], "key_terms": ["episode"]}`,
	}}
	client := newClient(t, exec)

	got, err := client.Transcribe(context.Background(), media)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	want := []string{"offmute-advanced", media, "-t", "budget", "-sc", "0"}
	if exec.binary != "bunx" || !slices.Equal(exec.args, want) {
		t.Fatalf("unexpected invocation %s %v", exec.binary, exec.args)
	}
	data, err := os.ReadFile(got)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	body := string(data)
	for _, fragment := range []string{
		"# Audio Analysis\n\nA talk about graphs.\n",
		"## Topics\n\n- graphs\n",
		"## Key Terms\n\n- episode\n",
		"# Full Transcription\n\n[00:00:00] Welcome back.\n\n[01:02:05] Closing thoughts.\n",
	} {
		if !strings.Contains(body, fragment) {
			t.Fatalf("transcript missing %q:\n%s", fragment, body)
		}
	}
}

func TestTranscribeAcceptsToolWrittenTranscript(t *testing.T) {
	media := writeMedia(t)
	exec := &fakeExecutor{
		err: errors.New("exit status 1"),
		before: func(args []string) {
			out := args[len(args)-1]
			_ = os.WriteFile(out, []byte("# Full Transcription\n\nwritten by tool"), 0o644)
		},
	}
	client := newClient(t, exec, func(c *config.Transcribe) {
		c.Command = "whisper-cli"
		c.Args = []string{"--in", "{input}", "--out", "{output}"}
	})

	got, err := client.Transcribe(context.Background(), media)
	if err != nil {
		t.Fatalf("expected tool-written transcript to be accepted, got %v", err)
	}
	if got != client.TranscriptPath(media) {
		t.Fatalf("unexpected transcript %q", got)
	}
	if exec.args[1] != media || exec.args[3] != got {
		t.Fatalf("placeholders not expanded: %v", exec.args)
	}
}

func TestTranscribeAppendsInputWithoutPlaceholder(t *testing.T) {
	media := writeMedia(t)
	exec := &fakeExecutor{lines: []string{`{"transcript": "text"}`}}
	client := newClient(t, exec, func(c *config.Transcribe) { c.Args = []string{"--fast"} })

	if _, err := client.Transcribe(context.Background(), media); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if !slices.Equal(exec.args, []string{"--fast", media}) {
		t.Fatalf("unexpected args %v", exec.args)
	}
}

func TestTranscribeFailures(t *testing.T) {
	tests := []struct {
		name   string
		exec   *fakeExecutor
		media  func(t *testing.T) string
		marker error
	}{
		{
			name:   "missing media",
			exec:   &fakeExecutor{},
			media:  func(t *testing.T) string { return filepath.Join(t.TempDir(), "gone.m4a") },
			marker: services.ErrNotFound,
		},
		{
			name:   "command failed",
			exec:   &fakeExecutor{err: errors.New("exit status 2: quota exceeded")},
			media:  writeMedia,
			marker: services.ErrExternalTool,
		},
		{
			name:   "no document",
			exec:   &fakeExecutor{lines: []string{"done."}},
			media:  writeMedia,
			marker: services.ErrExternalTool,
		},
		{
			name:   "empty document",
			exec:   &fakeExecutor{lines: []string{`{"segments": []}`}},
			media:  writeMedia,
			marker: services.ErrExternalTool,
		},
		{
			name:   "malformed document",
			exec:   &fakeExecutor{lines: []string{`{"segments": [`}},
			media:  writeMedia,
			marker: services.ErrExternalTool,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newClient(t, tt.exec)
			media := tt.media(t)
			_, err := client.Transcribe(context.Background(), media)
			if !errors.Is(err, tt.marker) {
				t.Fatalf("expected %v, got %v", tt.marker, err)
			}
			if _, statErr := os.Stat(client.TranscriptPath(media)); statErr == nil {
				t.Fatal("no transcript should be left behind")
			}
		})
	}
}

func TestTranscribeWithStubCommand(t *testing.T) {
	script := "#!/bin/sh\n" +
		"echo 'warming up'\n" +
		"echo '{\"segments\": [{\"start\": 1, \"end\": 2, \"text\": \"from the stub\"}]}'\n"
	cfg := testsupport.NewConfig(t, testsupport.WithStubScript("transcribe-stub", script))
	cfg.Transcribe.Command = "transcribe-stub"
	cfg.Transcribe.Args = []string{"{input}"}

	client, err := transcription.New(cfg.Transcribe)
	if err != nil {
		t.Fatalf("transcription.New: %v", err)
	}
	if health := client.HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected stub command to be found: %+v", health)
	}
	media := writeMedia(t)
	got, err := client.Transcribe(context.Background(), media)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	data, _ := os.ReadFile(got)
	if !strings.Contains(string(data), "[00:00:01] from the stub") {
		t.Fatalf("unexpected transcript:\n%s", data)
	}
}

func TestHealthCheckMissingCommand(t *testing.T) {
	client := newClient(t, &fakeExecutor{}, func(c *config.Transcribe) { c.Command = "definitely-not-installed-transcriber" })
	health := client.HealthCheck(context.Background())
	if health.Ready || !strings.Contains(health.Detail, "not found") {
		t.Fatalf("unexpected health: %+v", health)
	}
}
