package ytdlp_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"graphmem/internal/config"
	"graphmem/internal/queue"
	"graphmem/internal/services"
	"graphmem/internal/testsupport"
	"graphmem/internal/ytdlp"
)

type fakeExecutor struct {
	lines  []string
	err    error
	before func()
	binary string
	args   []string
}

func (f *fakeExecutor) Run(_ context.Context, binary string, args []string, onStdout func(string)) error {
	f.binary = binary
	f.args = append([]string(nil), args...)
	if f.before != nil {
		f.before()
	}
	for _, line := range f.lines {
		onStdout(line)
	}
	return f.err
}

func newClient(t *testing.T, exec *fakeExecutor, mutate ...func(*config.Download)) (*ytdlp.Client, string) {
	t.Helper()
	cfg := config.Default().Download
	for _, fn := range mutate {
		fn(&cfg)
	}
	dir := t.TempDir()
	client, err := ytdlp.New(cfg, dir, ytdlp.WithExecutor(exec))
	if err != nil {
		t.Fatalf("ytdlp.New: %v", err)
	}
	return client, dir
}

func TestNewRequiresBinaryAndDirectory(t *testing.T) {
	if _, err := ytdlp.New(config.Download{}, t.TempDir()); err == nil {
		t.Fatal("expected error without binary")
	}
	if _, err := ytdlp.New(config.Download{Binary: "yt-dlp"}, " "); err == nil {
		t.Fatal("expected error without output dir")
	}
}

func TestListChannelParsesJSONLines(t *testing.T) {
	exec := &fakeExecutor{lines: []string{
		`{"id":"aaaaaaaaaaa","title":"Episode 1","duration":1800,"url":"https://www.youtube.com/watch?v=aaaaaaaaaaa"}`,
		`not json`,
		``,
		`{"title":"missing id"}`,
		`{"id":"bbbbbbbbbbb","title":"Shorts: quick tip","duration":30}`,
	}}
	client, _ := newClient(t, exec, func(d *config.Download) { d.CookiesFile = "/tmp/cookies.txt" })

	entries, err := client.ListChannel(context.Background(), "https://www.youtube.com/@example", 5)
	if err != nil {
		t.Fatalf("ListChannel: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", entries)
	}
	if entries[0].ID != "aaaaaaaaaaa" || entries[0].Duration != 1800 {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if got := entries[1].WatchURL(); got != "https://www.youtube.com/watch?v=bbbbbbbbbbb" {
		t.Fatalf("unexpected watch url %q", got)
	}

	want := []string{"--flat-playlist", "--skip-download", "--dump-json", "--playlist-end", "5", "--cookies", "/tmp/cookies.txt", "https://www.youtube.com/@example"}
	if !slices.Equal(exec.args, want) {
		t.Fatalf("unexpected args:\n got %v\nwant %v", exec.args, want)
	}
	if exec.binary != "yt-dlp" {
		t.Fatalf("unexpected binary %q", exec.binary)
	}
}

func TestListChannelWrapsToolFailure(t *testing.T) {
	client, _ := newClient(t, &fakeExecutor{err: errors.New("exit status 1: ERROR: channel not found")})
	_, err := client.ListChannel(context.Background(), "https://www.youtube.com/@missing", 0)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestFetchDownloadsURL(t *testing.T) {
	exec := &fakeExecutor{}
	client, dir := newClient(t, exec)
	final := filepath.Join(dir, "dQw4w9WgXcQ.mp4")
	exec.before = func() {
		testsupport.WriteFile(t, final, "media")
	}
	exec.lines = []string{
		"[youtube] dQw4w9WgXcQ: Downloading webpage",
		"[download] Destination: " + filepath.Join(dir, "dQw4w9WgXcQ.f137.mp4"),
		"[download]  12.5% of 10.00MiB at 1.00MiB/s ETA 00:08",
		"[download] 100% of 10.00MiB in 00:10",
		final,
	}

	got, err := client.Fetch(context.Background(), queue.Source{Kind: queue.SourceURL, Ref: "https://youtu.be/dQw4w9WgXcQ"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got != final {
		t.Fatalf("got %q want %q", got, final)
	}
	joined := strings.Join(exec.args, " ")
	for _, fragment := range []string{"--no-playlist", "-P " + dir, "-o %(id)s.%(ext)s", "--print after_move:filepath", "-f bestvideo"} {
		if !strings.Contains(joined, fragment) {
			t.Fatalf("args missing %q: %s", fragment, joined)
		}
	}
	if exec.args[len(exec.args)-1] != "https://youtu.be/dQw4w9WgXcQ" {
		t.Fatalf("URL must be the last argument: %v", exec.args)
	}
}

func TestFetchFailsWithoutReportedFile(t *testing.T) {
	client, _ := newClient(t, &fakeExecutor{lines: []string{"[download] 100% of 1MiB"}})
	_, err := client.Fetch(context.Background(), queue.Source{Kind: queue.SourceURL, Ref: "https://youtu.be/x"})
	if err == nil || !strings.Contains(err.Error(), "no output file") {
		t.Fatalf("expected missing output error, got %v", err)
	}
}

func TestFetchLocalSource(t *testing.T) {
	exec := &fakeExecutor{}
	client, _ := newClient(t, exec)
	path := filepath.Join(t.TempDir(), "lecture.mp4")
	testsupport.WriteFile(t, path, "media")

	got, err := client.Fetch(context.Background(), queue.Source{Kind: queue.SourceLocal, Ref: path})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got != path {
		t.Fatalf("got %q want %q", got, path)
	}
	if exec.binary != "" {
		t.Fatal("local sources must not invoke yt-dlp")
	}

	_, err = client.Fetch(context.Background(), queue.Source{Kind: queue.SourceLocal, Ref: filepath.Join(t.TempDir(), "gone.mp4")})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, err = client.Fetch(context.Background(), queue.Source{Kind: queue.SourceChannel, Ref: "https://www.youtube.com/@x"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for channel source, got %v", err)
	}
}

func TestFetchWithStubBinary(t *testing.T) {
	dir := t.TempDir()
	script := "#!/bin/sh\n" +
		"out=''\n" +
		"while [ $# -gt 0 ]; do\n" +
		"  if [ \"$1\" = \"-P\" ]; then out=\"$2\"; fi\n" +
		"  shift\n" +
		"done\n" +
		"echo '[download] Destination: x.mp4'\n" +
		"printf media > \"$out/abc.mp4\"\n" +
		"echo \"$out/abc.mp4\"\n"
	cfg := testsupport.NewConfig(t, testsupport.WithStubScript("yt-dlp-stub", script))
	cfg.Download.Binary = "yt-dlp-stub"

	client, err := ytdlp.New(cfg.Download, dir)
	if err != nil {
		t.Fatalf("ytdlp.New: %v", err)
	}
	if health := client.HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected stub binary to be found: %+v", health)
	}
	got, err := client.Fetch(context.Background(), queue.Source{Kind: queue.SourceURL, Ref: "https://youtu.be/abc"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got != filepath.Join(dir, "abc.mp4") {
		t.Fatalf("unexpected path %q", got)
	}
	if data, err := os.ReadFile(got); err != nil || string(data) != "media" {
		t.Fatalf("unexpected file contents %q (%v)", data, err)
	}
}

func TestHealthCheckMissingBinary(t *testing.T) {
	client, _ := newClient(t, &fakeExecutor{}, func(d *config.Download) { d.Binary = "definitely-not-installed-yt-dlp" })
	health := client.HealthCheck(context.Background())
	if health.Ready || !strings.Contains(health.Detail, "not found") {
		t.Fatalf("unexpected health: %+v", health)
	}
}
