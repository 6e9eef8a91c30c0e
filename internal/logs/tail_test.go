package logs_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"graphmem/internal/logs"
)

const sampleLog = `{"ts":"2026-03-01T10:00:00Z","level":"info","msg":"run started","component":"workflow","run_id":"r1"}
{"ts":"2026-03-01T10:00:01Z","level":"info","msg":"stage started","job_id":"abc","stage":"download","run_id":"r1"}
{"ts":"2026-03-01T10:00:02Z","level":"error","msg":"stage failed","job_id":"abc","stage":"transcribe","run_id":"r1","error":"exit status 3"}
{"ts":"2026-03-01T10:00:03Z","level":"info","msg":"stage started","job_id":"def","stage":"download","run_id":"r2"}
`

func writeLog(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graphmem.log")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestLastReturnsNewestMatches(t *testing.T) {
	path := writeLog(t, sampleLog)

	entries, offset, err := logs.Last(path, logs.Filter{}, 2)
	if err != nil {
		t.Fatalf("Last returned error: %v", err)
	}
	if len(entries) != 2 || entries[0].Message != "stage failed" || entries[1].JobID != "def" {
		t.Fatalf("unexpected entries: %#v", entries)
	}
	if offset != int64(len(sampleLog)) {
		t.Fatalf("expected offset at end of file, got %d", offset)
	}
}

func TestLastAppliesFilter(t *testing.T) {
	path := writeLog(t, sampleLog)

	tests := []struct {
		name   string
		filter logs.Filter
		want   int
	}{
		{"job", logs.Filter{JobID: "abc"}, 2},
		{"run", logs.Filter{RunID: "r1"}, 3},
		{"stage", logs.Filter{Stage: "DOWNLOAD"}, 2},
		{"level", logs.Filter{MinLevel: "warn"}, 1},
		{"combined", logs.Filter{JobID: "abc", Stage: "download"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, _, err := logs.Last(path, tt.filter, 0)
			if err != nil {
				t.Fatalf("Last returned error: %v", err)
			}
			if len(entries) != tt.want {
				t.Fatalf("expected %d entries, got %d: %#v", tt.want, len(entries), entries)
			}
		})
	}
}

func TestLastMissingFile(t *testing.T) {
	entries, offset, err := logs.Last(filepath.Join(t.TempDir(), "absent.log"), logs.Filter{}, 10)
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if len(entries) != 0 || offset != 0 {
		t.Fatalf("expected empty result, got %d entries at %d", len(entries), offset)
	}
}

func TestFollowEmitsAppendedEntries(t *testing.T) {
	path := writeLog(t, sampleLog)
	_, offset, err := logs.Last(path, logs.Filter{}, 1)
	if err != nil {
		t.Fatalf("initial Last: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var (
		mu   sync.Mutex
		seen []logs.Entry
		got  = make(chan struct{}, 1)
	)
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, offset, logs.Filter{JobID: "xyz"}, 20*time.Millisecond, func(e logs.Entry) {
			mu.Lock()
			seen = append(seen, e)
			mu.Unlock()
			select {
			case got <- struct{}{}:
			default:
			}
		})
	}()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	lines := `{"level":"info","msg":"other job","job_id":"nope"}` + "\n" +
		`{"level":"info","msg":"later","job_id":"xyz"}` + "\n"
	if _, err := f.WriteString(lines); err != nil {
		t.Fatalf("append log: %v", err)
	}
	_ = f.Close()

	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not emit appended entry")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0].Message != "later" {
		t.Fatalf("unexpected followed entries: %#v", seen)
	}
}
