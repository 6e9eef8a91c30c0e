package queue_test

import (
	"testing"

	"graphmem/internal/queue"
)

func TestTransitionTableOrder(t *testing.T) {
	rows := queue.Table()
	want := []queue.Transition{
		{Stage: queue.Download, Eligible: queue.StatusTodo, InProgress: queue.StatusDownloading, Success: queue.StatusDownloaded, Failure: queue.StatusDownloadFailed},
		{Stage: queue.Transcribe, Eligible: queue.StatusDownloaded, InProgress: queue.StatusTranscribing, Success: queue.StatusTranscribed, Failure: queue.StatusTranscribeFailed},
		{Stage: queue.Ingest, Eligible: queue.StatusTranscribed, InProgress: queue.StatusIngesting, Success: queue.StatusDone, Failure: queue.StatusIngestFailed},
	}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(rows))
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Fatalf("row %d = %+v, want %+v", i, rows[i], want[i])
		}
	}
	if queue.Initial != queue.StatusTodo {
		t.Fatalf("unexpected initial status %s", queue.Initial)
	}
}

func TestParseStage(t *testing.T) {
	for _, input := range []string{"download", " Transcribe ", "INGEST"} {
		if _, err := queue.ParseStage(input); err != nil {
			t.Fatalf("ParseStage(%q): %v", input, err)
		}
	}
	for _, input := range []string{"", "encode", "downloading"} {
		if _, err := queue.ParseStage(input); err == nil {
			t.Fatalf("expected ParseStage(%q) to fail", input)
		}
	}
}

func TestStatusClassification(t *testing.T) {
	for _, status := range queue.AllStatuses() {
		if _, ok := queue.ParseStatus(string(status)); !ok {
			t.Fatalf("ParseStatus(%s) failed", status)
		}
		if status.IsFailure() && status.IsInProgress() {
			t.Fatalf("%s cannot be both failed and in progress", status)
		}
	}
	if stage, ok := queue.FailedStage(queue.StatusTranscribeFailed); !ok || stage != queue.Transcribe {
		t.Fatalf("FailedStage(transcribe_failed) = %s, %v", stage, ok)
	}
	if stage, ok := queue.InProgressStage(queue.StatusIngesting); !ok || stage != queue.Ingest {
		t.Fatalf("InProgressStage(ingesting) = %s, %v", stage, ok)
	}
	if queue.StatusDone.IsFailure() || queue.StatusDone.IsInProgress() {
		t.Fatal("done is neither failed nor in progress")
	}
}

func TestAllowedEdges(t *testing.T) {
	tests := []struct {
		from, to queue.Status
		want     bool
	}{
		{queue.StatusTodo, queue.StatusDownloading, true},
		{queue.StatusDownloading, queue.StatusDownloaded, true},
		{queue.StatusDownloading, queue.StatusDownloadFailed, true},
		{queue.StatusDownloaded, queue.StatusTranscribing, true},
		{queue.StatusIngesting, queue.StatusDone, true},
		{queue.StatusTranscribeFailed, queue.StatusDownloaded, true},
		{queue.StatusIngestFailed, queue.StatusTodo, true},
		{queue.StatusTodo, queue.StatusDownloaded, false},
		{queue.StatusDownloaded, queue.StatusTranscribeFailed, false},
		{queue.StatusDone, queue.StatusTodo, false},
		{queue.StatusTranscribeFailed, queue.StatusTranscribed, false},
	}
	for _, tt := range tests {
		if got := queue.Allowed(tt.from, tt.to); got != tt.want {
			t.Fatalf("Allowed(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
