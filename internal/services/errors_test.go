package services_test

import (
	"errors"
	"strings"
	"testing"

	"graphmem/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "download", "yt-dlp", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"download", "yt-dlp", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestKindClassification(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{services.Wrap(services.ErrTimeout, "transcribe", "run", "deadline", nil), "timeout"},
		{services.Wrap(services.ErrValidation, "ingest", "read", "empty transcript", nil), "validation"},
		{services.Wrap(nil, "ingest", "post", "503", nil), "transient"},
		{errors.New("plain"), "transient"},
	}
	for _, tt := range tests {
		if got := services.Kind(tt.err); got != tt.want {
			t.Fatalf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestFailureMessageFlattensWhitespace(t *testing.T) {
	err := errors.New("line one\n  line two\tend")
	if got := services.FailureMessage(err); got != "line one line two end" {
		t.Fatalf("unexpected message %q", got)
	}
	long := errors.New(strings.Repeat("x", 5000))
	if got := services.FailureMessage(long); len(got) != 2000 || !strings.HasSuffix(got, "...") {
		t.Fatalf("expected truncated message, got len %d", len(got))
	}
}
