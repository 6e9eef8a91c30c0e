package graphingest_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"graphmem/internal/graphingest"
	"graphmem/internal/services"
)

func sampleBatch(n int) graphingest.Batch {
	batch := graphingest.Batch{GroupID: "graphmem", VideoID: "dQw4w9WgXcQ"}
	for i := range n {
		batch.Episodes = append(batch.Episodes, graphingest.Episode{
			UUID:              "uuid-" + string(rune('a'+i%26)),
			Name:              "Transcript_dQw4w9WgXcQ_Chunk_" + string(rune('0'+i%10)),
			Content:           "chunk content long enough",
			RoleType:          "user",
			Role:              "transcript",
			Timestamp:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			SourceDescription: "test",
		})
	}
	return batch
}

type recordedRequest struct {
	Path    string
	Auth    string
	GroupID string
	Count   int
}

func TestHTTPSinkPostsMessagesInGroups(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []recordedRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			GroupID  string            `json:"group_id"`
			Messages []json.RawMessage `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		mu.Lock()
		requests = append(requests, recordedRequest{
			Path:    r.URL.Path,
			Auth:    r.Header.Get("Authorization"),
			GroupID: payload.GroupID,
			Count:   len(payload.Messages),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sink, err := graphingest.NewHTTPSink(server.URL+"/", "secret", time.Second)
	if err != nil {
		t.Fatalf("NewHTTPSink: %v", err)
	}
	ref, err := sink.Send(context.Background(), sampleBatch(30))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ref != server.URL+"#graphmem/dQw4w9WgXcQ" {
		t.Fatalf("unexpected ref %q", ref)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(requests) != 2 || requests[0].Count != 25 || requests[1].Count != 5 {
		t.Fatalf("unexpected request grouping: %+v", requests)
	}
	for _, req := range requests {
		if req.Path != "/messages" || req.Auth != "Bearer secret" || req.GroupID != "graphmem" {
			t.Fatalf("unexpected request: %+v", req)
		}
	}
}

func TestHTTPSinkMessageShape(t *testing.T) {
	var (
		mu      sync.Mutex
		message map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Messages []map[string]any `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		mu.Lock()
		message = payload.Messages[0]
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sink, _ := graphingest.NewHTTPSink(server.URL, "", time.Second)
	if _, err := sink.Send(context.Background(), sampleBatch(1)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	for _, key := range []string{"uuid", "name", "content", "role_type", "role", "timestamp", "source_description"} {
		if _, ok := message[key]; !ok {
			t.Fatalf("message missing %q: %v", key, message)
		}
	}
	if message["timestamp"] != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected timestamp %v", message["timestamp"])
	}
}

func TestHTTPSinkRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "0")
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sink, _ := graphingest.NewHTTPSink(server.URL, "", time.Second, graphingest.WithRetry(3, 0, time.Millisecond))
	if _, err := sink.Send(context.Background(), sampleBatch(1)); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestHTTPSinkClassifiesFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		marker    error
		wantCalls int32
	}{
		{"rejected", http.StatusUnprocessableEntity, services.ErrExternalTool, 1},
		{"unauthorized", http.StatusUnauthorized, services.ErrExternalTool, 1},
		{"server error", http.StatusInternalServerError, services.ErrTransient, 2},
		{"throttled", http.StatusTooManyRequests, services.ErrTransient, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				http.Error(w, "group_id invalid", tt.status)
			}))
			defer server.Close()

			sink, _ := graphingest.NewHTTPSink(server.URL, "", time.Second, graphingest.WithRetry(2, 0, time.Millisecond))
			_, err := sink.Send(context.Background(), sampleBatch(1))
			if !errors.Is(err, tt.marker) {
				t.Fatalf("expected %v, got %v", tt.marker, err)
			}
			if !strings.Contains(err.Error(), "group_id invalid") {
				t.Fatalf("expected response body in error, got %v", err)
			}
			if calls.Load() != tt.wantCalls {
				t.Fatalf("expected %d calls, got %d", tt.wantCalls, calls.Load())
			}
		})
	}
}

func TestHTTPSinkUnreachableIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	sink, _ := graphingest.NewHTTPSink(url, "", time.Second, graphingest.WithRetry(1, 0, time.Millisecond))
	if _, err := sink.Send(context.Background(), sampleBatch(1)); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if health := sink.HealthCheck(context.Background()); health.Ready {
		t.Fatal("expected unreachable endpoint to be unhealthy")
	}
}

func TestHTTPSinkHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthcheck" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer server.Close()

	sink, _ := graphingest.NewHTTPSink(server.URL, "", time.Second)
	if health := sink.HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected healthy sink, got %+v", health)
	}
	if _, err := graphingest.NewHTTPSink("  ", "", time.Second); err == nil {
		t.Fatal("expected error without endpoint")
	}
}

func TestFileSinkWritesJSONLines(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "episodes")
	sink, err := graphingest.NewFileSink(dir)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	if health := sink.HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected healthy file sink, got %+v", health)
	}

	ref, err := sink.Send(context.Background(), sampleBatch(3))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ref != filepath.Join(dir, "dQw4w9WgXcQ.jsonl") {
		t.Fatalf("unexpected ref %q", ref)
	}

	f, err := os.Open(ref)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		var line map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("line %d is not JSON: %v", lines, err)
		}
		if line["group_id"] != "graphmem" || line["content"] != "chunk content long enough" {
			t.Fatalf("unexpected line: %v", line)
		}
		lines++
	}
	if lines != 3 {
		t.Fatalf("expected 3 lines, got %d", lines)
	}

	if _, err := sink.Send(context.Background(), sampleBatch(1)); err != nil {
		t.Fatalf("second Send: %v", err)
	}
	data, _ := os.ReadFile(ref)
	if strings.Count(string(data), "\n") != 1 {
		t.Fatal("expected re-ingest to replace the file")
	}
}
