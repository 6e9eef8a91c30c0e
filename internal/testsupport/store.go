package testsupport

import (
	"context"
	"testing"

	"graphmem/internal/config"
	"graphmem/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// AddLocalJob registers a local-path job with the given id.
func AddLocalJob(t testing.TB, store queue.JobStore, id, path string) string {
	t.Helper()

	got, _, err := store.PutIfAbsent(context.Background(), queue.NewJob{
		ID:     id,
		Title:  id,
		Source: queue.Source{Kind: queue.SourceLocal, Ref: path},
	})
	if err != nil {
		t.Fatalf("store.PutIfAbsent: %v", err)
	}
	return got
}

// MustStatus fetches a job and returns its current status.
func MustStatus(t testing.TB, store queue.JobStore, id string) queue.Status {
	t.Helper()

	job, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("store.Get(%s): %v", id, err)
	}
	return job.Status
}
