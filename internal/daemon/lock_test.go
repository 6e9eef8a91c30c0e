package daemon

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestRunLockIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "graphmem.lock")
	first := NewRunLock(path)
	second := NewRunLock(path)

	if err := first.Acquire(); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if err := second.Acquire(); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := second.Acquire(); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	if err := second.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if err := second.Release(); err != nil {
		t.Fatalf("releasing an unlocked lock should be a no-op: %v", err)
	}
}
