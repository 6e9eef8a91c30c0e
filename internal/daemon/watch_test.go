package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"graphmem/internal/workflow"
)

type fakeSweeper struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
	started chan struct{}
}

func (f *fakeSweeper) RunFull(ctx context.Context) (workflow.RunSummary, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return workflow.RunSummary{RunID: "cancelled"}, ctx.Err()
		}
	}
	return workflow.RunSummary{RunID: "run-" + string(rune('0'+n))}, nil
}

func (f *fakeSweeper) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestWatcher(t *testing.T, sweeper Sweeper) (*Watcher, chan time.Time) {
	t.Helper()
	lock := NewRunLock(filepath.Join(t.TempDir(), "graphmem.lock"))
	w, err := NewWatcher("*/5 * * * *", sweeper, lock, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	ticks := make(chan time.Time)
	w.after = func(time.Duration) <-chan time.Time { return ticks }
	return w, ticks
}

func TestNewWatcherValidates(t *testing.T) {
	lock := NewRunLock(filepath.Join(t.TempDir(), "l"))
	if _, err := NewWatcher("every minute", &fakeSweeper{}, lock, nil); err == nil {
		t.Fatal("expected error for bad schedule")
	}
	if _, err := NewWatcher("* * * * *", nil, lock, nil); err == nil {
		t.Fatal("expected error without sweeper")
	}
	if _, err := NewWatcher("* * * * *", &fakeSweeper{}, nil, nil); err == nil {
		t.Fatal("expected error without lock")
	}
}

func TestWatcherNext(t *testing.T) {
	w, _ := newTestWatcher(t, &fakeSweeper{})
	from := time.Date(2026, 4, 1, 10, 2, 30, 0, time.UTC)
	if got := w.Next(from); !got.Equal(time.Date(2026, 4, 1, 10, 5, 0, 0, time.UTC)) {
		t.Fatalf("unexpected next tick %v", got)
	}
}

func TestWatcherSweepsOnStartAndEachTick(t *testing.T) {
	sweeper := &fakeSweeper{}
	w, ticks := newTestWatcher(t, sweeper)
	done := make(chan workflow.RunSummary, 4)
	w.OnSweep = func(s workflow.RunSummary, _ error) { done <- s }

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	<-done
	ticks <- time.Now()
	<-done
	ticks <- time.Now()
	<-done
	cancel()

	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sweeper.Calls() != 3 {
		t.Fatalf("expected 3 sweeps, got %d", sweeper.Calls())
	}
}

func TestWatcherSkipsTicksWhileSweeping(t *testing.T) {
	sweeper := &fakeSweeper{release: make(chan struct{}), started: make(chan struct{}, 4)}
	w, ticks := newTestWatcher(t, sweeper)
	done := make(chan struct{}, 4)
	w.OnSweep = func(workflow.RunSummary, error) { done <- struct{}{} }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	<-sweeper.started
	ticks <- time.Now()
	ticks <- time.Now()
	if sweeper.Calls() != 1 {
		t.Fatalf("expected ticks to be skipped while sweeping, got %d calls", sweeper.Calls())
	}

	close(sweeper.release)
	<-done
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestWatcherDrainsActiveSweepOnCancel(t *testing.T) {
	sweeper := &fakeSweeper{release: make(chan struct{}), started: make(chan struct{}, 1)}
	w, _ := newTestWatcher(t, sweeper)
	var (
		mu     sync.Mutex
		gotErr error
	)
	w.OnSweep = func(_ workflow.RunSummary, err error) {
		mu.Lock()
		gotErr = err
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	<-sweeper.started
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if !errors.Is(gotErr, context.Canceled) {
		t.Fatalf("expected the active sweep to finish before Run returned, got %v", gotErr)
	}
}

func TestWatcherRefusesSecondInstance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graphmem.lock")
	held := NewRunLock(path)
	if err := held.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer held.Release()

	w, err := NewWatcher("* * * * *", &fakeSweeper{}, NewRunLock(path), nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Run(context.Background()); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}
