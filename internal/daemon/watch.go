package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"graphmem/internal/logging"
	"graphmem/internal/workflow"
)

// Sweeper runs one full pipeline sweep.
type Sweeper interface {
	RunFull(ctx context.Context) (workflow.RunSummary, error)
}

// Watcher runs a full sweep on every tick of a cron schedule.
type Watcher struct {
	expr     string
	schedule cron.Schedule
	sweeper  Sweeper
	lock     *RunLock
	logger   *slog.Logger

	// OnSweep, when set, receives the result of every sweep.
	OnSweep func(workflow.RunSummary, error)

	now      func() time.Time
	after    func(time.Duration) <-chan time.Time
	sweeping atomic.Bool
	wg       sync.WaitGroup
}

// NewWatcher parses expr as a standard five-field cron expression.
func NewWatcher(expr string, sweeper Sweeper, lock *RunLock, logger *slog.Logger) (*Watcher, error) {
	if sweeper == nil {
		return nil, errors.New("watch: sweeper is required")
	}
	if lock == nil {
		return nil, errors.New("watch: run lock is required")
	}
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("watch: parse schedule %q: %w", expr, err)
	}
	return &Watcher{
		expr:     expr,
		schedule: schedule,
		sweeper:  sweeper,
		lock:     lock,
		logger:   logging.NewComponentLogger(logger, "watch"),
		now:      time.Now,
		after:    time.After,
	}, nil
}

// Next returns the first tick after t.
func (w *Watcher) Next(t time.Time) time.Time {
	return w.schedule.Next(t)
}

// Run holds the run lock, sweeps once immediately, then sweeps on every tick
// until ctx is cancelled. A tick that arrives while a sweep is still running
// is skipped. On cancellation Run waits for the active sweep to drain.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.lock.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := w.lock.Release(); err != nil {
			logging.WarnWithContext(w.logger, "failed to release run lock", "lock_release_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove "+w.lock.Path()+" if no graphmem process is running"),
			)
		}
	}()

	w.logger.Info("watch started",
		logging.String(logging.FieldEventType, "watch_start"),
		logging.String("schedule", w.expr),
		logging.String("lock", w.lock.Path()),
	)
	w.trigger(ctx)
	for {
		next := w.Next(w.now())
		w.logger.Debug("next sweep scheduled", logging.String("next", next.Format(time.RFC3339)))
		select {
		case <-ctx.Done():
			w.wg.Wait()
			w.logger.Info("watch stopped", logging.String(logging.FieldEventType, "watch_stop"))
			return nil
		case <-w.after(time.Until(next)):
			w.trigger(ctx)
		}
	}
}

func (w *Watcher) trigger(ctx context.Context) {
	if !w.sweeping.CompareAndSwap(false, true) {
		logging.WarnWithContext(w.logger, "previous sweep still running; tick skipped", "sweep_skipped",
			logging.String(logging.FieldImpact, "the next tick will pick up pending work"),
			logging.String(logging.FieldErrorHint, "lower concurrency pressure or widen watch_schedule"),
		)
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.sweeping.Store(false)
		summary, err := w.sweeper.RunFull(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.ErrorWithContext(w.logger, "sweep failed", "sweep_failed",
				logging.Error(err),
				logging.String(logging.FieldRunID, summary.RunID),
				logging.String(logging.FieldErrorHint, "check the job store; the next tick retries"),
			)
		}
		if w.OnSweep != nil {
			w.OnSweep(summary, err)
		}
	}()
}
