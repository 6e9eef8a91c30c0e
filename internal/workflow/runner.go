package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"graphmem/internal/logging"
	"graphmem/internal/queue"
	"graphmem/internal/services"
	"graphmem/internal/stage"
	"graphmem/internal/stageexec"
)

// reconcileMessage is recorded on jobs failed by start-up reconciliation.
const reconcileMessage = "interrupted: claim abandoned by an exited run"

// Runner composes stage executors into runs.
type Runner struct {
	store  queue.JobStore
	opts   Options
	logger *slog.Logger
}

// NewRunner validates opts and constructs a runner over store.
func NewRunner(store queue.JobStore, opts Options, logger *slog.Logger) (*Runner, error) {
	if store == nil {
		return nil, errors.New("workflow: job store is required")
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Runner{
		store:  store,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "workflow"),
	}, nil
}

// Order returns the stages a full run sweeps.
func (r *Runner) Order() []queue.Stage {
	return append([]queue.Stage(nil), r.opts.Order...)
}

// Run executes a full run when s is empty, otherwise a single-stage run.
func (r *Runner) Run(ctx context.Context, s queue.Stage) (RunSummary, error) {
	if s == "" {
		return r.RunFull(ctx)
	}
	return r.RunStage(ctx, s)
}

// RunFull sweeps every stage in order, repeating until a sweep claims
// nothing or ctx is cancelled. Jobs finishing one stage are picked up by the
// next stage in the same or a later sweep.
func (r *Runner) RunFull(ctx context.Context) (RunSummary, error) {
	ctx, summary, logger := r.begin(ctx, ModeFull)
	if err := r.reconcile(ctx, logger, &summary); err != nil {
		return r.finish(ctx, logger, summary, err)
	}
	for ctx.Err() == nil {
		summary.Passes++
		claimed := 0
		for _, s := range r.opts.Order {
			if ctx.Err() != nil {
				break
			}
			res, err := r.runStage(ctx, s)
			summary.add(res)
			claimed += res.Claimed
			if err != nil {
				return r.finish(ctx, logger, summary, err)
			}
		}
		logger.Debug("pipeline sweep finished",
			logging.Int("pass", summary.Passes),
			logging.Int("claimed", claimed),
		)
		if claimed == 0 {
			break
		}
	}
	return r.finish(ctx, logger, summary, nil)
}

// RunStage executes the executor for s once.
func (r *Runner) RunStage(ctx context.Context, s queue.Stage) (RunSummary, error) {
	if !s.Valid() {
		return RunSummary{}, fmt.Errorf("workflow: unknown stage %q", s)
	}
	if !r.opts.has(s) {
		return RunSummary{}, fmt.Errorf("workflow: stage %s is not in stages.order", s)
	}
	ctx, summary, logger := r.begin(ctx, ModeSingle)
	if err := r.reconcile(ctx, logger, &summary); err != nil {
		return r.finish(ctx, logger, summary, err)
	}
	summary.Passes = 1
	res, err := r.runStage(ctx, s)
	summary.add(res)
	return r.finish(ctx, logger, summary, err)
}

// Health reports the readiness of every bound collaborator.
func (r *Runner) Health(ctx context.Context) []stage.Health {
	out := make([]stage.Health, 0, len(r.opts.Order))
	for _, s := range r.opts.Order {
		out = append(out, r.opts.Handlers[s].HealthCheck(ctx))
	}
	return out
}

func (r *Runner) runStage(ctx context.Context, s queue.Stage) (stageexec.Result, error) {
	exec, err := stageexec.New(stageexec.Options{
		Store:       r.store,
		Handler:     r.opts.Handlers[s],
		Concurrency: r.opts.Concurrency[s],
		Logger:      logging.WithContext(ctx, r.logger),
	})
	if err != nil {
		return stageexec.Result{Stage: s}, err
	}
	return exec.Run(ctx)
}

func (r *Runner) begin(ctx context.Context, mode Mode) (context.Context, RunSummary, *slog.Logger) {
	runID, ok := services.RunIDFromContext(ctx)
	if !ok {
		runID = uuid.NewString()
		ctx = services.WithRunID(ctx, runID)
	}
	summary := RunSummary{RunID: runID, Mode: mode, StartedAt: time.Now().UTC()}
	logger := logging.WithContext(ctx, r.logger)
	logger.Info("pipeline run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("mode", string(mode)),
	)
	return ctx, summary, logger
}

func (r *Runner) reconcile(ctx context.Context, logger *slog.Logger, summary *RunSummary) error {
	if !r.opts.ReconcileOnStart {
		return nil
	}
	n, err := r.store.AbandonInProgress(ctx, reconcileMessage)
	if err != nil {
		return fmt.Errorf("reconcile interrupted jobs: %w", err)
	}
	summary.Reconciled = n
	if n > 0 {
		logging.WarnWithContext(logger, "failed jobs left in progress by an earlier run", "run_reconcile",
			logging.Int64("jobs", n),
			logging.String(logging.FieldErrorHint, "graphmem retry <id> to re-queue them"),
			logging.String(logging.FieldImpact, "jobs moved to their stage failure status"),
		)
	}
	return nil
}

func (r *Runner) finish(ctx context.Context, logger *slog.Logger, summary RunSummary, err error) (RunSummary, error) {
	summary.FinishedAt = time.Now().UTC()
	summary.Cancelled = ctx.Err() != nil
	totals := summary.Totals()
	if err != nil {
		logging.ErrorWithContext(logger, "pipeline run aborted", "run_abort",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check job store access"),
		)
		return summary, err
	}
	logger.Info("pipeline run finished",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("passes", summary.Passes),
		logging.Int("claimed", totals.Claimed),
		logging.Int("succeeded", totals.Succeeded),
		logging.Int("failed", totals.Failed),
		logging.Bool("cancelled", summary.Cancelled),
		logging.Duration("run_duration", summary.Duration()),
	)
	return summary, nil
}
