package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"graphmem/internal/logging"
	"graphmem/internal/queue"
	"graphmem/internal/services"
	"graphmem/internal/stage"
)

// Options configures a stage executor.
type Options struct {
	Store       queue.JobStore
	Handler     stage.Handler
	Concurrency int
	Logger      *slog.Logger
}

// Result counts what one executor run did.
type Result struct {
	Stage       queue.Stage `json:"stage"`
	Claimed     int         `json:"claimed"`
	Succeeded   int         `json:"succeeded"`
	Failed      int         `json:"failed"`
	Interrupted int         `json:"interrupted,omitempty"`
}

// Executor runs a single stage to completion.
type Executor struct {
	store   queue.JobStore
	handler stage.Handler
	limit   int64
	logger  *slog.Logger

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu       sync.Mutex
	result   Result
	storeErr error
}

// New validates opts and returns an executor.
func New(opts Options) (*Executor, error) {
	if opts.Store == nil {
		return nil, errors.New("stageexec: job store is required")
	}
	if opts.Handler == nil {
		return nil, errors.New("stageexec: stage handler is required")
	}
	if !opts.Handler.Stage().Valid() {
		return nil, fmt.Errorf("stageexec: unknown stage %q", opts.Handler.Stage())
	}
	if opts.Concurrency <= 0 {
		return nil, fmt.Errorf("stageexec: %s concurrency must be positive, got %d", opts.Handler.Stage(), opts.Concurrency)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		store:   opts.Store,
		handler: opts.Handler,
		limit:   int64(opts.Concurrency),
		logger:  logger.With(logging.String(logging.FieldStage, string(opts.Handler.Stage()))),
	}, nil
}

// Stage reports the stage this executor drives.
func (e *Executor) Stage() queue.Stage { return e.handler.Stage() }

// Run claims and executes jobs until none are eligible and every dispatched
// call has returned. Cancelling ctx stops further claims; calls already in
// flight run to completion and their outcomes are recorded. Run returns an
// error only for store faults.
func (e *Executor) Run(ctx context.Context) (Result, error) {
	e.sem = semaphore.NewWeighted(e.limit)
	e.result = Result{Stage: e.Stage()}
	e.storeErr = nil

	claimErr := e.claimLoop(ctx)
	if ctx.Err() != nil {
		e.logger.Info("stage executor stopping; draining in-flight jobs",
			logging.String(logging.FieldEventType, "stage_drain"),
		)
	}
	e.wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	err := claimErr
	if err == nil {
		err = e.storeErr
	}
	return e.result, err
}

func (e *Executor) claimLoop(ctx context.Context) error {
	s := e.Stage()
	for {
		// Block for one free slot, then take whatever else is free.
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		slots := int64(1)
		for slots < e.limit && e.sem.TryAcquire(1) {
			slots++
		}
		if ctx.Err() != nil || e.failedStore() {
			e.sem.Release(slots)
			return nil
		}

		ids, err := e.store.ClaimNext(ctx, s, int(slots))
		if err != nil {
			e.sem.Release(slots)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("claim %s jobs: %w", s, err)
		}
		if unused := slots - int64(len(ids)); unused > 0 {
			e.sem.Release(unused)
		}
		if len(ids) == 0 {
			return nil
		}

		e.mu.Lock()
		e.result.Claimed += len(ids)
		e.mu.Unlock()
		e.logger.Debug("claimed jobs", logging.Int("count", len(ids)), logging.Int64("limit", e.limit))

		for _, id := range ids {
			e.wg.Add(1)
			go e.execute(ctx, id)
		}
	}
}

func (e *Executor) execute(parent context.Context, id string) {
	defer e.wg.Done()
	defer e.sem.Release(1)

	s := e.Stage()
	// Claimed work is drained, not abandoned, when parent is cancelled.
	ctx := context.WithoutCancel(parent)
	ctx = services.WithStage(services.WithJobID(ctx, id), string(s))
	logger := logging.WithContext(ctx, e.logger)

	job, err := e.store.Get(ctx, id)
	if err != nil {
		e.setStoreErr(fmt.Errorf("load %s job %s: %w", s, id, err))
		logging.ErrorWithContext(logger, "failed to load claimed job", "stage_load_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check job store access"),
		)
		return
	}

	start := time.Now()
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("source", job.Source.String()),
		logging.String("title", job.DisplayTitle()),
	)

	artifact, err := e.handler.Execute(ctx, job)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			e.mu.Lock()
			e.result.Interrupted++
			e.mu.Unlock()
			logging.WarnWithContext(logger, "stage interrupted; job left in progress", "stage_interrupted",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "run graphmem retry --interrupted after shutdown"),
				logging.String(logging.FieldImpact, "job stays claimed until reconciled"),
			)
			return
		}
		e.recordFailure(ctx, logger, id, err, elapsed)
		return
	}

	if err := e.store.Complete(ctx, id, s, artifact); err != nil {
		e.setStoreErr(fmt.Errorf("complete %s for job %s: %w", s, id, err))
		logging.ErrorWithContext(logger, "failed to record stage result", "stage_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check job store access"),
		)
		return
	}
	e.mu.Lock()
	e.result.Succeeded++
	e.mu.Unlock()
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("artifact", artifact),
		logging.Duration("stage_duration", elapsed),
	)
}

func (e *Executor) recordFailure(ctx context.Context, logger *slog.Logger, id string, cause error, elapsed time.Duration) {
	s := e.Stage()
	message := services.FailureMessage(cause)
	if err := e.store.Fail(ctx, id, s, message); err != nil {
		e.setStoreErr(fmt.Errorf("fail %s for job %s: %w", s, id, err))
		logging.ErrorWithContext(logger, "failed to record stage failure", "stage_persist_failed",
			logging.Error(err),
			logging.String("stage_error", message),
			logging.String(logging.FieldErrorHint, "check job store access"),
		)
		return
	}
	e.mu.Lock()
	e.result.Failed++
	e.mu.Unlock()
	logging.ErrorWithContext(logger, "stage failed", "stage_failure",
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, services.Kind(cause)),
		logging.Duration("stage_duration", elapsed),
	)
}

func (e *Executor) setStoreErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.storeErr == nil {
		e.storeErr = err
	}
}

func (e *Executor) failedStore() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.storeErr != nil
}
