package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"graphmem/internal/logging"
	"graphmem/internal/queue"
)

// interruptedMessage is recorded on in-progress jobs reconciled by an operator.
const interruptedMessage = "interrupted: reconciled by operator"

// Controller implements operator retry on top of the job store.
type Controller struct {
	store  queue.JobStore
	logger *slog.Logger
}

// NewController returns a retry controller for store.
func NewController(store queue.JobStore, logger *slog.Logger) *Controller {
	return &Controller{store: store, logger: logging.NewComponentLogger(logger, "retry")}
}

// Retry resets a failed job. With an empty stage the job restarts the whole
// pipeline; otherwise s must match the stage the job failed in. Errors wrap
// queue.ErrNotFound, queue.ErrNotFailed or queue.ErrStageMismatch.
func (c *Controller) Retry(ctx context.Context, id string, s queue.Stage) (queue.Status, error) {
	if s != "" && !s.Valid() {
		return "", fmt.Errorf("unknown stage %q", s)
	}
	status, err := c.store.Reset(ctx, id, s)
	if err != nil {
		return "", err
	}
	c.logger.Info("job reset for retry",
		logging.String(logging.FieldJobID, id),
		logging.String("requested_stage", string(s)),
		logging.String("status", string(status)),
		logging.String(logging.FieldEventType, "job_retry"),
	)
	return status, nil
}

// RetryResult is the outcome of retrying one job in a batch.
type RetryResult struct {
	JobID  string       `json:"job_id"`
	Status queue.Status `json:"status,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// RetryFailed resets every job failed in s, or in any stage when s is
// empty. Each job restarts from the stage it failed in.
func (c *Controller) RetryFailed(ctx context.Context, s queue.Stage) ([]RetryResult, error) {
	statuses := make([]queue.Status, 0, 3)
	for _, row := range queue.Table() {
		if s == "" || row.Stage == s {
			statuses = append(statuses, row.Failure)
		}
	}
	if len(statuses) == 0 {
		return nil, fmt.Errorf("unknown stage %q", s)
	}
	jobs, err := c.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	results := make([]RetryResult, 0, len(jobs))
	for _, job := range jobs {
		failed, _ := queue.FailedStage(job.Status)
		status, err := c.Retry(ctx, job.ID, failed)
		results = append(results, retryResult(job.ID, status, err))
	}
	return results, nil
}

// RetryInterrupted releases every in-progress job, which must only be done
// when no run is active, and re-queues each at the stage it was claimed for.
func (c *Controller) RetryInterrupted(ctx context.Context) ([]RetryResult, error) {
	statuses := make([]queue.Status, 0, 3)
	for _, row := range queue.Table() {
		statuses = append(statuses, row.InProgress)
	}
	jobs, err := c.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	results := make([]RetryResult, 0, len(jobs))
	for _, job := range jobs {
		s, err := c.store.Abandon(ctx, job.ID, interruptedMessage)
		if err != nil {
			// Another process finished the job between List and Abandon.
			if errors.Is(err, queue.ErrNotInProgress) {
				continue
			}
			results = append(results, retryResult(job.ID, "", err))
			continue
		}
		status, err := c.Retry(ctx, job.ID, s)
		results = append(results, retryResult(job.ID, status, err))
	}
	if len(results) > 0 {
		logging.WarnWithContext(c.logger, "reconciled interrupted jobs", "retry_interrupted",
			logging.Int("jobs", len(results)),
			logging.String(logging.FieldErrorHint, "run graphmem run to resume them"),
			logging.String(logging.FieldImpact, "in-progress claims released"),
		)
	}
	return results, nil
}

func retryResult(id string, status queue.Status, err error) RetryResult {
	res := RetryResult{JobID: id, Status: status}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}
