package queue

import "context"

// JobStore is the durable registry of job records. Implementations must be
// safe for concurrent use; ClaimNext must never hand the same job to two
// callers.
type JobStore interface {
	// PutIfAbsent registers a job for the source, or returns the id of the
	// existing record. created reports whether a record was inserted.
	PutIfAbsent(ctx context.Context, job NewJob) (id string, created bool, err error)
	// ClaimNext moves up to limit jobs eligible for s into its in-progress
	// status and returns their ids. It never blocks waiting for work.
	ClaimNext(ctx context.Context, s Stage, limit int) ([]string, error)
	// Complete records artifact and moves the job to the success status of s.
	Complete(ctx context.Context, id string, s Stage, artifact string) error
	// Fail records message and moves the job to the failure status of s.
	Fail(ctx context.Context, id string, s Stage, message string) error
	// Reset returns a failed job to the eligible status of s, or to the
	// initial status when s is empty.
	Reset(ctx context.Context, id string, s Stage) (Status, error)
	// Abandon fails a job whose claim was left behind by an exited process.
	Abandon(ctx context.Context, id string, message string) (Stage, error)
	// AbandonInProgress fails every in-progress job.
	AbandonInProgress(ctx context.Context, message string) (int64, error)
	Counts(ctx context.Context) (map[Status]int, error)
	// Failures lists failed jobs, most recent first.
	Failures(ctx context.Context) ([]Failure, error)
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, statuses ...Status) ([]*Job, error)
	Close() error
}

var _ JobStore = (*Store)(nil)
