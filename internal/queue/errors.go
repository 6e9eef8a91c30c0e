package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates an unknown job id.
	ErrNotFound = errors.New("job not found")
	// ErrInvalidTransition indicates a status change outside the transition table.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotFailed is returned by Reset when the job is not in a failure status.
	ErrNotFailed = fmt.Errorf("%w: job is not in a failure status", ErrInvalidTransition)
	// ErrStageMismatch is returned by Reset when the requested stage is not the failed stage.
	ErrStageMismatch = fmt.Errorf("%w: stage does not match the failed stage", ErrInvalidTransition)
	// ErrNotInProgress is returned by Abandon when the job holds no claim.
	ErrNotInProgress = fmt.Errorf("%w: job is not in progress", ErrInvalidTransition)
)

// TransitionError describes a rejected status change.
type TransitionError struct {
	JobID string
	Stage Stage
	From  Status
	Want  Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("job %s: %s: status is %s, expected %s", e.JobID, e.Stage, e.From, e.Want)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
