package queue

import (
	"fmt"
	"strings"
)

// Stage identifies one unit of pipeline work.
type Stage string

const (
	Download   Stage = "download"
	Transcribe Stage = "transcribe"
	Ingest     Stage = "ingest"
)

// Status is the scheduling state of a job record.
type Status string

const (
	StatusTodo             Status = "todo"
	StatusDownloading      Status = "downloading"
	StatusDownloaded       Status = "downloaded"
	StatusTranscribing     Status = "transcribing"
	StatusTranscribed      Status = "transcribed"
	StatusIngesting        Status = "ingesting"
	StatusDone             Status = "done"
	StatusDownloadFailed   Status = "download_failed"
	StatusTranscribeFailed Status = "transcribe_failed"
	StatusIngestFailed     Status = "ingest_failed"
)

// Transition is one row of the pipeline transition table.
type Transition struct {
	Stage      Stage
	Eligible   Status
	InProgress Status
	Success    Status
	Failure    Status
}

var table = []Transition{
	{Stage: Download, Eligible: StatusTodo, InProgress: StatusDownloading, Success: StatusDownloaded, Failure: StatusDownloadFailed},
	{Stage: Transcribe, Eligible: StatusDownloaded, InProgress: StatusTranscribing, Success: StatusTranscribed, Failure: StatusTranscribeFailed},
	{Stage: Ingest, Eligible: StatusTranscribed, InProgress: StatusIngesting, Success: StatusDone, Failure: StatusIngestFailed},
}

var allStatuses = []Status{
	StatusTodo,
	StatusDownloading,
	StatusDownloaded,
	StatusTranscribing,
	StatusTranscribed,
	StatusIngesting,
	StatusDone,
	StatusDownloadFailed,
	StatusTranscribeFailed,
	StatusIngestFailed,
}

var byStage = func() map[Stage]Transition {
	m := make(map[Stage]Transition, len(table))
	for _, row := range table {
		m[row.Stage] = row
	}
	return m
}()

// Initial is the status every job record starts in.
const Initial = StatusTodo

// All returns the stages in pipeline order.
func All() []Stage {
	out := make([]Stage, 0, len(table))
	for _, row := range table {
		out = append(out, row.Stage)
	}
	return out
}

// AllStatuses returns every status in pipeline order followed by the failure statuses.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// Table returns a copy of the transition table.
func Table() []Transition {
	out := make([]Transition, len(table))
	copy(out, table)
	return out
}

// Lookup returns the transition row for s.
func Lookup(s Stage) (Transition, bool) {
	row, ok := byStage[s]
	return row, ok
}

// MustLookup returns the transition row for s and panics for stages outside the enum.
func MustLookup(s Stage) Transition {
	row, ok := byStage[s]
	if !ok {
		panic(fmt.Sprintf("queue: unknown stage %q", s))
	}
	return row
}

// ParseStage converts user input into a Stage.
func ParseStage(value string) (Stage, error) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := byStage[normalized]; ok {
		return normalized, nil
	}
	return "", fmt.Errorf("unknown stage %q (expected one of %s)", value, strings.Join(stageNames(), ", "))
}

// ParseStatus converts user input into a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// Valid reports whether s belongs to the enum.
func (s Stage) Valid() bool {
	_, ok := byStage[s]
	return ok
}

func (s Stage) String() string { return string(s) }

func (s Status) String() string { return string(s) }

// IsFailure reports whether s is one of the failure statuses.
func (s Status) IsFailure() bool {
	_, ok := FailedStage(s)
	return ok
}

// IsInProgress reports whether a stage currently holds a claim for this status.
func (s Status) IsInProgress() bool {
	_, ok := InProgressStage(s)
	return ok
}

// FailedStage returns the stage whose failure status is s.
func FailedStage(s Status) (Stage, bool) {
	for _, row := range table {
		if row.Failure == s {
			return row.Stage, true
		}
	}
	return "", false
}

// InProgressStage returns the stage whose in-progress status is s.
func InProgressStage(s Status) (Stage, bool) {
	for _, row := range table {
		if row.InProgress == s {
			return row.Stage, true
		}
	}
	return "", false
}

// Allowed reports whether from -> to is an edge of the state machine.
// Reset edges (failure -> eligible of the failed stage, failure -> initial)
// are included.
func Allowed(from, to Status) bool {
	for _, row := range table {
		switch from {
		case row.Eligible:
			if to == row.InProgress {
				return true
			}
		case row.InProgress:
			if to == row.Success || to == row.Failure {
				return true
			}
		case row.Failure:
			if to == row.Eligible || to == Initial {
				return true
			}
		}
	}
	return false
}

func stageNames() []string {
	names := make([]string, 0, len(table))
	for _, row := range table {
		names = append(names, string(row.Stage))
	}
	return names
}
