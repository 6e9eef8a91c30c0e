package queue

import (
	"fmt"
	"strings"
	"time"
)

// SourceKind tags the Source union.
type SourceKind string

const (
	SourceChannel SourceKind = "channel"
	SourceURL     SourceKind = "url"
	SourceLocal   SourceKind = "local"
)

// Source is the immutable intake reference of a job.
type Source struct {
	Kind SourceKind `json:"kind"`
	Ref  string     `json:"ref"`
}

// Key is the identity used for idempotent intake.
func (s Source) Key() string {
	return string(s.Kind) + ":" + s.Ref
}

func (s Source) String() string {
	return s.Key()
}

// Validate reports whether the source is well formed.
func (s Source) Validate() error {
	switch s.Kind {
	case SourceChannel, SourceURL, SourceLocal:
	default:
		return fmt.Errorf("source kind %q is not supported", s.Kind)
	}
	if strings.TrimSpace(s.Ref) == "" {
		return fmt.Errorf("%s source requires a reference", s.Kind)
	}
	return nil
}

// ParseSourceKind converts user input into a SourceKind.
func ParseSourceKind(value string) (SourceKind, error) {
	switch kind := SourceKind(strings.ToLower(strings.TrimSpace(value))); kind {
	case SourceChannel, SourceURL, SourceLocal:
		return kind, nil
	case "path", "file":
		return SourceLocal, nil
	default:
		return "", fmt.Errorf("unknown source kind %q", value)
	}
}

// NewJob describes a job to register at intake.
type NewJob struct {
	// ID is the preferred identifier. The store suffixes it when another
	// source already owns the same id.
	ID     string
	Title  string
	Source Source
	// Origin records the channel a URL source was expanded from.
	Origin string
}

// JobError is the structured failure record kept on a failed job.
type JobError struct {
	Stage     Stage     `json:"stage"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Job is one media item moving through the pipeline.
type Job struct {
	ID           string           `json:"id"`
	Title        string           `json:"title,omitempty"`
	Source       Source           `json:"source"`
	Origin       string           `json:"origin,omitempty"`
	Status       Status           `json:"status"`
	StageOutputs map[Stage]string `json:"stage_outputs,omitempty"`
	Attempts     map[Stage]int    `json:"attempts,omitempty"`
	Error        *JobError        `json:"error,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	ClaimedAt    *time.Time       `json:"claimed_at,omitempty"`
}

// Input returns the reference a stage's collaborator consumes: the source
// reference for download, otherwise the previous stage's artifact.
func (j *Job) Input(s Stage) (string, bool) {
	if j == nil {
		return "", false
	}
	switch s {
	case Download:
		return j.Source.Ref, j.Source.Ref != ""
	case Transcribe:
		ref, ok := j.StageOutputs[Download]
		return ref, ok && ref != ""
	case Ingest:
		ref, ok := j.StageOutputs[Transcribe]
		return ref, ok && ref != ""
	default:
		return "", false
	}
}

// DisplayTitle returns the title, falling back to the source reference.
func (j *Job) DisplayTitle() string {
	if j == nil {
		return ""
	}
	if title := strings.TrimSpace(j.Title); title != "" {
		return title
	}
	return j.Source.Ref
}

// Failure is one entry of the failure listing.
type Failure struct {
	JobID     string    `json:"job_id"`
	Title     string    `json:"title,omitempty"`
	Stage     Stage     `json:"stage"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
