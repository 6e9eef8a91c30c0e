package workflow

import (
	"time"

	"graphmem/internal/queue"
	"graphmem/internal/stageexec"
)

// Mode names how a run selects stages.
type Mode string

const (
	ModeFull   Mode = "full"
	ModeSingle Mode = "single"
)

// RunSummary reports what a run did, one entry per executed stage.
type RunSummary struct {
	RunID      string             `json:"run_id"`
	Mode       Mode               `json:"mode"`
	Passes     int                `json:"passes"`
	Reconciled int64              `json:"reconciled,omitempty"`
	Stages     []stageexec.Result `json:"stages"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Cancelled  bool               `json:"cancelled,omitempty"`
}

// Stage returns the totals for s.
func (s RunSummary) Stage(st queue.Stage) (stageexec.Result, bool) {
	for _, r := range s.Stages {
		if r.Stage == st {
			return r, true
		}
	}
	return stageexec.Result{}, false
}

// Totals sums every stage.
func (s RunSummary) Totals() stageexec.Result {
	var total stageexec.Result
	for _, r := range s.Stages {
		total.Claimed += r.Claimed
		total.Succeeded += r.Succeeded
		total.Failed += r.Failed
		total.Interrupted += r.Interrupted
	}
	return total
}

// Duration is the wall time of the run.
func (s RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

func (s *RunSummary) add(r stageexec.Result) {
	for i := range s.Stages {
		if s.Stages[i].Stage == r.Stage {
			s.Stages[i].Claimed += r.Claimed
			s.Stages[i].Succeeded += r.Succeeded
			s.Stages[i].Failed += r.Failed
			s.Stages[i].Interrupted += r.Interrupted
			return
		}
	}
	s.Stages = append(s.Stages, r)
}
