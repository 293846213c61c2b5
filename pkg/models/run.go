package models

import "time"

type RunStatus string

const (
	PendingRunStatus RunStatus = "PENDING"
	RunningRunStatus RunStatus = "RUNNING"
	SuccessRunStatus RunStatus = "SUCCESS"
	FailedRunStatus  RunStatus = "FAILED"
	SkippedRunStatus RunStatus = "SKIPPED" // trigger fired while another run was active
	AbortedRunStatus RunStatus = "ABORTED" // process terminated mid-run
)

// DateLayout is the calendar date format used in RunLog entries.
const DateLayout = "2006-01-02"

// RunOutcome represents one pipeline run bound to a single calendar date.
type RunOutcome struct {
	RunID      string         `json:"run_id"`
	Date       time.Time      `json:"date"`
	Status     RunStatus      `json:"status"`
	Stages     []StageOutcome `json:"stages,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Duration   time.Duration  `json:"duration"`
}

func (s RunStatus) IsTerminal() bool {
	switch s {
	case SuccessRunStatus, FailedRunStatus, SkippedRunStatus, AbortedRunStatus:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a run may move from s to next.
func (s RunStatus) CanTransition(next RunStatus) bool {
	switch s {
	case PendingRunStatus:
		return next == RunningRunStatus || next == SkippedRunStatus
	case RunningRunStatus:
		return next == SuccessRunStatus || next == FailedRunStatus || next == AbortedRunStatus
	default:
		return false
	}
}
