package models

import "time"

type EventKind string

const (
	StartEventKind   EventKind = "START"
	SuccessEventKind EventKind = "SUCCESS"
	FailureEventKind EventKind = "FAILURE"
	SkipEventKind    EventKind = "SKIP"
)

// RunEvent is one append-only RunLog record.
type RunEvent struct {
	ID       int64     `json:"id" db:"id"`                     // assigned by the store
	RunID    string    `json:"run_id" db:"run_id"`             // empty for events outside a run
	RunDate  string    `json:"run_date" db:"run_date"`         // bound calendar date, YYYY-MM-DD
	Stage    string    `json:"stage,omitempty" db:"stage"`     // empty for run-level events
	Task     string    `json:"task,omitempty" db:"task"`       // empty for stage-level events
	Kind     EventKind `json:"kind" db:"kind"`                 // START, SUCCESS, FAILURE, SKIP
	Detail   string    `json:"detail,omitempty" db:"detail"`   // free text
	LoggedAt time.Time `json:"logged_at" db:"logged_at"`       // timestamp of the event
}
