package models

import "time"

type ExitKind string

const (
	SuccessExitKind      ExitKind = "SUCCESS"
	StartFailureExitKind ExitKind = "START_FAILURE"
	ExitFailureExitKind  ExitKind = "EXIT_FAILURE"
)

// StartFailureCode is reported when the process could not be launched at all.
const StartFailureCode = -1

// Task is one external command invocation within a stage.
type Task struct {
	Name      string            `json:"name"`       // e.g. "fetch-hk"
	Stage     string            `json:"stage"`      // owning stage name
	Market    string            `json:"market"`     // market tag, e.g. "a" or "hk"
	Program   string            `json:"program"`    // executable, looked up on PATH
	Args      []string          `json:"args"`       // unresolved argument template
	WorkDir   string            `json:"work_dir"`   // working directory of the child process
	OutputDir string            `json:"output_dir"` // market data root, never shared between markets
	LogPath   string            `json:"log_path"`   // raw stdout/stderr capture, append mode
	Vars      map[string]string `json:"vars,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// ExitOutcome is the result of executing a Task. Failures are data, not errors.
type ExitOutcome struct {
	Task       string    `json:"task"`
	Market     string    `json:"market"`
	Kind       ExitKind  `json:"kind"`
	Code       int       `json:"code"`
	Detail     string    `json:"detail,omitempty"`
	Args       []string  `json:"args"` // resolved arguments
	LogPath    string    `json:"log_path"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (o ExitOutcome) Succeeded() bool {
	return o.Kind == SuccessExitKind && o.Code == 0
}
