package models

type StageStatus string

const (
	PendingStageStatus StageStatus = "PENDING"
	RunningStageStatus StageStatus = "RUNNING"
	PassedStageStatus  StageStatus = "PASSED"
	FailedStageStatus  StageStatus = "FAILED"
	SkippedStageStatus StageStatus = "SKIPPED"
)

// StageOutcome is computed once every task of the stage has been attempted.
type StageOutcome struct {
	Name   string        `json:"name"`
	Status StageStatus   `json:"status"`
	Passed bool          `json:"passed"`
	Tasks  []ExitOutcome `json:"tasks,omitempty"`
}

// Failed returns the outcomes of the tasks that did not succeed.
func (o StageOutcome) Failed() []ExitOutcome {
	var failed []ExitOutcome
	for _, t := range o.Tasks {
		if !t.Succeeded() {
			failed = append(failed, t)
		}
	}
	return failed
}
