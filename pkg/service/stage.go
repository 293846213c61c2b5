package service

import (
	"github.com/ignatij/marketflow/pkg/models"
	"github.com/pkg/errors"
)

// GatePolicy decides whether a stage's task outcomes allow the pipeline to proceed.
type GatePolicy func(outcomes []models.ExitOutcome) bool

// AllSucceeded passes when every task exited zero. An empty stage passes.
func AllSucceeded(outcomes []models.ExitOutcome) bool {
	for _, o := range outcomes {
		if !o.Succeeded() {
			return false
		}
	}
	return true
}

// AnySucceeded passes when at least one task exited zero. An empty stage passes.
func AnySucceeded(outcomes []models.ExitOutcome) bool {
	if len(outcomes) == 0 {
		return true
	}
	for _, o := range outcomes {
		if o.Succeeded() {
			return true
		}
	}
	return false
}

// GatePolicyByName maps a configuration value to a policy.
func GatePolicyByName(name string) (GatePolicy, error) {
	switch name {
	case "", "all":
		return AllSucceeded, nil
	case "any":
		return AnySucceeded, nil
	default:
		return nil, errors.Errorf("unknown gate policy %q; must be 'all' or 'any'", name)
	}
}

// Stage is an ordered group of tasks that must all be attempted before the
// next stage may begin.
type Stage struct {
	Name  string
	Tasks []models.Task
	Gate  GatePolicy // nil means AllSucceeded
}

func (s Stage) passes(outcomes []models.ExitOutcome) bool {
	if s.Gate == nil {
		return AllSucceeded(outcomes)
	}
	return s.Gate(outcomes)
}
