package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ignatij/marketflow/pkg/models"
	"github.com/ignatij/marketflow/pkg/runlog"
	"github.com/pkg/errors"
)

// Logger defines the logging interface used by the pipeline and scheduler
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// ErrRunInProgress is returned by RunOnce when another run has not finished yet.
var ErrRunInProgress = errors.New("previous run still active")

// RunContext binds a run to its identity and calendar date.
type RunContext struct {
	RunID string
	Date  time.Time
}

func (rc RunContext) dateString() string {
	return rc.Date.Format(models.DateLayout)
}

// Pipeline executes its stages strictly in order, gating each stage on the
// previous stage's outcome. At most one run is in flight at a time.
type Pipeline struct {
	stages   []Stage
	runner   Runner
	events   runlog.Log
	logger   Logger
	now      func() time.Time
	newID    func() string
	inFlight atomic.Bool
}

type PipelineOption func(*Pipeline)

// WithClock overrides the wall clock used for timestamps and durations.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

// WithRunIDs overrides run ID generation.
func WithRunIDs(newID func() string) PipelineOption {
	return func(p *Pipeline) { p.newID = newID }
}

func NewPipeline(stages []Stage, runner Runner, events runlog.Log, logger Logger, opts ...PipelineOption) *Pipeline {
	if events == nil {
		events = runlog.Nop{}
	}
	p := &Pipeline{
		stages: stages,
		runner: runner,
		events: events,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stages returns the configured stages in execution order.
func (p *Pipeline) Stages() []Stage {
	return p.stages
}

// InFlight reports whether a run is currently executing.
func (p *Pipeline) InFlight() bool {
	return p.inFlight.Load()
}

// RunOnce executes one run bound to date. The date is resolved by the caller
// once and reused for every task of the run.
//
// A call made while another run is active executes nothing, records a single
// SKIP event and returns ErrRunInProgress. If ctx is cancelled mid-run no
// completion event is written and the context error is returned.
func (p *Pipeline) RunOnce(ctx context.Context, date time.Time) (models.RunOutcome, error) {
	outcome := models.RunOutcome{Date: date, Status: models.PendingRunStatus}

	if !p.inFlight.CompareAndSwap(false, true) {
		p.record(RunContext{Date: date}, "", "", models.SkipEventKind, ErrRunInProgress.Error())
		p.logger.Warnf("Skipping run for %s: %v", date.Format(models.DateLayout), ErrRunInProgress)
		if err := transition(&outcome, models.SkippedRunStatus); err != nil {
			return outcome, err
		}
		return outcome, ErrRunInProgress
	}
	defer p.inFlight.Store(false)

	rc := RunContext{RunID: p.newID(), Date: date}
	outcome.RunID = rc.RunID
	outcome.StartedAt = p.now()
	if err := transition(&outcome, models.RunningRunStatus); err != nil {
		return outcome, err
	}
	p.record(rc, "", "", models.StartEventKind, fmt.Sprintf("%d stage(s)", len(p.stages)))
	p.logger.Infof("Starting run %s for %s", rc.RunID, rc.dateString())

	failedStage := ""
	for _, stage := range p.stages {
		if failedStage != "" {
			outcome.Stages = append(outcome.Stages, models.StageOutcome{Name: stage.Name, Status: models.SkippedStageStatus})
			p.record(rc, stage.Name, "", models.SkipEventKind, fmt.Sprintf("stage %s failed", failedStage))
			p.logger.Warnf("Skipping stage %s of run %s: stage %s failed", stage.Name, rc.RunID, failedStage)
			continue
		}

		so := p.RunStage(ctx, rc, stage)
		outcome.Stages = append(outcome.Stages, so)
		if ctx.Err() != nil {
			return p.abort(&outcome, ctx.Err())
		}
		if !so.Passed {
			failedStage = stage.Name
		}
	}

	outcome.FinishedAt = p.now()
	outcome.Duration = outcome.FinishedAt.Sub(outcome.StartedAt)
	final, kind := models.SuccessRunStatus, models.SuccessEventKind
	if failedStage != "" {
		final, kind = models.FailedRunStatus, models.FailureEventKind
	}
	if err := transition(&outcome, final); err != nil {
		return outcome, err
	}
	p.record(rc, "", "", kind, fmt.Sprintf("duration %s", outcome.Duration.Round(time.Second)))
	p.logger.Infof("Run %s for %s finished with status %s in %s", rc.RunID, rc.dateString(), outcome.Status, outcome.Duration.Round(time.Millisecond))
	return outcome, nil
}

// RunStage attempts every task of stage in declared order. A failing task
// does not prevent later tasks from running.
func (p *Pipeline) RunStage(ctx context.Context, rc RunContext, stage Stage) models.StageOutcome {
	so := models.StageOutcome{Name: stage.Name, Status: models.RunningStageStatus}
	p.record(rc, stage.Name, "", models.StartEventKind, fmt.Sprintf("%d task(s)", len(stage.Tasks)))

	for _, task := range stage.Tasks {
		if ctx.Err() != nil {
			// terminated: remaining tasks are not attempted and no summary is written
			return so
		}
		p.record(rc, stage.Name, task.Name, models.StartEventKind, task.Program)
		res := p.runner.Run(ctx, task, rc.Date)
		so.Tasks = append(so.Tasks, res)
		if ctx.Err() != nil {
			return so
		}
		if res.Succeeded() {
			p.record(rc, stage.Name, task.Name, models.SuccessEventKind, fmt.Sprintf("exit code 0 in %s", res.FinishedAt.Sub(res.StartedAt).Round(time.Second)))
		} else {
			p.record(rc, stage.Name, task.Name, models.FailureEventKind, fmt.Sprintf("%s: %s", res.Kind, res.Detail))
		}
	}

	so.Passed = stage.passes(so.Tasks)
	if so.Passed {
		so.Status = models.PassedStageStatus
		p.record(rc, stage.Name, "", models.SuccessEventKind, fmt.Sprintf("%d/%d task(s) succeeded", len(so.Tasks)-len(so.Failed()), len(so.Tasks)))
	} else {
		so.Status = models.FailedStageStatus
		p.record(rc, stage.Name, "", models.FailureEventKind, "failed task(s): "+taskNames(so.Failed()))
		p.logger.Errorf("Stage %s of run %s failed: %s", stage.Name, rc.RunID, taskNames(so.Failed()))
	}
	return so
}

func (p *Pipeline) abort(outcome *models.RunOutcome, cause error) (models.RunOutcome, error) {
	outcome.FinishedAt = p.now()
	outcome.Duration = outcome.FinishedAt.Sub(outcome.StartedAt)
	if err := transition(outcome, models.AbortedRunStatus); err != nil {
		return *outcome, err
	}
	p.logger.Warnf("Run %s aborted: %v", outcome.RunID, cause)
	return *outcome, errors.Wrapf(cause, "run %s aborted", outcome.RunID)
}

func (p *Pipeline) record(rc RunContext, stage, task string, kind models.EventKind, detail string) {
	runlog.SafeAppend(p.events, models.RunEvent{
		RunID:    rc.RunID,
		RunDate:  rc.dateString(),
		Stage:    stage,
		Task:     task,
		Kind:     kind,
		Detail:   detail,
		LoggedAt: p.now(),
	}, p.logger)
}

func transition(outcome *models.RunOutcome, next models.RunStatus) error {
	if !outcome.Status.CanTransition(next) {
		return errors.Errorf("invalid run transition %s -> %s", outcome.Status, next)
	}
	outcome.Status = next
	return nil
}

func taskNames(outcomes []models.ExitOutcome) string {
	names := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		names = append(names, o.Task)
	}
	return strings.Join(names, ", ")
}
