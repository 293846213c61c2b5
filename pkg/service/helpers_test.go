package service_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ignatij/marketflow/pkg/models"
)

type logger struct{}

func (l logger) Infof(format string, args ...interface{}) {
	// no-op
}

func (l logger) Warnf(format string, args ...interface{}) {
	// no-op
}

func (l logger) Errorf(format string, args ...interface{}) {
	// no-op
}

// fakeRunner returns configured exit codes instead of spawning processes.
type fakeRunner struct {
	mu      sync.Mutex
	codes   map[string]int  // task name -> exit code, default 0
	missing map[string]bool // task name -> start failure
	calls   []string
	dates   []time.Time
	onRun   func(task models.Task)
}

func (f *fakeRunner) Run(ctx context.Context, task models.Task, date time.Time) models.ExitOutcome {
	if f.onRun != nil {
		f.onRun(task)
	}
	f.mu.Lock()
	f.calls = append(f.calls, task.Name)
	f.dates = append(f.dates, date)
	f.mu.Unlock()

	out := models.ExitOutcome{Task: task.Name, Market: task.Market, Kind: models.SuccessExitKind}
	if f.missing[task.Name] {
		out.Kind = models.StartFailureExitKind
		out.Code = models.StartFailureCode
		out.Detail = fmt.Sprintf("exec: %q: executable file not found in $PATH", task.Program)
		return out
	}
	if code := f.codes[task.Name]; code != 0 {
		out.Kind = models.ExitFailureExitKind
		out.Code = code
		out.Detail = fmt.Sprintf("exit code %d", code)
	}
	return out
}

func (f *fakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func task(stage, market string) models.Task {
	return models.Task{
		Name:      stage + "-" + market,
		Stage:     stage,
		Market:    market,
		Program:   stage + ".py",
		OutputDir: "./data_" + market,
	}
}

// byLevel splits events into run-level, stage-level and task-level entries.
func byLevel(events []models.RunEvent) (run, stage, task []models.RunEvent) {
	for _, e := range events {
		switch {
		case e.Task != "":
			task = append(task, e)
		case e.Stage != "":
			stage = append(stage, e)
		default:
			run = append(run, e)
		}
	}
	return run, stage, task
}

func kinds(events []models.RunEvent) []models.EventKind {
	out := make([]models.EventKind, 0, len(events))
	for _, e := range events {
		out = append(out, e.Kind)
	}
	return out
}
