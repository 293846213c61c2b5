package service

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ignatij/marketflow/pkg/models"
	"github.com/pkg/errors"
)

// Runner executes a single task. It never returns an error: launch problems
// and non-zero exits are both reported through the ExitOutcome.
type Runner interface {
	Run(ctx context.Context, task models.Task, date time.Time) models.ExitOutcome
}

// ProcessRunner runs tasks as child processes.
type ProcessRunner struct {
	logger Logger
	now    func() time.Time
}

func NewProcessRunner(logger Logger) *ProcessRunner {
	return &ProcessRunner{logger: logger, now: time.Now}
}

func (r *ProcessRunner) Run(ctx context.Context, task models.Task, date time.Time) models.ExitOutcome {
	args := ResolveArgs(task.Args, task.Vars, date)
	outcome := models.ExitOutcome{
		Task:      task.Name,
		Market:    task.Market,
		Args:      args,
		LogPath:   task.LogPath,
		StartedAt: r.now(),
	}
	startFailure := func(err error) models.ExitOutcome {
		outcome.Kind = models.StartFailureExitKind
		outcome.Code = models.StartFailureCode
		outcome.Detail = err.Error()
		outcome.FinishedAt = r.now()
		r.logger.Errorf("Task %s could not be started: %v", task.Name, err)
		return outcome
	}

	if task.Program == "" {
		return startFailure(errors.New("no program configured"))
	}

	logFile, err := openCapture(task.LogPath)
	if err != nil {
		return startFailure(err)
	}
	defer logFile.Close()

	cmdline := strings.Join(append([]string{task.Program}, args...), " ")
	fmt.Fprintf(logFile, "===== %s | %s | %s\n", outcome.StartedAt.Format(time.RFC3339), task.Name, cmdline)

	cmd := exec.CommandContext(ctx, task.Program, args...)
	cmd.Dir = task.WorkDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if len(task.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range task.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	r.logger.Infof("Starting task %s: %s", task.Name, cmdline)
	if err := cmd.Start(); err != nil {
		return startFailure(errors.Wrapf(err, "start %s", task.Program))
	}
	err = cmd.Wait()
	outcome.FinishedAt = r.now()

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return startFailure(errors.Wrapf(err, "wait for %s", task.Program))
		}
		outcome.Kind = models.ExitFailureExitKind
		outcome.Code = exitErr.ExitCode()
		outcome.Detail = fmt.Sprintf("exit code %d", outcome.Code)
		if ctx.Err() != nil {
			outcome.Detail += fmt.Sprintf(" (%v)", ctx.Err())
		}
		r.logger.Errorf("Task %s failed: %s", task.Name, outcome.Detail)
		return outcome
	}

	outcome.Kind = models.SuccessExitKind
	outcome.Code = 0
	r.logger.Infof("Task %s completed in %s", task.Name, outcome.FinishedAt.Sub(outcome.StartedAt).Round(time.Millisecond))
	return outcome
}

// openCapture opens the task's raw output file in append mode. An empty path
// discards output.
func openCapture(path string) (*os.File, error) {
	if path == "" {
		f, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
		if err != nil {
			return nil, errors.Wrap(err, "open null device")
		}
		return f, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrapf(err, "create log dir for %s", path)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open task log %s", path)
	}
	return f, nil
}
