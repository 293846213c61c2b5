package service_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ignatij/marketflow/pkg/models"
	"github.com/ignatij/marketflow/pkg/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessRunner(t *testing.T) {
	date := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	runner := service.NewProcessRunner(logger{})

	shellTask := func(t *testing.T, script string) models.Task {
		dir := t.TempDir()
		return models.Task{
			Name:    "fetch-a",
			Stage:   "fetch",
			Market:  "a",
			Program: "sh",
			Args:    []string{"-c", script, "marketflow", "--end", "today"},
			WorkDir: dir,
			LogPath: filepath.Join(dir, "logs", "fetch.log"),
		}
	}

	t.Run("Success", func(t *testing.T) {
		tk := shellTask(t, `echo "args: $@"; pwd`)
		outcome := runner.Run(context.Background(), tk, date)

		assert.True(t, outcome.Succeeded())
		assert.Equal(t, models.SuccessExitKind, outcome.Kind)
		assert.Equal(t, 0, outcome.Code)
		assert.Equal(t, []string{"-c", `echo "args: $@"; pwd`, "marketflow", "--end", "20261014"}, outcome.Args)
		assert.False(t, outcome.FinishedAt.Before(outcome.StartedAt))

		data, err := os.ReadFile(tk.LogPath)
		require.NoError(t, err)
		assert.Contains(t, string(data), "===== ")
		assert.Contains(t, string(data), "args: --end 20261014")
		assert.Contains(t, string(data), filepath.Base(tk.WorkDir))
	})

	t.Run("NonZeroExit", func(t *testing.T) {
		outcome := runner.Run(context.Background(), shellTask(t, "echo failing >&2; exit 3"), date)
		assert.False(t, outcome.Succeeded())
		assert.Equal(t, models.ExitFailureExitKind, outcome.Kind)
		assert.Equal(t, 3, outcome.Code)
		assert.Equal(t, "exit code 3", outcome.Detail)

		data, err := os.ReadFile(outcome.LogPath)
		require.NoError(t, err)
		assert.Contains(t, string(data), "failing")
	})

	t.Run("LogIsAppended", func(t *testing.T) {
		tk := shellTask(t, "echo run")
		runner.Run(context.Background(), tk, date)
		runner.Run(context.Background(), tk, date)

		data, err := os.ReadFile(tk.LogPath)
		require.NoError(t, err)
		assert.Equal(t, 2, strings.Count(string(data), "===== "))
		assert.Equal(t, 2, strings.Count(string(data), "run\n"))
	})

	t.Run("MissingExecutable", func(t *testing.T) {
		tk := shellTask(t, "")
		tk.Program = "marketflow-no-such-program"
		outcome := runner.Run(context.Background(), tk, date)
		assert.Equal(t, models.StartFailureExitKind, outcome.Kind)
		assert.Equal(t, models.StartFailureCode, outcome.Code)
		assert.Contains(t, outcome.Detail, "marketflow-no-such-program")
	})

	t.Run("BadWorkingDirectory", func(t *testing.T) {
		tk := shellTask(t, "true")
		tk.WorkDir = filepath.Join(tk.WorkDir, "does", "not", "exist")
		outcome := runner.Run(context.Background(), tk, date)
		assert.Equal(t, models.StartFailureExitKind, outcome.Kind)
		assert.False(t, outcome.Succeeded())
	})

	t.Run("EmptyProgram", func(t *testing.T) {
		tk := shellTask(t, "true")
		tk.Program = ""
		outcome := runner.Run(context.Background(), tk, date)
		assert.Equal(t, models.StartFailureExitKind, outcome.Kind)
		assert.Contains(t, outcome.Detail, "no program configured")
	})

	t.Run("ExtraEnvironment", func(t *testing.T) {
		tk := shellTask(t, `echo "market=$MARKETFLOW_MARKET"`)
		tk.Env = map[string]string{"MARKETFLOW_MARKET": "hk"}
		outcome := runner.Run(context.Background(), tk, date)
		require.True(t, outcome.Succeeded())

		data, err := os.ReadFile(tk.LogPath)
		require.NoError(t, err)
		assert.Contains(t, string(data), "market=hk")
	})

	t.Run("CancelledContextKillsChild", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		start := time.Now()
		outcome := runner.Run(ctx, shellTask(t, "sleep 10"), date)
		assert.Less(t, time.Since(start), 5*time.Second)
		assert.False(t, outcome.Succeeded())
	})
}
