package cli_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ignatij/marketflow/internal/cli"
	"github.com/ignatij/marketflow/internal/config"
	"github.com/ignatij/marketflow/pkg/models"
	"github.com/ignatij/marketflow/pkg/runlog"
	"github.com/ignatij/marketflow/pkg/service"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func testConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Schedule: config.Schedule{Hour: 15, Minute: 30, Timezone: "Asia/Shanghai"},
		Logging:  config.Logging{Dir: filepath.Join(dir, "logs"), SummaryFile: "daily_task.log"},
		Fetch: config.TaskGroup{
			Program:   "python",
			Args:      []string{"fetch_kline.py", "--start", "{start}", "--end", "today", "--out", "{data_root}", "--workers", "{workers}", "--market", "{selector}"},
			WorkDir:   dir,
			LogFile:   "fetch.log",
			StartDate: "20190101",
			Workers:   3,
		},
		Select: config.TaskGroup{
			Program: "python",
			Args:    []string{"select_stock.py", "--data-dir", "{data_root}", "--config", "{config}"},
			WorkDir: dir,
			LogFile: "select.log",
			Gate:    "any",
			Workers: 1,
		},
		Markets: []config.Market{
			{Name: "a", DataRoot: filepath.Join(dir, "data"), Config: filepath.Join(dir, "configs.json")},
			{Name: "hk", DataRoot: filepath.Join(dir, "data_hk"), Config: filepath.Join(dir, "configs_hk.json"), Selector: "hk"},
		},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestBuildStages(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)

	stages, err := cli.BuildStages(cfg)
	require.NoError(t, err)
	require.Len(t, stages, 2)

	t.Run("StageOrderAndTasks", func(t *testing.T) {
		assert.Equal(t, cli.FetchStage, stages[0].Name)
		assert.Equal(t, cli.SelectStage, stages[1].Name)
		require.Len(t, stages[0].Tasks, 2)
		assert.Equal(t, "fetch-a", stages[0].Tasks[0].Name)
		assert.Equal(t, "fetch-hk", stages[0].Tasks[1].Name)
		assert.Equal(t, "select-a", stages[1].Tasks[0].Name)
		assert.Equal(t, "select-hk", stages[1].Tasks[1].Name)
		assert.Equal(t, filepath.Join(dir, "logs", "fetch.log"), stages[0].Tasks[1].LogPath)
		assert.Equal(t, filepath.Join(dir, "data_hk"), stages[0].Tasks[1].OutputDir)
	})

	t.Run("MarketsGetDistinctArguments", func(t *testing.T) {
		date := time.Date(2026, 10, 14, 0, 0, 0, 0, cfg.Location())

		a := service.ResolveArgs(stages[0].Tasks[0].Args, stages[0].Tasks[0].Vars, date)
		assert.Equal(t, []string{"fetch_kline.py", "--start", "20190101", "--end", "20261014",
			"--out", filepath.Join(dir, "data"), "--workers", "3"}, a)

		hk := service.ResolveArgs(stages[0].Tasks[1].Args, stages[0].Tasks[1].Vars, date)
		assert.Equal(t, []string{"fetch_kline.py", "--start", "20190101", "--end", "20261014",
			"--out", filepath.Join(dir, "data_hk"), "--workers", "3", "--market", "hk"}, hk)

		sel := service.ResolveArgs(stages[1].Tasks[1].Args, stages[1].Tasks[1].Vars, date)
		assert.Equal(t, []string{"select_stock.py", "--data-dir", filepath.Join(dir, "data_hk"),
			"--config", filepath.Join(dir, "configs_hk.json")}, sel)
	})

	t.Run("TasksDoNotShareArgSlices", func(t *testing.T) {
		stages[0].Tasks[0].Args[0] = "changed.py"
		assert.Equal(t, "fetch_kline.py", stages[0].Tasks[1].Args[0])
		assert.Equal(t, "fetch_kline.py", cfg.Fetch.Args[0])
	})

	t.Run("GateFromConfig", func(t *testing.T) {
		partial := []models.ExitOutcome{{Kind: models.SuccessExitKind}, {Kind: models.ExitFailureExitKind, Code: 1}}
		assert.False(t, stages[0].Gate(partial))
		assert.True(t, stages[1].Gate(partial))
	})

	t.Run("UnknownGate", func(t *testing.T) {
		bad := *cfg
		bad.Fetch.Gate = "most"
		_, err := cli.BuildStages(&bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stage fetch")
	})
}

func TestConfiguredPipelineEndToEnd(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.Fetch.Program = "sh"
	cfg.Fetch.Args = []string{"-c", "mkdir -p {data_root} && echo {date} > {data_root}/stamp && echo fetched {market}"}
	cfg.Select.Program = "sh"
	cfg.Select.Args = []string{"-c", "test -f {data_root}/stamp && echo selected {market}"}
	cfg.Select.Gate = "all"

	stages, err := cli.BuildStages(cfg)
	require.NoError(t, err)

	events, err := runlog.OpenFileLog(cfg.SummaryLogPath())
	require.NoError(t, err)
	p := service.NewPipeline(stages, service.NewProcessRunner(logger{}), events, logger{})

	date := time.Date(2026, 10, 14, 0, 0, 0, 0, cfg.Location())
	outcome, err := p.RunOnce(context.Background(), date)
	require.NoError(t, err)
	require.NoError(t, events.Close())
	assert.Equal(t, models.SuccessRunStatus, outcome.Status)

	for _, root := range []string{"data", "data_hk"} {
		stamp, err := os.ReadFile(filepath.Join(dir, root, "stamp"))
		require.NoError(t, err)
		assert.Equal(t, "20261014\n", string(stamp))
	}

	fetchLog, err := os.ReadFile(filepath.Join(dir, "logs", "fetch.log"))
	require.NoError(t, err)
	assert.Contains(t, string(fetchLog), "fetched a")
	assert.Contains(t, string(fetchLog), "fetched hk")

	summary, err := os.ReadFile(cfg.SummaryLogPath())
	require.NoError(t, err)
	assert.Contains(t, string(summary), "task fetch-hk success")
	assert.Contains(t, string(summary), "task select-a success")
	assert.Contains(t, string(summary), "run_date=2026-10-14")
}

func TestLoadedEnvReachesChild(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "marketflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  dir: `+filepath.Join(dir, "logs")+`
fetch:
  program: sh
  args: ["-c", "echo FLAG=$MF_DATA_FLAG lower=$mf_data_flag"]
  env: ["MF_DATA_FLAG=1"]
markets:
  - name: a
    data_root: `+filepath.Join(dir, "data")+`
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	stages, err := cli.BuildStages(cfg)
	require.NoError(t, err)
	fetch := stages[0].Tasks[0]
	assert.Equal(t, map[string]string{"MF_DATA_FLAG": "1"}, fetch.Env)

	res := service.NewProcessRunner(logger{}).Run(context.Background(), fetch, time.Now())
	require.True(t, res.Succeeded(), res.Detail)

	captured, err := os.ReadFile(cfg.TaskLogPath(cfg.Fetch))
	require.NoError(t, err)
	assert.Contains(t, string(captured), "FLAG=1 lower=\n")
}

func TestRunDate(t *testing.T) {
	shanghai, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)

	t.Run("DefaultsToTodayInZone", func(t *testing.T) {
		// 18:00 UTC is already the next day in Shanghai
		now := time.Date(2026, 10, 14, 18, 0, 0, 0, time.UTC)
		date, err := cli.RunDate("", shanghai, now)
		require.NoError(t, err)
		assert.Equal(t, "2026-10-15", date.Format(models.DateLayout))
		assert.Equal(t, 0, date.Hour())
	})

	t.Run("Explicit", func(t *testing.T) {
		date, err := cli.RunDate("2026-01-02", shanghai, time.Now())
		require.NoError(t, err)
		assert.True(t, date.Equal(time.Date(2026, 1, 2, 0, 0, 0, 0, shanghai)))
		assert.Equal(t, shanghai, date.Location())
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := cli.RunDate("20260102", shanghai, time.Now())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "YYYY-MM-DD")
	})
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "configs.json"), []byte("{}"), 0o644))
	now := time.Date(2026, 10, 14, 1, 0, 0, 0, time.UTC)

	t.Run("ReportsMissingStrategyConfig", func(t *testing.T) {
		var out bytes.Buffer
		found := func(name string) (string, error) { return "/usr/bin/" + name, nil }

		problems := cli.Check(&out, cfg, found, now)
		require.Len(t, problems, 1)
		assert.Contains(t, problems[0], "market hk")
		assert.Contains(t, out.String(), "next run at 2026-10-14T15:30:00+08:00")
		assert.Contains(t, out.String(), "Stage fetch: 2 task(s)")
	})

	t.Run("ReportsMissingProgramOnce", func(t *testing.T) {
		var out bytes.Buffer
		calls := 0
		missing := func(name string) (string, error) {
			calls++
			return "", errors.Errorf("executable file not found in $PATH")
		}

		problems := cli.Check(&out, cfg, missing, now)
		assert.Equal(t, 1, calls)
		require.Len(t, problems, 2)
		assert.Contains(t, problems[0], `program "python" not found`)
	})
}
