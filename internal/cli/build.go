package cli

import (
	"strconv"

	"github.com/ignatij/marketflow/internal/config"
	"github.com/ignatij/marketflow/internal/log"
	internal_storage "github.com/ignatij/marketflow/internal/storage"
	"github.com/ignatij/marketflow/pkg/models"
	"github.com/ignatij/marketflow/pkg/runlog"
	"github.com/ignatij/marketflow/pkg/service"
	"github.com/pkg/errors"
)

const (
	FetchStage  = "fetch"
	SelectStage = "select"
)

// BuildStages turns the configuration into the two ordered stages: data
// acquisition for every market, then selection for every market.
func BuildStages(cfg *config.Config) ([]service.Stage, error) {
	fetch, err := buildStage(cfg, FetchStage, cfg.Fetch)
	if err != nil {
		return nil, err
	}
	sel, err := buildStage(cfg, SelectStage, cfg.Select)
	if err != nil {
		return nil, err
	}
	return []service.Stage{fetch, sel}, nil
}

func buildStage(cfg *config.Config, name string, group config.TaskGroup) (service.Stage, error) {
	gate, err := service.GatePolicyByName(group.Gate)
	if err != nil {
		return service.Stage{}, errors.Wrapf(err, "stage %s", name)
	}
	env, err := group.EnvMap()
	if err != nil {
		return service.Stage{}, errors.Wrapf(err, "stage %s", name)
	}
	stage := service.Stage{Name: name, Gate: gate}
	for _, m := range cfg.Markets {
		stage.Tasks = append(stage.Tasks, models.Task{
			Name:      name + "-" + m.Name,
			Stage:     name,
			Market:    m.Name,
			Program:   group.Program,
			Args:      append([]string(nil), group.Args...),
			WorkDir:   group.WorkDir,
			OutputDir: m.DataRoot,
			LogPath:   cfg.TaskLogPath(group),
			Env:       env,
			Vars: map[string]string{
				"market":    m.Name,
				"selector":  m.Selector,
				"data_root": m.DataRoot,
				"config":    m.Config,
				"start":     group.StartDate,
				"workers":   strconv.Itoa(group.Workers),
			},
		})
	}
	return stage, nil
}

// openRunLog opens the summary file and, when a database is configured, the
// Postgres mirror. The returned closer releases both.
func openRunLog(cfg *config.Config) (runlog.Log, func(), error) {
	file, err := runlog.OpenFileLog(cfg.SummaryLogPath())
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.URL == "" {
		return file, func() { file.Close() }, nil
	}

	store, err := internal_storage.NewPostgresStore(cfg.Database.URL)
	if err != nil {
		file.Close()
		return nil, nil, errors.Wrap(err, "open run event store")
	}
	closer := func() {
		if err := store.Close(); err != nil {
			log.GetLogger().Warnf("Closing run event store: %v", err)
		}
		file.Close()
	}
	return runlog.Multi(log.GetLogger(), file, runlog.NewStoreLog(store, log.GetLogger())), closer, nil
}

// newPipeline wires configured stages to the process runner and RunLog.
func newPipeline(cfg *config.Config, events runlog.Log) (*service.Pipeline, error) {
	stages, err := BuildStages(cfg)
	if err != nil {
		return nil, err
	}
	logger := log.GetLogger()
	return service.NewPipeline(stages, service.NewProcessRunner(logger), events, logger), nil
}

func newTrigger(cfg *config.Config) service.Trigger {
	return service.Trigger{
		Hour:         cfg.Schedule.Hour,
		Minute:       cfg.Schedule.Minute,
		Location:     cfg.Location(),
		SkipWeekends: cfg.Schedule.SkipWeekends,
	}
}
