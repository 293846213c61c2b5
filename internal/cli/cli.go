package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignatij/marketflow/internal/config"
	internal_http "github.com/ignatij/marketflow/internal/http"
	"github.com/ignatij/marketflow/internal/log"
	"github.com/ignatij/marketflow/pkg/models"
	"github.com/ignatij/marketflow/pkg/service"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func SetupCLI(rootCmd *cobra.Command) {
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline every day at the configured time",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig(cmd)
			events, closeEvents, err := openRunLog(cfg)
			if err != nil {
				log.GetLogger().Errorf("Failed to open run log: %v", err)
				os.Exit(1)
			}
			defer closeEvents()

			pipeline, err := newPipeline(cfg, events)
			if err != nil {
				log.GetLogger().Errorf("Failed to build pipeline: %v", err)
				os.Exit(1)
			}
			scheduler, err := service.NewScheduler(pipeline, newTrigger(cfg), events, log.GetLogger())
			if err != nil {
				log.GetLogger().Errorf("Failed to create scheduler: %v", err)
				os.Exit(1)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
				status := daemonStatus{Pipeline: pipeline, Scheduler: scheduler}
				go func() {
					if err := internal_http.StartServer(ctx, addr, status); err != nil {
						log.GetLogger().Errorf("Health server stopped: %v", err)
					}
				}()
			}
			if err := scheduler.Start(ctx); err != nil {
				log.GetLogger().Errorf("Scheduler failed: %v", err)
				os.Exit(1)
			}
		},
	}

	scheduleCmd.Flags().String("listen", "", "Serve /health on this address, e.g. :8080 (disabled when empty)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once, immediately",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig(cmd)
			dateFlag, err := cmd.Flags().GetString("date")
			if err != nil {
				log.GetLogger().Errorf("Error retrieving date flag: %v", err)
				os.Exit(1)
			}
			date, err := RunDate(dateFlag, cfg.Location(), time.Now())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			events, closeEvents, err := openRunLog(cfg)
			if err != nil {
				log.GetLogger().Errorf("Failed to open run log: %v", err)
				os.Exit(1)
			}
			pipeline, err := newPipeline(cfg, events)
			if err != nil {
				closeEvents()
				log.GetLogger().Errorf("Failed to build pipeline: %v", err)
				os.Exit(1)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			outcome, err := pipeline.RunOnce(ctx, date)
			stop()
			closeEvents()
			printOutcome(os.Stdout, outcome)
			if err != nil || outcome.Status != models.SuccessRunStatus {
				if err != nil {
					log.GetLogger().Errorf("Run failed: %v", err)
				}
				os.Exit(1)
			}
		},
	}
	runCmd.Flags().String("date", "", "Run date as YYYY-MM-DD (default: today in the schedule timezone)")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and the environment it depends on",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig(cmd)
			problems := Check(os.Stdout, cfg, exec.LookPath, time.Now())
			if len(problems) > 0 {
				for _, p := range problems {
					fmt.Fprintf(os.Stderr, "Error: %s\n", p)
				}
				os.Exit(1)
			}
			fmt.Fprintln(os.Stdout, "Configuration OK")
		},
	}

	rootCmd.AddCommand(scheduleCmd, runCmd, checkCmd)
}

// daemonStatus exposes the in-flight flag and next trigger to the health server.
type daemonStatus struct {
	*service.Pipeline
	*service.Scheduler
}

func loadConfig(cmd *cobra.Command) *config.Config {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		log.GetLogger().Errorf("Error retrieving config flag: %v", err)
		os.Exit(1)
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.GetLogger().Errorf("Invalid configuration: %v", err)
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	level := cfg.Logging.Level
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		level = f.Value.String()
	}
	if err := log.SetLevel(level); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log.GetLogger().Debugf("Loaded configuration with %d market(s)", len(cfg.Markets))
	return cfg
}

// RunDate resolves the --date flag. An empty value means the calendar date of
// now in loc.
func RunDate(value string, loc *time.Location, now time.Time) (time.Time, error) {
	if value == "" {
		local := now.In(loc)
		return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc), nil
	}
	date, err := time.ParseInLocation(models.DateLayout, value, loc)
	if err != nil {
		return time.Time{}, errors.Errorf("invalid --date %q, expected YYYY-MM-DD", value)
	}
	return date, nil
}

// Check reports the schedule and stages to out and returns every problem
// that would make a run fail before its first task starts.
func Check(out io.Writer, cfg *config.Config, lookPath func(string) (string, error), now time.Time) []string {
	var problems []string

	trigger := newTrigger(cfg)
	fmt.Fprintf(out, "Schedule: daily at %s %s, next run at %s\n",
		trigger, trigger.Location, trigger.Next(now).Format(time.RFC3339))

	stages, err := BuildStages(cfg)
	if err != nil {
		return append(problems, err.Error())
	}

	seen := make(map[string]bool)
	for _, stage := range stages {
		fmt.Fprintf(out, "Stage %s: %d task(s)\n", stage.Name, len(stage.Tasks))
		for _, task := range stage.Tasks {
			fmt.Fprintf(out, "  %s: %s -> %s\n", task.Name, task.Program, task.LogPath)
			if !seen[task.Program] {
				seen[task.Program] = true
				if _, err := lookPath(task.Program); err != nil {
					problems = append(problems, fmt.Sprintf("program %q not found: %v", task.Program, err))
				}
			}
		}
	}

	for _, m := range cfg.Markets {
		if m.Config == "" {
			continue
		}
		if _, err := os.Stat(m.Config); err != nil {
			problems = append(problems, fmt.Sprintf("market %s: strategy config %s: %v", m.Name, m.Config, err))
		}
	}
	return problems
}

func printOutcome(out io.Writer, outcome models.RunOutcome) {
	fmt.Fprintf(out, "Run %s for %s: %s\n", outcome.RunID, outcome.Date.Format(models.DateLayout), outcome.Status)
	for _, so := range outcome.Stages {
		fmt.Fprintf(out, "  stage %s: %s\n", so.Name, so.Status)
		for _, t := range so.Tasks {
			fmt.Fprintf(out, "    %s: %s (code %d)\n", t.Task, t.Kind, t.Code)
		}
	}
}
