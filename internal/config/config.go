// Package config loads the marketflow configuration from a YAML file, the
// environment (MARKETFLOW_*) and an optional .env file.
package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"
	_ "time/tzdata" // timezone database for minimal containers

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	EnvPrefix         = "MARKETFLOW"
	DefaultConfigName = "marketflow"
)

type Config struct {
	Schedule Schedule  `mapstructure:"schedule"`
	Logging  Logging   `mapstructure:"logging"`
	Database Database  `mapstructure:"database"`
	Fetch    TaskGroup `mapstructure:"fetch"`
	Select   TaskGroup `mapstructure:"select"`
	Markets  []Market  `mapstructure:"markets" validate:"dive"`

	location *time.Location
}

type Schedule struct {
	Hour         int    `mapstructure:"hour" validate:"min=0,max=23"`
	Minute       int    `mapstructure:"minute" validate:"min=0,max=59"`
	Timezone     string `mapstructure:"timezone" validate:"required"`
	SkipWeekends bool   `mapstructure:"skip_weekends"`
}

type Logging struct {
	Level       string `mapstructure:"level"`
	Dir         string `mapstructure:"dir"`
	SummaryFile string `mapstructure:"summary_file"`
}

type Database struct {
	URL string `mapstructure:"url"` // optional Postgres mirror of the RunLog
}

// TaskGroup describes one task family; one task per market is built from it.
type TaskGroup struct {
	Program   string            `mapstructure:"program" validate:"required"`
	Args      []string          `mapstructure:"args"`
	WorkDir   string            `mapstructure:"work_dir"`
	LogFile   string            `mapstructure:"log_file"`
	Gate      string            `mapstructure:"gate" validate:"omitempty,oneof=all any"`
	StartDate string            `mapstructure:"start_date"`
	Workers   int               `mapstructure:"workers" validate:"min=1"`
	Env       []string          `mapstructure:"env"` // NAME=value entries, names case-sensitive
}

type Market struct {
	Name     string `mapstructure:"name" validate:"required"`
	DataRoot string `mapstructure:"data_root" validate:"required"`
	Config   string `mapstructure:"config"`   // selection strategy document, passed through opaquely
	Selector string `mapstructure:"selector"` // value of the fetch program's market flag; empty omits it
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("schedule.hour", 15)
	v.SetDefault("schedule.minute", 30)
	v.SetDefault("schedule.timezone", "Asia/Shanghai")
	v.SetDefault("schedule.skip_weekends", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.dir", "./logs")
	v.SetDefault("logging.summary_file", "daily_task.log")

	v.SetDefault("database.url", "")

	v.SetDefault("fetch.program", "python")
	v.SetDefault("fetch.args", []string{
		"fetch_kline.py",
		"--datasource", "mootdx",
		"--frequency", "4",
		"--exclude-gem", "true",
		"--start", "{start}",
		"--end", "today",
		"--out", "{data_root}",
		"--workers", "{workers}",
		"--market", "{selector}",
	})
	v.SetDefault("fetch.work_dir", ".")
	v.SetDefault("fetch.log_file", "fetch.log")
	v.SetDefault("fetch.gate", "all")
	v.SetDefault("fetch.start_date", "20190101")
	v.SetDefault("fetch.workers", 3)

	v.SetDefault("select.program", "python")
	v.SetDefault("select.args", []string{
		"select_stock.py",
		"--data-dir", "{data_root}",
		"--config", "{config}",
	})
	v.SetDefault("select.work_dir", ".")
	v.SetDefault("select.log_file", "select.log")
	v.SetDefault("select.gate", "all")
	v.SetDefault("select.workers", 1)

	v.SetDefault("markets", []map[string]interface{}{
		{"name": "a", "data_root": "./data", "config": "./configs.json"},
		{"name": "hk", "data_root": "./data_hk", "config": "./configs_hk.json", "selector": "hk"},
	})
}

// Load reads the configuration. An empty path looks for marketflow.yaml in
// the working directory and falls back to defaults when it is absent.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load .env")
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.Wrap(err, "read config")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the configuration and resolves the schedule timezone.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return describeFieldError(fieldErrs[0])
		}
		return errors.Wrap(err, "validate config")
	}

	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return errors.Wrapf(err, "schedule.timezone %q", c.Schedule.Timezone)
	}
	c.location = loc

	for name, g := range map[string]TaskGroup{"fetch": c.Fetch, "select": c.Select} {
		if strings.TrimSpace(g.Program) == "" {
			return errors.Errorf("%s.program is required", name)
		}
		if _, err := g.EnvMap(); err != nil {
			return errors.Wrapf(err, "%s.env", name)
		}
	}

	if len(c.Markets) == 0 {
		return errors.New("at least one market is required")
	}
	names := make(map[string]struct{}, len(c.Markets))
	roots := make(map[string]string, len(c.Markets))
	for _, m := range c.Markets {
		if _, dup := names[m.Name]; dup {
			return errors.Errorf("duplicate market %q", m.Name)
		}
		names[m.Name] = struct{}{}

		root := filepath.Clean(m.DataRoot)
		if other, dup := roots[root]; dup {
			return errors.Errorf("markets %q and %q share data_root %s", other, m.Name, root)
		}
		roots[root] = m.Name
	}
	return nil
}

// describeFieldError renders a validation failure using configuration keys,
// e.g. "markets[1].data_root is required".
func describeFieldError(fe validator.FieldError) error {
	key := fe.Namespace()
	if i := strings.Index(key, "."); i >= 0 {
		key = key[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return errors.Errorf("%s is required", key)
	case "min":
		return errors.Errorf("%s must be at least %s, got %v", key, fe.Param(), fe.Value())
	case "max":
		return errors.Errorf("%s must be at most %s, got %v", key, fe.Param(), fe.Value())
	case "oneof":
		return errors.Errorf("%s %q must be one of: %s", key, fe.Value(), fe.Param())
	default:
		return errors.Errorf("%s failed %s validation", key, fe.Tag())
	}
}

// EnvMap parses the NAME=value entries of Env. Names keep their case and a
// later entry overrides an earlier one.
func (g TaskGroup) EnvMap() (map[string]string, error) {
	if len(g.Env) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(g.Env))
	for _, entry := range g.Env {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, errors.Errorf("entry %q must be NAME=value", entry)
		}
		env[name] = value
	}
	return env, nil
}

// Location returns the schedule timezone resolved by Validate.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// SummaryLogPath is the path of the daily task summary log.
func (c *Config) SummaryLogPath() string {
	return filepath.Join(c.Logging.Dir, c.Logging.SummaryFile)
}

// TaskLogPath is the raw output capture file of a task family.
func (c *Config) TaskLogPath(g TaskGroup) string {
	if g.LogFile == "" {
		return ""
	}
	return filepath.Join(c.Logging.Dir, g.LogFile)
}
