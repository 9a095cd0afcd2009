package config

import (
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"delayflow/internal/scheduler"
)

const (
	DefaultDelayHours    = 10
	DefaultRetentionDays = 7
	DefaultConfigFile    = "config.json"
	EnvPrefix            = "DELAYFLOW"
)

type Config struct {
	DelayHours    float64 `mapstructure:"delay_hours"`
	RetentionDays float64 `mapstructure:"retention_days"`
	Store         string  `mapstructure:"store"`
	TasksFile     string  `mapstructure:"tasks_file"`
	DBPath        string  `mapstructure:"db_path"`
	Cron          string  `mapstructure:"cron"`
	Addr          string  `mapstructure:"addr"`
	Handler       string  `mapstructure:"handler"`
}

func Default() Config {
	return Config{
		DelayHours:    DefaultDelayHours,
		RetentionDays: DefaultRetentionDays,
		Store:         "json",
		TasksFile:     "tasks.json",
		DBPath:        "delayflow.db",
		Cron:          "@every 1m",
		Addr:          ":8080",
		Handler:       "log",
	}
}

// Scheduler converts the configured hours and days into scheduler.Config.
func (c Config) Scheduler() scheduler.Config {
	return scheduler.Config{
		Delay:     time.Duration(c.DelayHours * float64(time.Hour)),
		Retention: time.Duration(c.RetentionDays * float64(24*time.Hour)),
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("delay_hours", d.DelayHours)
	v.SetDefault("retention_days", d.RetentionDays)
	v.SetDefault("store", d.Store)
	v.SetDefault("tasks_file", d.TasksFile)
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("cron", d.Cron)
	v.SetDefault("addr", d.Addr)
	v.SetDefault("handler", d.Handler)
}

// New returns a viper instance with defaults and DELAYFLOW_* environment
// overrides, reading its config file from fs.
func New(fs afero.Fs) *viper.Viper {
	v := viper.New()
	v.SetFs(fs)
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads path into v and returns the resulting configuration. A missing
// file is not an error. Any other failure still yields a usable Config built
// from defaults and environment, along with the error so the caller can warn.
func Load(v *viper.Viper, fs afero.Fs, path string) (Config, error) {
	var loadErr error
	if path != "" {
		if ok, _ := afero.Exists(fs, path); ok {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				loadErr = errors.Wrapf(err, "read config %s", path)
			}
		}
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		loadErr = errors.CombineErrors(loadErr, errors.Wrap(err, "decode config"))
		cfg = Default()
	}
	if err := cfg.validate(); err != nil {
		loadErr = errors.CombineErrors(loadErr, err)
	}
	return cfg, loadErr
}

// validate resets invalid values to their defaults and reports what it reset.
func (c *Config) validate() error {
	d := Default()
	var errs error
	switch {
	case c.DelayHours < 0:
		errs = errors.CombineErrors(errs, errors.Newf("delay_hours must not be negative, got %v", c.DelayHours))
		c.DelayHours = d.DelayHours
	case overflows(c.DelayHours, time.Hour):
		errs = errors.CombineErrors(errs, errors.Newf("delay_hours %v is out of range", c.DelayHours))
		c.DelayHours = d.DelayHours
	}
	switch {
	case c.RetentionDays <= 0:
		errs = errors.CombineErrors(errs, errors.Newf("retention_days must be positive, got %v", c.RetentionDays))
		c.RetentionDays = d.RetentionDays
	case overflows(c.RetentionDays, 24*time.Hour):
		errs = errors.CombineErrors(errs, errors.Newf("retention_days %v is out of range", c.RetentionDays))
		c.RetentionDays = d.RetentionDays
	}
	if c.Store != "json" && c.Store != "sqlite" {
		errs = errors.CombineErrors(errs, errors.Newf("unknown store %q", c.Store))
		c.Store = d.Store
	}
	if _, err := cron.ParseStandard(c.Cron); err != nil {
		errs = errors.CombineErrors(errs, errors.Wrapf(err, "cron %q", c.Cron))
		c.Cron = d.Cron
	}
	return errs
}

// overflows reports whether n units do not fit in a time.Duration.
func overflows(n float64, unit time.Duration) bool {
	return math.IsNaN(n) || n*float64(unit) >= math.MaxInt64
}
