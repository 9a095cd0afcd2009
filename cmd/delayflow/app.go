package main

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	_ "modernc.org/sqlite"

	"delayflow/internal/config"
	httphandler "delayflow/internal/handlers/http"
	"delayflow/internal/handlers/logtask"
	"delayflow/internal/handlers/shell"
	"delayflow/internal/queue"
	"delayflow/internal/scheduler"
	"delayflow/internal/worker"
)

// app holds what a single command invocation needs. It is populated by
// setup once flags are parsed.
type app struct {
	fs     afero.Fs
	v      *viper.Viper
	logger zerolog.Logger
	now    func() time.Time

	configPath string
	cfg        config.Config
	svc        *scheduler.Service
	db         *sql.DB
}

func newApp(fs afero.Fs, logger zerolog.Logger) *app {
	return &app{
		fs:     fs,
		v:      config.New(fs),
		logger: logger,
		now:    time.Now,
	}
}

func (a *app) setup() error {
	cfg, err := config.Load(a.v, a.fs, a.configPath)
	if err != nil {
		a.logger.Warn().Err(err).Float64("delay_hours", cfg.DelayHours).Msg("could not load config, using defaults")
	}
	a.cfg = cfg

	repo, err := a.openRepo()
	if err != nil {
		return err
	}

	registry := worker.NewRegistry(cfg.Handler).
		Register("log", logtask.Log{Logger: a.logger}).
		Register("shell", shell.Shell{}).
		Register("http", httphandler.HTTP{})

	a.svc = scheduler.NewService(repo, registry, cfg.Scheduler(),
		scheduler.WithClock(a.now), scheduler.WithLogger(a.logger))
	return nil
}

func (a *app) openRepo() (queue.Repository, error) {
	switch a.cfg.Store {
	case "sqlite":
		dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", a.cfg.DBPath)
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, errors.Wrap(err, "open db")
		}
		db.SetMaxOpenConns(1) // SQLite single writer
		if err := queue.EnsureSchema(db); err != nil {
			db.Close()
			return nil, err
		}
		a.db = db
		return queue.NewSQLiteRepo(db), nil
	default:
		return queue.NewJSONFileRepo(a.fs, a.cfg.TasksFile), nil
	}
}

func (a *app) close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}
