package worker

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"delayflow/internal/scheduler"
)

// Processor runs one scheduler pass.
type Processor interface {
	Process(ctx context.Context) (scheduler.ProcessResult, error)
}

// Runner triggers passes on a cron schedule. Overlapping triggers are
// skipped, so at most one pass runs at a time.
type Runner struct {
	proc   Processor
	cron   *cron.Cron
	spec   string
	logger zerolog.Logger
}

func NewRunner(proc Processor, spec string, logger zerolog.Logger) (*Runner, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, errors.Wrapf(err, "invalid cron spec %q", spec)
	}
	cl := cronLogger{l: logger}
	return &Runner{
		proc:   proc,
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		spec:   spec,
		logger: logger,
	}, nil
}

// Run executes one pass immediately, then follows the schedule until ctx is
// cancelled. It waits for an in-flight pass before returning.
func (r *Runner) Run(ctx context.Context) error {
	_, err := r.cron.AddFunc(r.spec, func() { r.pass(ctx) })
	if err != nil {
		return errors.Wrap(err, "schedule pass")
	}

	r.logger.Info().Str("spec", r.spec).Msg("runner started")
	r.pass(ctx)
	r.cron.Start()

	<-ctx.Done()
	<-r.cron.Stop().Done()
	r.logger.Info().Msg("runner stopped")
	return nil
}

func (r *Runner) pass(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	res, err := r.proc.Process(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("pass failed")
		return
	}
	r.logger.Debug().Int("executed", res.Executed).Int("removed", res.Removed).Msg("pass done")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ l zerolog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
