package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"delayflow/internal/domain"
	"delayflow/internal/queue"
)

const (
	DefaultDelay     = 10 * time.Hour
	DefaultRetention = 7 * 24 * time.Hour
)

var ErrEmptyName = errors.New("task name is required")

// Handler runs a due task. The task passed in is a copy; mutations are
// discarded.
type Handler interface {
	Handle(ctx context.Context, task domain.Task) error
}

type HandlerFunc func(ctx context.Context, task domain.Task) error

func (f HandlerFunc) Handle(ctx context.Context, task domain.Task) error { return f(ctx, task) }

// Config is fixed for the lifetime of a Service. Delay is applied when a task
// is added and never re-evaluated for existing tasks.
type Config struct {
	Delay     time.Duration
	Retention time.Duration
}

type Wait struct {
	ID        string        `json:"id,omitempty"`
	Name      string        `json:"name"`
	Remaining time.Duration `json:"remaining"`
}

type ProcessResult struct {
	Total    int    `json:"total"`
	Executed int    `json:"executed"`
	Failed   int    `json:"failed"`
	Removed  int    `json:"removed"`
	Waiting  []Wait `json:"waiting,omitempty"`
}

type PruneResult struct {
	Removed int `json:"removed"`
}

type Service struct {
	mu      sync.Mutex
	repo    queue.Repository
	handler Handler
	cfg     Config
	now     func() time.Time
	logger  zerolog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(repo queue.Repository, handler Handler, cfg Config, opts ...Option) *Service {
	if cfg.Delay < 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if handler == nil {
		handler = HandlerFunc(func(context.Context, domain.Task) error { return nil })
	}
	s := &Service{
		repo:    repo,
		handler: handler,
		cfg:     cfg,
		now:     time.Now,
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Config() Config { return s.cfg }

// Stored timestamps carry microsecond precision.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// Add records a new pending task due after the configured delay and persists
// the collection before returning. Duplicate names are allowed.
func (s *Service) Add(ctx context.Context, name string, data map[string]any) (domain.Task, error) {
	if name == "" {
		return domain.Task{}, ErrEmptyName
	}
	if data == nil {
		data = map[string]any{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.repo.Load(ctx)
	if err != nil {
		return domain.Task{}, errors.Wrap(err, "load tasks")
	}

	now := s.clock()
	task := domain.Task{
		ID:           "tsk_" + uuid.NewString(),
		Name:         name,
		CreatedAt:    now,
		ScheduledFor: now.Add(s.cfg.Delay),
		Status:       domain.StatusPending,
		Data:         data,
	}
	tasks = append(tasks, task)
	if err := s.repo.Save(ctx, tasks); err != nil {
		return domain.Task{}, errors.Wrap(err, "save tasks")
	}

	s.logger.Info().
		Str("task_id", task.ID).
		Str("name", task.Name).
		Time("scheduled_for", task.ScheduledFor).
		Msg("task added")
	return task, nil
}

// Process runs every pending task whose due time has passed, persists the
// collection and then prunes expired completions. A failing handler leaves
// its task pending and does not stop the pass.
func (s *Service) Process(ctx context.Context) (ProcessResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.repo.Load(ctx)
	if err != nil {
		return ProcessResult{}, errors.Wrap(err, "load tasks")
	}
	if len(tasks) == 0 {
		s.logger.Info().Msg("no tasks to process")
		return ProcessResult{}, nil
	}

	res := ProcessResult{Total: len(tasks)}
	now := s.clock()
	for i := range tasks {
		if ctx.Err() != nil {
			s.logger.Warn().Err(ctx.Err()).Msg("pass interrupted")
			break
		}
		t := &tasks[i]
		if t.Status != domain.StatusPending {
			continue
		}
		if !t.Due(now) {
			remaining := t.ScheduledFor.Sub(now)
			res.Waiting = append(res.Waiting, Wait{ID: t.ID, Name: t.Name, Remaining: remaining})
			s.logger.Debug().Str("name", t.Name).Dur("remaining", remaining).Msg("task not due")
			continue
		}

		if err := s.handler.Handle(ctx, t.Clone()); err != nil {
			res.Failed++
			s.logger.Error().Err(err).Str("task_id", t.ID).Str("name", t.Name).Msg("task failed")
			continue
		}
		completed := now
		t.Status = domain.StatusCompleted
		t.CompletedAt = &completed
		res.Executed++
		s.logger.Info().Str("task_id", t.ID).Str("name", t.Name).Msg("task completed")
	}

	// work finished before an interruption is still recorded
	ctx = context.WithoutCancel(ctx)
	if err := s.repo.Save(ctx, tasks); err != nil {
		return res, errors.Wrap(err, "save tasks")
	}

	_, pruned, err := s.cleanup(ctx, tasks)
	res.Removed = pruned.Removed
	if err != nil {
		return res, err
	}

	s.logger.Info().
		Int("executed", res.Executed).
		Int("failed", res.Failed).
		Int("waiting", len(res.Waiting)).
		Int("removed", res.Removed).
		Msg("pass finished")
	return res, nil
}

// Cleanup drops completed tasks whose completion is older than the retention
// window and persists the result only when something was removed.
func (s *Service) Cleanup(ctx context.Context, tasks []domain.Task) ([]domain.Task, PruneResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanup(ctx, tasks)
}

func (s *Service) cleanup(ctx context.Context, tasks []domain.Task) ([]domain.Task, PruneResult, error) {
	cutoff := s.clock().Add(-s.cfg.Retention)

	kept := tasks[:0]
	for _, t := range tasks {
		if retained(t, cutoff) {
			kept = append(kept, t)
		}
	}
	res := PruneResult{Removed: len(tasks) - len(kept)}
	if res.Removed == 0 {
		return kept, res, nil
	}

	s.logger.Info().Int("removed", res.Removed).Time("cutoff", cutoff).Msg("pruned old tasks")
	if err := s.repo.Save(ctx, kept); err != nil {
		return kept, res, errors.Wrap(err, "save pruned tasks")
	}
	return kept, res, nil
}

// retained keeps pending tasks and tasks completed at or after cutoff.
func retained(t domain.Task, cutoff time.Time) bool {
	if t.Status == domain.StatusPending {
		return true
	}
	return t.Status == domain.StatusCompleted && t.CompletedAt != nil && !t.CompletedAt.Before(cutoff)
}

// List returns stored tasks, restricted to an exact status when one is given.
func (s *Service) List(ctx context.Context, status domain.Status) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.repo.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load tasks")
	}
	if status == "" {
		return tasks, nil
	}
	filtered := []domain.Task{}
	for _, t := range tasks {
		if t.Status == status {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

// Get returns the task with the given id.
func (s *Service) Get(ctx context.Context, id string) (domain.Task, bool, error) {
	tasks, err := s.List(ctx, "")
	if err != nil {
		return domain.Task{}, false, err
	}
	for _, t := range tasks {
		if id != "" && t.ID == id {
			return t, true, nil
		}
	}
	return domain.Task{}, false, nil
}
