package worker

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"

	"delayflow/internal/domain"
	"delayflow/internal/scheduler"
)

// HandlerKey is the data field that selects a handler for a task.
const HandlerKey = "handler"

var ErrNoHandler = errors.New("no handler")

type Handler = scheduler.Handler

// Registry routes each task to the handler named by its data[HandlerKey],
// falling back to the default handler when the field is absent.
type Registry struct {
	handlers map[string]Handler
	fallback string
}

func NewRegistry(fallback string) *Registry {
	return &Registry{handlers: map[string]Handler{}, fallback: fallback}
}

func (r *Registry) Register(name string, h Handler) *Registry {
	r.handlers[name] = h
	return r
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Handle(ctx context.Context, task domain.Task) error {
	name := r.fallback
	if v, ok := task.Data[HandlerKey].(string); ok && v != "" {
		name = v
	}
	h, ok := r.handlers[name]
	if !ok {
		return errors.Wrapf(ErrNoHandler, "%q", name)
	}
	return h.Handle(ctx, task)
}
