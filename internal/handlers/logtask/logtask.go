// Package logtask provides the default handler: it records the task and
// performs no other work.
package logtask

import (
	"context"

	"github.com/rs/zerolog"

	"delayflow/internal/domain"
)

type Log struct {
	Logger zerolog.Logger
}

func (h Log) Handle(ctx context.Context, t domain.Task) error {
	h.Logger.Info().
		Str("task_id", t.ID).
		Str("name", t.Name).
		Time("created_at", t.CreatedAt).
		Interface("data", t.Data).
		Msg("executing task")
	return nil
}
