package queue

import (
	"context"

	"github.com/cockroachdb/errors"

	"delayflow/internal/domain"
)

// ErrMalformed is returned when the stored collection cannot be decoded.
var ErrMalformed = errors.New("malformed task store")

// Repository persists the whole task collection. Load returns an empty
// collection when nothing has been stored yet; Save replaces everything.
type Repository interface {
	Load(ctx context.Context) ([]domain.Task, error)
	Save(ctx context.Context, tasks []domain.Task) error
}
