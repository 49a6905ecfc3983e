package analysis

import (
	"context"

	"github.com/google/uuid"
)

// RunRepository persists the batch run history.
type RunRepository interface {
	Create(ctx context.Context, r *Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*Run, error)
	List(ctx context.Context, limit, offset int) ([]*Run, int, error)
}
