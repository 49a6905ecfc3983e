package analysis

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type runRepoMemory struct {
	mu   sync.RWMutex
	runs []*Run
}

// NewRunRepoMemory keeps the run history for the lifetime of the process.
func NewRunRepoMemory() RunRepository {
	return &runRepoMemory{}
}

func (r *runRepoMemory) Create(_ context.Context, run *Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	cp := *run
	r.mu.Lock()
	r.runs = append(r.runs, &cp)
	r.mu.Unlock()
	return nil
}

func (r *runRepoMemory) GetByID(_ context.Context, id uuid.UUID) (*Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, run := range r.runs {
		if run.ID == id {
			cp := *run
			return &cp, nil
		}
	}
	return nil, ErrRunNotFound
}

func (r *runRepoMemory) List(_ context.Context, limit, offset int) ([]*Run, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := len(r.runs)
	items := []*Run{}
	// newest first
	for i := total - 1 - offset; i >= 0 && len(items) < limit; i-- {
		cp := *r.runs[i]
		items = append(items, &cp)
	}
	return items, total, nil
}
