package memory

import (
	"context"
	"sync"

	"order-bridge/internal/domain"
	"order-bridge/internal/domain/model"
	"order-bridge/internal/domain/ports/repository"
)

var _ repository.BatchRunRepository = (*BatchRunRepo)(nil)

// BatchRunRepo keeps the most recent runs in process memory. It is used
// when no database is configured; history is lost on restart.
type BatchRunRepo struct {
	mu    sync.RWMutex
	cap   int
	runs  []*model.BatchRun // oldest first
	index map[string]int
}

func NewBatchRunRepo(capacity int) *BatchRunRepo {
	if capacity <= 0 {
		capacity = 200
	}
	return &BatchRunRepo{cap: capacity, index: make(map[string]int)}
}

func (r *BatchRunRepo) Save(_ context.Context, run *model.BatchRun) error {
	if run == nil || run.ID == "" {
		return domain.ErrInvalidArgument
	}
	cp := *run

	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.index[run.ID]; ok {
		r.runs[i] = &cp
		return nil
	}
	r.runs = append(r.runs, &cp)
	if len(r.runs) > r.cap {
		r.runs = r.runs[len(r.runs)-r.cap:]
	}
	r.reindex()
	return nil
}

func (r *BatchRunRepo) ListRecent(_ context.Context, limit int) ([]*model.BatchRun, error) {
	if limit <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.runs)
	if limit > n {
		limit = n
	}
	out := make([]*model.BatchRun, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		cp := *r.runs[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (r *BatchRunRepo) reindex() {
	clear(r.index)
	for i, run := range r.runs {
		r.index[run.ID] = i
	}
}
