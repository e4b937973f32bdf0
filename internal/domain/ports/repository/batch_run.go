package repository

import (
	"context"

	"order-bridge/internal/domain/model"
)

type BatchRunRepository interface {
	Save(ctx context.Context, run *model.BatchRun) error
	// ListRecent returns at most limit runs, newest first.
	ListRecent(ctx context.Context, limit int) ([]*model.BatchRun, error)
}
