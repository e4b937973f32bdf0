package ai

import (
	"context"

	"order-bridge/internal/domain/model"
	"order-bridge/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.OrderExtractor = (*limitedExtractor)(nil)

type limitedExtractor struct {
	inner adapter.OrderExtractor
	sem   chan struct{}
}

// NewLimitedExtractor caps the number of AI jobs in flight at once.
func NewLimitedExtractor(inner adapter.OrderExtractor, maxConcurrent int) adapter.OrderExtractor {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedExtractor{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedExtractor) ExtractOrders(ctx context.Context, batch model.Batch) (*model.Extraction, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.ExtractOrders(ctx, batch)
}
