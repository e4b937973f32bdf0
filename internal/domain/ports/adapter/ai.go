package adapter

import (
	"context"

	"order-bridge/internal/domain/model"
)

// OrderExtractor is the port for the AI side of the pipeline: it turns a
// chat batch into the model's raw answer (a serialized list of orders).
type OrderExtractor interface {
	ExtractOrders(ctx context.Context, batch model.Batch) (*model.Extraction, error)
}
