package adapter

import (
	"context"
	"encoding/json"

	"order-bridge/internal/domain/model"
)

// OrderStore is the port for the table-backed store.
type OrderStore interface {
	// UploadImage uploads a local file and returns its storage file token.
	UploadImage(ctx context.Context, path string) (string, error)

	// BatchCreate writes all records in one call and returns the raw response body.
	BatchCreate(ctx context.Context, records []model.StorageRecord) (json.RawMessage, error)
}
