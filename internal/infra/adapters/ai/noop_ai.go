package ai

import (
	"context"
	"encoding/json"
	"time"

	"order-bridge/internal/domain/model"
	"order-bridge/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

var _ adapter.OrderExtractor = (*NoopExtractor)(nil)

// NoopExtractor implements adapter.OrderExtractor for local/dev runs.
// It answers with one order per image in the batch, using the text that
// preceded the image as the note.
type NoopExtractor struct {
	log *zerolog.Logger
}

func NewNoopExtractor(logger *zerolog.Logger) *NoopExtractor {
	l := logger.With().Str("component", "noop_ai").Logger()
	return &NoopExtractor{log: &l}
}

func (a *NoopExtractor) ExtractOrders(ctx context.Context, batch model.Batch) (*model.Extraction, error) {
	// Simulate slight processing time and respect ctx
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	type order struct {
		Note     string `json:"客户备注信息"`
		Urgent   string `json:"是否加急"`
		Quantity int    `json:"下单数量"`
		Image    string `json:"图片"`
	}
	orders := []order{}
	note := ""
	for _, s := range batch {
		switch s.Type {
		case model.SnippetText:
			note = s.Content
		case model.SnippetImage:
			orders = append(orders, order{Note: note, Urgent: "否", Quantity: 1, Image: s.Content})
			note = ""
		}
	}
	b, _ := json.Marshal(orders)
	a.log.Info().Int("snippets", len(batch)).Int("orders", len(orders)).Msg("noop extraction")

	return &model.Extraction{
		Job:    model.AIJob{ID: "noop", ConversationID: "noop", Status: model.AIJobStatusCompleted},
		Answer: string(b),
	}, nil
}
