package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"order-bridge/internal/domain/ports/adapter"
)

var _ adapter.Alerter = (*NoopAlerter)(nil)

// NoopAlerter implements adapter.Alerter for local/dev runs.
// It logs alerts instead of sending them.
type NoopAlerter struct {
	log *zerolog.Logger
}

func NewNoopAlerter(logger *zerolog.Logger) *NoopAlerter {
	return &NoopAlerter{log: logger}
}

func (a *NoopAlerter) Name() string { return "noop" }

func (a *NoopAlerter) Alert(ctx context.Context, text string) error {
	a.log.Info().Str("alert", text).Msg("[noop-alert]")
	return nil
}
