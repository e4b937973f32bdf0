package alert

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"order-bridge/internal/domain/ports/adapter"
	"order-bridge/internal/infra/metrics"
)

// Named is an alerter that reports a channel name for metrics and logs.
type Named interface {
	adapter.Alerter
	Name() string
}

var _ adapter.Alerter = (*Fanout)(nil)

// Fanout delivers every alert to all channels and joins their errors.
type Fanout struct {
	channels []Named
	log      *zerolog.Logger
}

func NewFanout(logger *zerolog.Logger, channels ...Named) *Fanout {
	l := logger.With().Str("component", "alerts").Logger()
	return &Fanout{channels: channels, log: &l}
}

func (f *Fanout) Alert(ctx context.Context, text string) error {
	var errs []error
	for _, ch := range f.channels {
		if err := ch.Alert(ctx, text); err != nil {
			metrics.IncAlert(ch.Name(), "failed")
			f.log.Warn().Err(err).Str("channel", ch.Name()).Msg("alert delivery failed")
			errs = append(errs, err)
			continue
		}
		metrics.IncAlert(ch.Name(), "sent")
	}
	return errors.Join(errs...)
}

// Len reports how many channels are configured.
func (f *Fanout) Len() int { return len(f.channels) }

// Async sends the alert on its own goroutine with a bounded deadline.
// Failures are only logged.
func Async(a adapter.Alerter, logger *zerolog.Logger, text string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := a.Alert(ctx, text); err != nil {
			logger.Warn().Err(err).Msg("alert not delivered")
		}
	}()
}
