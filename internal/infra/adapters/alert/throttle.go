package alert

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"order-bridge/internal/domain/ports/adapter"
	"order-bridge/internal/infra/metrics"
	red "order-bridge/internal/infra/redis"
)

type limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

var _ Named = (*Throttled)(nil)

// Throttled lets at most limit alerts per bucket through per window. The
// bucket is the context's alert key, else the text. When the limiter is
// unreachable the alert is sent anyway.
type Throttled struct {
	inner  Named
	lim    limiter
	limit  int
	window time.Duration
	log    *zerolog.Logger
}

func NewThrottled(inner Named, lim limiter, limit int, window time.Duration, logger *zerolog.Logger) *Throttled {
	return &Throttled{inner: inner, lim: lim, limit: limit, window: window, log: logger}
}

func (t *Throttled) Name() string { return t.inner.Name() }

func (t *Throttled) Alert(ctx context.Context, text string) error {
	ok, err := t.lim.Allow(ctx, red.AlertKey(t.inner.Name()+"|"+adapter.AlertKey(ctx, text)), t.limit, t.window)
	if err != nil {
		t.log.Warn().Err(err).Msg("alert limiter unavailable, sending unthrottled")
	} else if !ok {
		metrics.IncAlert(t.inner.Name(), "throttled")
		return nil
	}
	return t.inner.Alert(ctx, text)
}
