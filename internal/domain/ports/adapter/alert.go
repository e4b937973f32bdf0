package adapter

import "context"

// Alerter delivers operator notifications. Delivery is best-effort.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

type alertKeyCtx struct{}

// WithAlertKey names the bucket a throttled channel counts the alert in.
// Alerts whose text varies per occurrence should set one.
func WithAlertKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, alertKeyCtx{}, key)
}

// AlertKey returns the bucket set by WithAlertKey, or text when none is set.
func AlertKey(ctx context.Context, text string) string {
	if k, ok := ctx.Value(alertKeyCtx{}).(string); ok && k != "" {
		return k
	}
	return text
}
