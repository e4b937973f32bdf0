package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(alertsTotal) }

var alertsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "alerts_total",
		Help: "Operator alerts by channel and result.",
	},
	[]string{"channel", "result"}, // result: sent|failed|throttled
)

func IncAlert(channel, result string) {
	alertsTotal.WithLabelValues(label(channel), label(result)).Inc()
}
