package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiCallsLatencyMs,
		aiJobsTotal,
		aiJobPolls,
	)
}

var (
	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_calls_latency_ms",
			Help:    "Coze HTTP call latency in milliseconds, per step.",
			Buckets: []float64{50, 100, 200, 400, 800, 1600, 3000, 5000, 10000, 30000},
		},
		[]string{"step", "success"}, // step: submit|retrieve|messages
	)

	aiJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_jobs_total",
			Help: "Extraction jobs by terminal outcome.",
		},
		[]string{"status"}, // completed|failed|timeout|submit_error
	)

	aiJobPolls = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ai_job_polls",
			Help:    "Number of status polls until a job reached a terminal state.",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 55, 75},
		},
	)
)

func ObserveAICall(step string, latencyMs int64, success bool) {
	aiCallsLatencyMs.WithLabelValues(label(step), strconv.FormatBool(success)).Observe(float64(latencyMs))
}

func IncAIJob(status string) {
	aiJobsTotal.WithLabelValues(label(status)).Inc()
}

func ObserveAIJobPolls(n int) {
	aiJobPolls.Observe(float64(n))
}
