package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		batchesProcessedTotal,
		batchDurationSeconds,
		batchSnippets,
		accumulatorPending,
		recordsPushedTotal,
	)
}

var (
	batchesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batches_processed_total",
			Help: "Flushed batches by pipeline outcome.",
		},
		[]string{"status"}, // BatchRunStatus values
	)

	batchDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_duration_seconds",
			Help:    "Wall time from flush to pipeline completion.",
			Buckets: []float64{0.1, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	batchSnippets = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_snippets",
			Help:    "Snippets per flushed batch.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		},
	)

	accumulatorPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "accumulator_pending_snippets",
			Help: "Snippets buffered and waiting for the idle timer.",
		},
	)

	recordsPushedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "records_pushed_total",
			Help: "Order rows written to the spreadsheet.",
		},
	)
)

func ObserveBatch(status string, snippets int, seconds float64) {
	batchesProcessedTotal.WithLabelValues(label(status)).Inc()
	batchSnippets.Observe(float64(snippets))
	batchDurationSeconds.Observe(seconds)
}

func SetAccumulatorPending(n int) {
	accumulatorPending.Set(float64(n))
}

func AddRecordsPushed(n int) {
	recordsPushedTotal.Add(float64(n))
}

var (
	snippetsAppendedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snippets_appended_total",
			Help: "Snippets accepted into the pending batch, by type.",
		},
		[]string{"type"},
	)

	batchesFlushedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batches_flushed_total",
			Help: "Batches handed to the pipeline, by trigger.",
		},
		[]string{"trigger"}, // idle|manual
	)
)

func init() { register(snippetsAppendedTotal, batchesFlushedTotal) }

func IncSnippetAppended(kind string) {
	snippetsAppendedTotal.WithLabelValues(label(kind)).Inc()
}

func IncBatchFlushed(trigger string) {
	batchesFlushedTotal.WithLabelValues(label(trigger)).Inc()
}
