package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(imagesPrunedTotal, janitorRunsTotal)
}

var (
	imagesPrunedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "images_pruned_total",
		Help: "Downloaded images removed after the retention period.",
	})

	janitorRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_janitor_runs_total",
			Help: "Image janitor sweeps by outcome.",
		},
		[]string{"result"}, // ok|error
	)
)

func AddImagesPruned(n int) {
	if n > 0 {
		imagesPrunedTotal.Add(float64(n))
	}
}

func IncJanitorRun(result string) {
	janitorRunsTotal.WithLabelValues(label(result)).Inc()
}
