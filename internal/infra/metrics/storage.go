package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		storageRequestsTotal,
		tokenRefreshTotal,
		imageUploadsTotal,
	)
}

var (
	storageRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_requests_total",
			Help: "Authenticated Feishu calls by operation and outcome.",
		},
		[]string{"op", "outcome"}, // outcome: ok|replayed|http_error|network_error|auth_error
	)

	tokenRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_token_refresh_total",
			Help: "Tenant access token refresh attempts.",
		},
		[]string{"result"}, // ok|error
	)

	imageUploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_image_uploads_total",
			Help: "Image uploads by result.",
		},
		[]string{"result"}, // ok|error
	)
)

func IncStorageRequest(op, outcome string) {
	storageRequestsTotal.WithLabelValues(label(op), label(outcome)).Inc()
}

func IncTokenRefresh(result string) {
	tokenRefreshTotal.WithLabelValues(label(result)).Inc()
}

func IncImageUpload(result string) {
	imageUploadsTotal.WithLabelValues(label(result)).Inc()
}
