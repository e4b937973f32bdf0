package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		telegramMessagesTotal,
		telegramImageDownloadsTotal,
	)
}

var (
	telegramMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_messages_total",
			Help: "Group messages seen by the listener.",
		},
		[]string{"kind", "result"}, // kind: text|image|other; result: accepted|ignored
	)

	telegramImageDownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_image_downloads_total",
			Help: "Photo downloads into the image directory.",
		},
		[]string{"result"}, // ok|exists|error
	)
)

func IncTelegramMessage(kind, result string) {
	telegramMessagesTotal.WithLabelValues(label(kind), label(result)).Inc()
}

func IncImageDownload(result string) {
	telegramImageDownloadsTotal.WithLabelValues(label(result)).Inc()
}
