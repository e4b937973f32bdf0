package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Each metrics file enqueues its collectors from init(); nothing is exposed
// until MustRegister (or RegisterTo) runs.
var (
	once       sync.Once
	collectors []prometheus.Collector
)

func register(cs ...prometheus.Collector) {
	collectors = append(collectors, cs...)
}

// RegisterTo registers every enqueued collector with reg and stops at the
// first conflict.
func RegisterTo(reg prometheus.Registerer) error {
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// MustRegister registers with the default registry, which /metrics serves.
// Later calls are no-ops.
func MustRegister() {
	once.Do(func() {
		if err := RegisterTo(prometheus.DefaultRegisterer); err != nil {
			panic(err)
		}
	})
}

// label is applied to every free-form label value: trimmed, lower-cased,
// and "unknown" when empty.
func label(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return s
}
