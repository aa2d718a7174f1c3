package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink reports counters and durations to a Prometheus
// registry, using the metric name as the value of a single "metric"
// label. The tags passed to IncrCounter/ObserveDuration are ignored.
type PrometheusSink struct {
	counters  *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewPrometheusSink registers and returns a sink bound to reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		counters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hermes",
			Name:      "events_total",
			Help:      "Count of hermes reactivity-engine events by metric name.",
		}, []string{"metric"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hermes",
			Name:      "event_duration_seconds",
			Help:      "Duration of hermes reactivity-engine events by metric name.",
		}, []string{"metric"}),
	}
	reg.MustRegister(s.counters, s.durations)
	return s
}

func (s *PrometheusSink) IncrCounter(name string, _ map[string]string) {
	s.counters.WithLabelValues(name).Inc()
}

func (s *PrometheusSink) ObserveDuration(name string, d time.Duration, _ map[string]string) {
	s.durations.WithLabelValues(name).Observe(d.Seconds())
}
