package resolver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	probeLatency *prometheus.HistogramVec
	probeErrors  *prometheus.CounterVec
}

// newMetrics returns nil when reg is nil; the methods are no-ops on nil.
func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}

	factory := promauto.With(reg)

	return &metrics{
		probeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rtcsession",
			Subsystem: "resolver",
			Name:      "probe_latency_seconds",
			Help:      "Round-trip time of successful endpoint probes",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"endpoint"}),

		probeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtcsession",
			Subsystem: "resolver",
			Name:      "probe_errors_total",
			Help:      "Failed endpoint probes",
		}, []string{"endpoint"}),
	}
}

func (m *metrics) probeSucceeded(uri string, rtt time.Duration) {
	if m == nil {
		return
	}
	m.probeLatency.WithLabelValues(uri).Observe(rtt.Seconds())
}

func (m *metrics) probeFailed(uri string) {
	if m == nil {
		return
	}
	m.probeErrors.WithLabelValues(uri).Inc()
}
