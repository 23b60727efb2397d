package negotiation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	negotiations *prometheus.CounterVec
	streams      prometheus.Gauge
	candidates   prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}

	factory := promauto.With(reg)

	return &metrics{
		negotiations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtcsession",
			Subsystem: "negotiation",
			Name:      "negotiations_total",
			Help:      "Completed negotiations, by direction and status.",
		}, []string{"direction", "status"}),
		streams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "rtcsession",
			Subsystem: "negotiation",
			Name:      "streams",
			Help:      "Registered streams.",
		}),
		candidates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rtcsession",
			Subsystem: "negotiation",
			Name:      "candidates_sent_total",
			Help:      "Local candidate batches acknowledged by the backend.",
		}),
	}
}

func (m *metrics) negotiated(d Direction, s Status) {
	if m == nil {
		return
	}
	m.negotiations.WithLabelValues(string(d), s.String()).Inc()
}

func (m *metrics) setStreams(n int) {
	if m == nil {
		return
	}
	m.streams.Set(float64(n))
}

func (m *metrics) candidate() {
	if m == nil {
		return
	}
	m.candidates.Inc()
}
