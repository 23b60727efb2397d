package protocol

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	requests   *prometheus.CounterVec
	responses  *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	pending    prometheus.Gauge
	reconnects prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}

	factory := promauto.With(reg)

	return &metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtcsession",
			Subsystem: "protocol",
			Name:      "requests_total",
			Help:      "Requests sent, by message type.",
		}, []string{"type"}),
		responses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtcsession",
			Subsystem: "protocol",
			Name:      "responses_total",
			Help:      "Responses matched to a pending request, by status.",
		}, []string{"status"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtcsession",
			Subsystem: "protocol",
			Name:      "dropped_frames_total",
			Help:      "Inbound frames that were discarded, by reason.",
		}, []string{"reason"}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "rtcsession",
			Subsystem: "protocol",
			Name:      "pending_requests",
			Help:      "Requests awaiting a response.",
		}),
		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rtcsession",
			Subsystem: "protocol",
			Name:      "reconnects_total",
			Help:      "Successful redials after an unexpected close.",
		}),
	}
}

func (m *metrics) request(typ string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(typ).Inc()
}

func (m *metrics) response(status string) {
	if m == nil {
		return
	}
	m.responses.WithLabelValues(status).Inc()
}

func (m *metrics) drop(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

func (m *metrics) reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}
