package livereload

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the push channel's Prometheus collectors.
type Metrics struct {
	clients prometheus.Gauge
	sent    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil
// registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "webpreview",
			Subsystem: "livereload",
			Name:      "clients",
			Help:      "Connected live-reload websocket clients.",
		}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webpreview",
			Subsystem: "livereload",
			Name:      "messages_sent_total",
			Help:      "Messages queued to live-reload clients by type.",
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(m.clients, m.sent)
	}
	return m
}
