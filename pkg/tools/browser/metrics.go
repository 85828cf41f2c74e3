package browser

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the router's Prometheus collectors.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	previews prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil
// registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webpreview",
			Name:      "tool_calls_total",
			Help:      "Tool calls by tool name and outcome.",
		}, []string{"tool", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "webpreview",
			Name:      "tool_call_duration_seconds",
			Help:      "Tool call latency by tool name.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"tool"}),
		previews: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "webpreview",
			Name:      "active_previews",
			Help:      "Number of open preview sessions.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.calls, m.duration, m.previews)
	}
	return m
}

func (m *Metrics) observe(tool string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.calls.WithLabelValues(tool, status).Inc()
	m.duration.WithLabelValues(tool).Observe(time.Since(started).Seconds())
}

func (m *Metrics) setPreviews(n int) {
	m.previews.Set(float64(n))
}
