// Package metric provides the Prometheus metrics registry and the bridge's
// core metric set.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bridge's core metrics.
type Metrics struct {
	SessionsActive   prometheus.Gauge
	SessionsTotal    prometheus.Counter
	FramesForwarded  *prometheus.CounterVec
	FramesBuffered   prometheus.Counter
	FramesDropped    *prometheus.CounterVec
	BufferFlushSize  prometheus.Histogram
	UpstreamConnect  prometheus.Histogram
	SessionCloses    *prometheus.CounterVec
	PassthroughTotal *prometheus.CounterVec
	ClaimsResolved   *prometheus.CounterVec
}

// Registry wraps a dedicated Prometheus registry with the bridge metrics
// pre-registered.
type Registry struct {
	registry *prometheus.Registry
	Metrics  *Metrics
}

// NewRegistry creates a registry with core bridge metrics plus Go runtime
// and process collectors.
func NewRegistry() *Registry {
	m := &Metrics{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gqlbridge",
			Name:      "sessions_active",
			Help:      "Number of active client sessions",
		}),
		SessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gqlbridge",
			Name:      "sessions_total",
			Help:      "Total client sessions accepted",
		}),
		FramesForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gqlbridge",
			Name:      "frames_forwarded_total",
			Help:      "Frames forwarded across the bridge",
		}, []string{"direction", "type"}),
		FramesBuffered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gqlbridge",
			Name:      "frames_buffered_total",
			Help:      "Frames buffered while awaiting upstream ack",
		}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gqlbridge",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped by routing policy",
		}, []string{"reason"}),
		BufferFlushSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gqlbridge",
			Name:      "buffer_flush_size",
			Help:      "Number of buffered frames flushed on upstream ack",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 256},
		}),
		UpstreamConnect: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gqlbridge",
			Name:      "upstream_connect_seconds",
			Help:      "Upstream WebSocket dial and handshake duration",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		SessionCloses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gqlbridge",
			Name:      "session_closes_total",
			Help:      "Session closes by sanitized close code",
		}, []string{"code"}),
		PassthroughTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gqlbridge",
			Name:      "passthrough_requests_total",
			Help:      "HTTP passthrough requests by upstream status class",
		}, []string{"status"}),
		ClaimsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gqlbridge",
			Name:      "claims_resolved_total",
			Help:      "Claims resolutions by source (token, session, anonymous)",
		}, []string{"source"}),
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		m.SessionsActive,
		m.SessionsTotal,
		m.FramesForwarded,
		m.FramesBuffered,
		m.FramesDropped,
		m.BufferFlushSize,
		m.UpstreamConnect,
		m.SessionCloses,
		m.PassthroughTotal,
		m.ClaimsResolved,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{registry: registry, Metrics: m}
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Handler returns the /metrics HTTP handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
