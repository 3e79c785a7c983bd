// Package metrics exposes Prometheus instrumentation for the interview server.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics ignores every call.
type Metrics struct {
	registry *prometheus.Registry

	UpstreamDuration *prometheus.HistogramVec
	UpstreamTotal    *prometheus.CounterVec

	ConnectionsActive prometheus.Gauge
	ConnectionsClosed *prometheus.CounterVec

	TurnsTotal      *prometheus.CounterVec
	SessionsTotal   *prometheus.CounterVec
	AudioBytesTotal prometheus.Counter

	mu       sync.Mutex
	upstream map[string]*UpstreamStat
}

// UpstreamStat summarizes calls to one service/provider pair for the status endpoint.
type UpstreamStat struct {
	Calls       int64   `json:"calls"`
	Errors      int64   `json:"errors"`
	MeanSeconds float64 `json:"meanSeconds"`
	LastSeconds float64 `json:"lastSeconds"`
}

// New creates a Metrics instance with its own registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "interview"
	}
	registry := prometheus.NewRegistry()

	upstreamDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Latency of calls to speech and language services",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service", "provider"},
	)
	upstreamTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_calls_total",
			Help:      "Calls to speech and language services by outcome",
		},
		[]string{"service", "provider", "outcome"},
	)
	connectionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_connections_active",
		Help:      "Live realtime interview connections",
	})
	connectionsClosed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_connections_closed_total",
			Help:      "Closed realtime connections by reason",
		},
		[]string{"reason"},
	)
	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Processed candidate turns by decision",
		},
		[]string{"decision"},
	)
	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session status transitions",
		},
		[]string{"status"},
	)
	audioBytes := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audio_bytes_received_total",
		Help:      "Candidate audio bytes received",
	})

	registry.MustRegister(
		upstreamDuration,
		upstreamTotal,
		connectionsActive,
		connectionsClosed,
		turnsTotal,
		sessionsTotal,
		audioBytes,
		prometheus.NewGoCollector(),
	)

	return &Metrics{
		registry:          registry,
		UpstreamDuration:  upstreamDuration,
		UpstreamTotal:     upstreamTotal,
		ConnectionsActive: connectionsActive,
		ConnectionsClosed: connectionsClosed,
		TurnsTotal:        turnsTotal,
		SessionsTotal:     sessionsTotal,
		AudioBytesTotal:   audioBytes,
		upstream:          make(map[string]*UpstreamStat),
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveUpstream records one external call.
func (m *Metrics) ObserveUpstream(service, provider string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.UpstreamDuration.WithLabelValues(service, provider).Observe(d.Seconds())
	m.UpstreamTotal.WithLabelValues(service, provider, outcome).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	key := service + "/" + provider
	st := m.upstream[key]
	if st == nil {
		st = &UpstreamStat{}
		m.upstream[key] = st
	}
	secs := d.Seconds()
	st.MeanSeconds = (st.MeanSeconds*float64(st.Calls) + secs) / float64(st.Calls+1)
	st.Calls++
	st.LastSeconds = secs
	if err != nil {
		st.Errors++
	}
}

// Upstream returns a copy of the per-service latency summary keyed by "service/provider".
func (m *Metrics) Upstream() map[string]UpstreamStat {
	out := map[string]UpstreamStat{}
	if m == nil {
		return out
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.upstream {
		out[k] = *v
	}
	return out
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Inc()
}

func (m *Metrics) ConnectionClosed(reason string) {
	if m == nil {
		return
	}
	m.ConnectionsActive.Dec()
	m.ConnectionsClosed.WithLabelValues(reason).Inc()
}

func (m *Metrics) Turn(decision string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(decision).Inc()
}

func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) AudioReceived(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.AudioBytesTotal.Add(float64(n))
}
