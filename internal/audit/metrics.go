package audit

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors on a private registry
// so tests can construct as many instances as they like.
type Metrics struct {
	validationDecisions *prometheus.CounterVec
	queriesTotal        *prometheus.CounterVec
	queryDuration       prometheus.Histogram
	connectionsActive   prometheus.Gauge
	connectionsOpened   prometheus.Counter
	connectionsClosed   prometheus.Counter
	idleSweepClosed     prometheus.Counter

	registry *prometheus.Registry
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		validationDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbgateway_validation_decisions_total",
				Help: "Validator verdicts by decision and matched rule",
			},
			[]string{"decision", "rule"},
		),
		queriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbgateway_queries_total",
				Help: "Executed queries by database kind and outcome",
			},
			[]string{"kind", "status"},
		),
		queryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dbgateway_query_duration_seconds",
				Help:    "Wall-clock query execution time",
				Buckets: prometheus.DefBuckets,
			},
		),
		connectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dbgateway_connections_active",
				Help: "Currently registered live connections",
			},
		),
		connectionsOpened: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dbgateway_connections_opened_total",
				Help: "Connections opened since start",
			},
		),
		connectionsClosed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dbgateway_connections_closed_total",
				Help: "Connections closed since start",
			},
		),
		idleSweepClosed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dbgateway_idle_sweep_closed_total",
				Help: "Connections reclaimed by the idle sweeper",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.validationDecisions,
		m.queriesTotal,
		m.queryDuration,
		m.connectionsActive,
		m.connectionsOpened,
		m.connectionsClosed,
		m.idleSweepClosed,
	)
	return m
}

// Handler serves the /metrics endpoint in HTTP mode.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnectionOpened() {
	m.connectionsOpened.Inc()
	m.connectionsActive.Inc()
}

func (m *Metrics) ConnectionClosed() {
	m.connectionsClosed.Inc()
	m.connectionsActive.Dec()
}

func (m *Metrics) SweepClosed(n int) {
	m.idleSweepClosed.Add(float64(n))
}
