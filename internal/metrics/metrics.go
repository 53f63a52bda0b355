package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the collectors of one server. A nil *Metrics records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	AuthOperations   *prometheus.CounterVec
	TokensIssued     *prometheus.CounterVec
	CatalogChanges   *prometheus.CounterVec
	EventPublishErrs *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		AuthOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tienda_auth_operations_total",
				Help: "Session operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		TokensIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tienda_tokens_issued_total",
				Help: "Access and refresh tokens minted",
			},
			[]string{"kind"},
		),
		CatalogChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tienda_catalog_changes_total",
				Help: "Catalog writes by entity and action",
			},
			[]string{"entity", "action"},
		),
		EventPublishErrs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tienda_event_publish_errors_total",
				Help: "Domain events that could not be delivered",
			},
			[]string{"topic"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	m.Registry.MustRegister(
		m.AuthOperations,
		m.TokensIssued,
		m.CatalogChanges,
		m.EventPublishErrs,
		m.HTTPRequests,
		m.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Auth(operation, outcome string) {
	if m == nil {
		return
	}
	m.AuthOperations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) TokenIssued(kind string) {
	if m == nil {
		return
	}
	m.TokensIssued.WithLabelValues(kind).Inc()
}

func (m *Metrics) CatalogChange(entity, action string) {
	if m == nil {
		return
	}
	m.CatalogChanges.WithLabelValues(entity, action).Inc()
}

func (m *Metrics) PublishFailed(topic string) {
	if m == nil {
		return
	}
	m.EventPublishErrs.WithLabelValues(topic).Inc()
}
