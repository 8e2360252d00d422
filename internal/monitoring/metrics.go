package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	ItemsProcessed *prometheus.CounterVec
	ErrorsTotal    *prometheus.CounterVec
	Rewrites       prometheus.Counter
	Concurrency    prometheus.Gauge

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		ItemsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "refinery_items_processed_total",
			Help: "The total number of inventory items processed, by outcome",
		}, []string{"outcome"}),
		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "refinery_errors_total",
			Help: "The total number of errors encountered",
		}, []string{"type"}), // e.g. 'encode_failed', 'upload_failed'
		Rewrites: promauto.NewCounter(prometheus.CounterOpts{
			Name: "refinery_reference_rewrites_total",
			Help: "The total number of document references rewritten",
		}),
		Concurrency: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "refinery_worker_concurrency",
			Help: "The current conversion worker-pool size",
		}),
		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "refinery_http_requests_total",
			Help: "The total number of API requests, by method, path and status",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "refinery_http_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

func (m *Metrics) ObserveHTTP(method, path, status string, seconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(seconds)
}

func (m *Metrics) IncProcessed(outcome string) {
	m.ItemsProcessed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncError(errorType string) {
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) AddRewrites(n int) {
	m.Rewrites.Add(float64(n))
}

func (m *Metrics) SetConcurrency(n int) {
	m.Concurrency.Set(float64(n))
}
