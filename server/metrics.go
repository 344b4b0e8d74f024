package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsExporter exports memory-layer metrics in Prometheus format.
type MetricsExporter struct {
	registry *prometheus.Registry

	recordings    *prometheus.CounterVec
	searches      *prometheus.CounterVec
	searchLatency prometheus.Histogram
	httpRequests  *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
}

// NewMetricsExporter creates the exporter with its own registry.
func NewMetricsExporter() *MetricsExporter {
	e := &MetricsExporter{
		registry: prometheus.NewRegistry(),
	}

	e.recordings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mnemosyne",
			Subsystem: "memory",
			Name:      "recordings_total",
			Help:      "Total number of conversation recordings",
		},
		[]string{"status"},
	)

	e.searches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mnemosyne",
			Subsystem: "memory",
			Name:      "searches_total",
			Help:      "Total number of memory searches",
		},
		[]string{"status"},
	)

	e.searchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mnemosyne",
			Subsystem: "memory",
			Name:      "search_latency_seconds",
			Help:      "Memory search latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
	)

	e.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mnemosyne",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	e.httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mnemosyne",
			Subsystem: "http",
			Name:      "request_latency_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "path"},
	)

	e.registry.MustRegister(
		e.recordings,
		e.searches,
		e.searchLatency,
		e.httpRequests,
		e.httpLatency,
	)

	return e
}

// RecordRecording records one recording attempt.
func (e *MetricsExporter) RecordRecording(success bool) {
	e.recordings.WithLabelValues(statusLabel(success)).Inc()
}

// RecordSearch records one search with its latency.
func (e *MetricsExporter) RecordSearch(latency time.Duration, success bool) {
	e.searches.WithLabelValues(statusLabel(success)).Inc()
	e.searchLatency.Observe(latency.Seconds())
}

// RecordHTTPRequest records one served HTTP request.
func (e *MetricsExporter) RecordHTTPRequest(method, path string, status int, latency time.Duration) {
	e.httpRequests.WithLabelValues(method, path, statusClass(status)).Inc()
	e.httpLatency.WithLabelValues(method, path).Observe(latency.Seconds())
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *MetricsExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
