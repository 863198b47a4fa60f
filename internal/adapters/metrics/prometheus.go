// Package metrics provides Prometheus metrics collection.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements the MetricsCollector port using Prometheus.
type Collector struct {
	extractions         *prometheus.CounterVec
	extractionDuration  prometheus.Histogram
	extractionFeatures  prometheus.Histogram
	regionEvents        *prometheus.CounterVec
	activeSessions      prometheus.Gauge
	exports             *prometheus.CounterVec
	exportSize          *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector creates a new Prometheus metrics collector registered with the
// default registry.
func NewCollector(namespace string) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector registered with reg.
func NewCollectorWithRegistry(namespace string, reg prometheus.Registerer) *Collector {
	if namespace == "" {
		namespace = "osmclip"
	}
	factory := promauto.With(reg)

	return &Collector{
		extractions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "extractions_total",
				Help:      "Total number of extraction requests by outcome",
			},
			[]string{"outcome"},
		),

		extractionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "extraction_duration_seconds",
				Help:      "Remote fetch duration in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 180},
			},
		),

		extractionFeatures: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "extraction_features",
				Help:      "Number of features per successful extraction",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
			},
		),

		regionEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "region_events_total",
				Help:      "Total number of region changes",
			},
			[]string{"kind"},
		),

		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Number of live sessions",
			},
		),

		exports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exports_total",
				Help:      "Total number of exports",
			},
			[]string{"format", "status"},
		),

		exportSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "export_size_bytes",
				Help:      "Size of exported files in bytes",
				Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
			},
			[]string{"format"},
		),

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// IncExtractions increments the extraction counter.
func (c *Collector) IncExtractions(outcome string) {
	c.extractions.WithLabelValues(outcome).Inc()
}

// ObserveExtractionDuration records the remote fetch duration.
func (c *Collector) ObserveExtractionDuration(duration time.Duration) {
	c.extractionDuration.Observe(duration.Seconds())
}

// ObserveFeatureCount records the size of a successful extraction.
func (c *Collector) ObserveFeatureCount(count int) {
	c.extractionFeatures.Observe(float64(count))
}

// IncRegionEvents increments the region event counter.
func (c *Collector) IncRegionEvents(kind string) {
	c.regionEvents.WithLabelValues(kind).Inc()
}

// SetActiveSessions sets the number of live sessions.
func (c *Collector) SetActiveSessions(count int) {
	c.activeSessions.Set(float64(count))
}

// IncExports increments the export counter.
func (c *Collector) IncExports(format string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	c.exports.WithLabelValues(format, status).Inc()
}

// ObserveExportSize records the size of an exported file.
func (c *Collector) ObserveExportSize(format string, bytes int) {
	c.exportSize.WithLabelValues(format).Observe(float64(bytes))
}

// IncHTTPRequests increments the HTTP request counter.
func (c *Collector) IncHTTPRequests(method, path, status string) {
	c.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// ObserveHTTPDuration records HTTP request duration.
func (c *Collector) ObserveHTTPDuration(method, path string, duration time.Duration) {
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Handler returns the Prometheus HTTP handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns an HTTP handler exposing the metrics gathered by g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Middleware returns HTTP middleware for metrics collection.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		path := normalizePath(r.URL.Path)
		status := statusToString(wrapped.statusCode)

		c.IncHTTPRequests(r.Method, path, status)
		c.ObserveHTTPDuration(r.Method, path, duration)
	})
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// normalizePath replaces session ids with a placeholder to bound label cardinality.
func normalizePath(path string) string {
	segments := strings.Split(path, "/")
	for i := 1; i < len(segments); i++ {
		if segments[i-1] == "sessions" && segments[i] != "" {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

// statusToString converts HTTP status code to string category.
func statusToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
