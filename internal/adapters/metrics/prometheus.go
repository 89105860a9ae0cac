// Package metrics provides Prometheus metrics collection.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jobrunner/geefetch/internal/ports/output"
)

// Collector implements the MetricsCollector port using Prometheus.
// Every collector owns its registry, so several can live in one process.
type Collector struct {
	registry *prometheus.Registry

	exports             *prometheus.CounterVec
	taskAttempts        *prometheus.CounterVec
	taskDuration        *prometheus.HistogramVec
	downloads           *prometheus.CounterVec
	downloadDuration    prometheus.Histogram
	periods             *prometheus.CounterVec
	storageOperations   *prometheus.CounterVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Ensure Collector implements the metrics port.
var _ output.MetricsCollector = (*Collector)(nil)

// NewCollector creates a new Prometheus metrics collector.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "geefetch"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		exports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exports_total",
				Help:      "Total number of finished export jobs",
			},
			[]string{"product", "status"},
		),

		taskAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_attempts_total",
				Help:      "Total number of export task submissions",
			},
			[]string{"product"},
		),

		// Export tasks take minutes to hours.
		taskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Export task duration in seconds, retries included",
				Buckets:   prometheus.ExponentialBuckets(15, 2, 10),
			},
			[]string{"product"},
		),

		downloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downloads_total",
				Help:      "Total number of file downloads",
			},
			[]string{"status"},
		),

		downloadDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "download_duration_seconds",
				Help:      "Download duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),

		periods: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "periods_total",
				Help:      "Total number of periods processed or skipped",
			},
			[]string{"status"},
		),

		storageOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_operations_total",
				Help:      "Total number of storage operations",
			},
			[]string{"operation", "status"},
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

func successLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// IncExports implements output.MetricsCollector.
func (c *Collector) IncExports(product string, status string) {
	c.exports.WithLabelValues(product, status).Inc()
}

// IncTaskAttempts implements output.MetricsCollector.
func (c *Collector) IncTaskAttempts(product string) {
	c.taskAttempts.WithLabelValues(product).Inc()
}

// ObserveTaskDuration implements output.MetricsCollector.
func (c *Collector) ObserveTaskDuration(product string, duration time.Duration) {
	c.taskDuration.WithLabelValues(product).Observe(duration.Seconds())
}

// IncDownloads implements output.MetricsCollector.
func (c *Collector) IncDownloads(success bool) {
	c.downloads.WithLabelValues(successLabel(success)).Inc()
}

// ObserveDownloadDuration implements output.MetricsCollector.
func (c *Collector) ObserveDownloadDuration(duration time.Duration) {
	c.downloadDuration.Observe(duration.Seconds())
}

// IncPeriods implements output.MetricsCollector.
func (c *Collector) IncPeriods(status string) {
	c.periods.WithLabelValues(status).Inc()
}

// IncStorageOperations increments storage operation counter.
func (c *Collector) IncStorageOperations(operation string, success bool) {
	c.storageOperations.WithLabelValues(operation, successLabel(success)).Inc()
}

// IncHTTPRequests increments the HTTP request counter.
func (c *Collector) IncHTTPRequests(method, path, status string) {
	c.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// ObserveHTTPDuration records HTTP request duration.
func (c *Collector) ObserveHTTPDuration(method, path string, duration time.Duration) {
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Handler returns the Prometheus HTTP handler for this collector.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Middleware returns HTTP middleware for metrics collection.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := normalizePath(r.URL.Path)
		c.IncHTTPRequests(r.Method, path, statusToString(wrapped.statusCode))
		c.ObserveHTTPDuration(r.Method, path, time.Since(start))
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

// knownPaths bounds the path label to the routes the server exposes.
var knownPaths = []string{"/health/live", "/health/ready", "/health", "/status", "/metrics"}

// normalizePath maps the URL path to a known route or "other".
func normalizePath(path string) string {
	for _, p := range knownPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return p
		}
	}
	return "other"
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
