// Package metrics exposes the server's Prometheus collectors. All methods are
// safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	signedURLsTotal        *prometheus.CounterVec
	uploadsCompletedTotal  prometheus.Counter
	uploadBytesTotal       prometheus.Counter
	sessionEventsTotal     *prometheus.CounterVec
	statusTransitionsTotal *prometheus.CounterVec
	logAppendFailuresTotal prometheus.Counter
	sharedCreateRetries    prometheus.Counter
	auditDroppedTotal      prometheus.Counter

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDurationMs *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{registry: reg}

	m.signedURLsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tms_signed_urls_issued_total",
		Help: "Presigned bundle URLs issued, by kind (upload, download).",
	}, []string{"kind"})
	m.uploadsCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tms_bundle_uploads_completed_total",
		Help: "Completed bundle uploads.",
	})
	m.uploadBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tms_bundle_upload_bytes_total",
		Help: "Bundle bytes reported by completed uploads.",
	})
	m.sessionEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tms_session_events_total",
		Help: "Session events recorded by workers, by level.",
	}, []string{"level"})
	m.statusTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tms_session_status_transitions_total",
		Help: "Session status transitions, by target status.",
	}, []string{"status"})
	m.logAppendFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tms_session_log_append_failures_total",
		Help: "Session log rows that could not be written.",
	})
	m.sharedCreateRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tms_shared_session_create_retries_total",
		Help: "Shared session creations lost to a concurrent creator and retried as a lookup.",
	})
	m.auditDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tms_audit_records_dropped_total",
		Help: "Audit records that could not be published.",
	})

	m.httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "route", "status"})
	m.httpRequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_ms",
		Help:    "HTTP request duration in milliseconds.",
		Buckets: prometheus.ExponentialBuckets(5, 2, 12),
	}, []string{"method", "route"})

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.signedURLsTotal,
		m.uploadsCompletedTotal,
		m.uploadBytesTotal,
		m.sessionEventsTotal,
		m.statusTransitionsTotal,
		m.logAppendFailuresTotal,
		m.sharedCreateRetries,
		m.auditDroppedTotal,
		m.httpRequestsTotal,
		m.httpRequestDurationMs,
	)

	return m
}

// Registry returns the underlying registry, or nil for a nil *Metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncSignedURL(kind string) {
	if m == nil {
		return
	}
	m.signedURLsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveUploadCompleted(sizeBytes int64) {
	if m == nil {
		return
	}
	m.uploadsCompletedTotal.Inc()
	if sizeBytes > 0 {
		m.uploadBytesTotal.Add(float64(sizeBytes))
	}
}

func (m *Metrics) IncSessionEvent(level string) {
	if m == nil {
		return
	}
	m.sessionEventsTotal.WithLabelValues(strings.ToUpper(level)).Inc()
}

func (m *Metrics) IncStatusTransition(status string) {
	if m == nil {
		return
	}
	m.statusTransitionsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) IncLogAppendFailure() {
	if m == nil {
		return
	}
	m.logAppendFailuresTotal.Inc()
}

func (m *Metrics) IncSharedCreateRetry() {
	if m == nil {
		return
	}
	m.sharedCreateRetries.Inc()
}

func (m *Metrics) IncAuditDropped() {
	if m == nil {
		return
	}
	m.auditDroppedTotal.Inc()
}

func (m *Metrics) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	route = strings.TrimSpace(route)
	if route == "" {
		route = "unknown"
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	ms := float64(duration.Milliseconds())
	if ms < 0 {
		ms = 0
	}
	m.httpRequestDurationMs.WithLabelValues(method, route).Observe(ms)
}
