// Package metrics exposes Prometheus collectors for scans, probes and the HTTP surface.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
	OutcomePublic = "public"
	OutcomeClosed = "private"
	OutcomeError  = "error"
)

// Metrics holds every collector the scanner records into.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Scan metrics
	ScansTotal   *prometheus.CounterVec
	ScanDuration prometheus.Histogram
	ScanState    *prometheus.GaugeVec

	// Message metrics
	MessagesTotal *prometheus.CounterVec
	MessageBytes  prometheus.Histogram
	URLsExtracted prometheus.Counter

	// Probe metrics
	ProbesTotal   *prometheus.CounterVec
	ProbeDuration *prometheus.HistogramVec
	PublicLinks   prometheus.Counter

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry, so several instances
// (one per test, say) never collide.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ScansTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scanner_scans_total",
				Help: "Total number of scans by terminal state",
			},
			[]string{"source", "state"},
		),
		ScanDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scanner_scan_duration_seconds",
				Help:    "Wall time of a complete scan",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
			},
		),
		ScanState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "scanner_scan_state",
				Help: "1 for the state the current scan is in",
			},
			[]string{"state"},
		),

		MessagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scanner_messages_total",
				Help: "Messages processed by outcome",
			},
			[]string{"outcome"},
		),
		MessageBytes: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scanner_message_size_bytes",
				Help:    "Provider size estimate of scanned messages",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
			},
		),
		URLsExtracted: f.NewCounter(
			prometheus.CounterOpts{
				Name: "scanner_urls_extracted_total",
				Help: "URLs found in message text",
			},
		),

		ProbesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scanner_probes_total",
				Help: "Public-link probes by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		ProbeDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scanner_probe_duration_seconds",
				Help:    "Latency of public-link probes",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		PublicLinks: f.NewCounter(
			prometheus.CounterOpts{
				Name: "scanner_public_links_total",
				Help: "Unique public links reported",
			},
		),

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scanner_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scanner_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordScan records a finished scan.
func (m *Metrics) RecordScan(source, state string, d time.Duration) {
	if m == nil {
		return
	}
	m.ScansTotal.WithLabelValues(source, state).Inc()
	m.ScanDuration.Observe(d.Seconds())
}

// SetState marks state as the current one.
func (m *Metrics) SetState(state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.ScanState.WithLabelValues(s).Set(v)
	}
}

// RecordMessage records one processed message.
func (m *Metrics) RecordMessage(outcome string, sizeBytes int64, urls int) {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues(outcome).Inc()
	if sizeBytes > 0 {
		m.MessageBytes.Observe(float64(sizeBytes))
	}
	if urls > 0 {
		m.URLsExtracted.Add(float64(urls))
	}
}

// RecordProbe records one public-link probe.
func (m *Metrics) RecordProbe(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProbesTotal.WithLabelValues(provider, outcome).Inc()
	m.ProbeDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordPublicLinks adds n unique public links.
func (m *Metrics) RecordPublicLinks(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PublicLinks.Add(float64(n))
}

// RecordHTTP records one served request.
func (m *Metrics) RecordHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
