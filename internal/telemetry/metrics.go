package telemetry

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "issue_relay"

// Upstream names used as metric labels.
const (
	UpstreamGitHub   = "github"
	UpstreamForecast = "forecast"
)

// Metrics holds the relay's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests       *prometheus.CounterVec
	upstreamCalls      *prometheus.CounterVec
	normalizeSkipped   *prometheus.CounterVec
	windowsTruncated   prometheus.Counter
	detailsOmitted     prometheus.Counter
	rateLimitRemaining prometheus.Gauge
}

// NewMetrics creates and registers the relay collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Inbound HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "upstream_requests_total",
			Help:      "Outbound upstream calls by upstream and outcome.",
		}, []string{"upstream", "outcome"}),
		normalizeSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "issues_skipped_total",
			Help:      "Raw issues dropped during normalization by reason.",
		}, []string{"reason"}),
		windowsTruncated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "search_windows_truncated_total",
			Help:      "Issue search windows whose total count exceeded the page size.",
		}),
		detailsOmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "details_repositories_omitted_total",
			Help:      "Repositories dropped from detail batches after an upstream failure.",
		}),
		rateLimitRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "github_rate_limit_remaining",
			Help:      "Last observed X-RateLimit-Remaining value from GitHub.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.upstreamCalls,
		m.normalizeSkipped,
		m.windowsTruncated,
		m.detailsOmitted,
		m.rateLimitRemaining,
	)
	return m
}

// Handler renders the registry in the OpenMetrics format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest counts one served request.
func (m *Metrics) ObserveHTTPRequest(route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// ObserveUpstream counts one upstream call outcome, e.g. "ok", "error", "status_502".
func (m *Metrics) ObserveUpstream(upstream, outcome string) {
	if m == nil {
		return
	}
	m.upstreamCalls.WithLabelValues(upstream, outcome).Inc()
}

// ObserveSkipped counts normalization skips for one reason.
func (m *Metrics) ObserveSkipped(reason string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.normalizeSkipped.WithLabelValues(reason).Add(float64(count))
}

// ObserveTruncatedWindow counts a search window capped by the page size.
func (m *Metrics) ObserveTruncatedWindow() {
	if m == nil {
		return
	}
	m.windowsTruncated.Inc()
}

// ObserveDetailsOmitted counts a repository dropped from a detail batch.
func (m *Metrics) ObserveDetailsOmitted() {
	if m == nil {
		return
	}
	m.detailsOmitted.Inc()
}

// SetRateLimitRemaining records the last seen rate-limit budget.
func (m *Metrics) SetRateLimitRemaining(remaining int) {
	if m == nil {
		return
	}
	m.rateLimitRemaining.Set(float64(remaining))
}

// UpstreamOutcome maps an HTTP status code and transport error to a metric label.
func UpstreamOutcome(statusCode int, err error) string {
	if err != nil {
		return "error"
	}
	if statusCode >= 200 && statusCode <= 299 {
		return "ok"
	}
	return "status_" + strconv.Itoa(statusCode)
}
