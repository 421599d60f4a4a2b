package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordAndRender(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	metrics.ObserveHTTPRequest("github", http.StatusOK)
	metrics.ObserveHTTPRequest("github", http.StatusOK)
	metrics.ObserveUpstream(UpstreamGitHub, "ok")
	metrics.ObserveSkipped("missing_state", 3)
	metrics.ObserveSkipped("missing_author", 0)
	metrics.ObserveTruncatedWindow()
	metrics.ObserveDetailsOmitted()
	metrics.SetRateLimitRemaining(4321)

	if got := testutil.ToFloat64(metrics.httpRequests.WithLabelValues("github", "200")); got != 2 {
		t.Fatalf("http_requests_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.normalizeSkipped.WithLabelValues("missing_state")); got != 3 {
		t.Fatalf("issues_skipped_total = %v, want 3", got)
	}
	if got := testutil.ToFloat64(metrics.rateLimitRemaining); got != 4321 {
		t.Fatalf("github_rate_limit_remaining = %v, want 4321", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	for _, name := range []string{
		"issue_relay_http_requests_total",
		"issue_relay_upstream_requests_total",
		"issue_relay_search_windows_truncated_total",
		"issue_relay_details_repositories_omitted_total",
	} {
		if !strings.Contains(rec.Body.String(), name) {
			t.Fatalf("metrics output missing %q", name)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.ObserveHTTPRequest("github", http.StatusOK)
	metrics.ObserveUpstream(UpstreamForecast, "error")
	metrics.ObserveSkipped("missing_state", 1)
	metrics.ObserveTruncatedWindow()
	metrics.ObserveDetailsOmitted()
	metrics.SetRateLimitRemaining(1)
	if metrics.Registry() != nil {
		t.Fatalf("Registry() on nil metrics should be nil")
	}

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestUpstreamOutcome(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		status int
		err    error
		want   string
	}{
		{name: "transport_error", status: 0, err: errors.New("dial"), want: "error"},
		{name: "ok", status: http.StatusCreated, want: "ok"},
		{name: "server_error", status: http.StatusBadGateway, want: "status_502"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := UpstreamOutcome(tc.status, tc.err); got != tc.want {
				t.Fatalf("UpstreamOutcome() = %q, want %q", got, tc.want)
			}
		})
	}
}
