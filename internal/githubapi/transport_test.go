package githubapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cam3ron2/issue-relay/internal/telemetry"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestNewHTTPClientAuthorization(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		token      string
		wantHeader string
	}{
		{name: "bearer_token", token: "ghp_secret", wantHeader: "Bearer ghp_secret"},
		{name: "unauthenticated", token: "  ", wantHeader: ""},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var gotHeader string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotHeader = r.Header.Get("Authorization")
				w.WriteHeader(http.StatusNoContent)
			}))
			defer server.Close()

			client := NewHTTPClient(HTTPClientConfig{Token: tc.token, Timeout: time.Second})
			resp, err := client.Get(server.URL)
			require.NoError(t, err)
			_ = resp.Body.Close()
			assert.Equal(t, tc.wantHeader, gotHeader)
		})
	}
}

func TestInstrumentedTransportRecordsOutcomes(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		response      *http.Response
		err           error
		wantHealthy   bool
		wantOutcome   string
		wantRemaining float64
	}{
		{
			name: "success_updates_rate_limit",
			response: &http.Response{
				StatusCode: http.StatusOK,
				Header:     http.Header{"X-Ratelimit-Remaining": []string{"4999"}},
				Body:       http.NoBody,
			},
			wantHealthy:   true,
			wantOutcome:   "ok",
			wantRemaining: 4999,
		},
		{
			name: "not_found_is_not_unhealthy",
			response: &http.Response{
				StatusCode: http.StatusNotFound,
				Header:     http.Header{},
				Body:       http.NoBody,
			},
			wantHealthy: true,
			wantOutcome: "status_404",
		},
		{
			name: "rate_limited_is_unhealthy",
			response: &http.Response{
				StatusCode: http.StatusForbidden,
				Header:     http.Header{"X-Ratelimit-Remaining": []string{"0"}},
				Body:       http.NoBody,
			},
			wantHealthy: false,
			wantOutcome: "status_403",
		},
		{
			name:        "transport_error_is_unhealthy",
			err:         errors.New("connection refused"),
			wantHealthy: false,
			wantOutcome: "error",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			metrics := telemetry.NewMetrics()
			status := NewCallStatus()
			client := NewHTTPClient(HTTPClientConfig{
				BaseTransport: roundTripFunc(func(_ *http.Request) (*http.Response, error) {
					return tc.response, tc.err
				}),
				Metrics: metrics,
				Status:  status,
			})

			resp, err := client.Get("https://api.github.com/rate_limit")
			if tc.err != nil {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				_ = resp.Body.Close()
			}

			assert.Equal(t, tc.wantHealthy, status.Healthy())
			assert.Equal(t, float64(1), gatheredValue(t, metrics, "issue_relay_upstream_requests_total", "outcome", tc.wantOutcome))
			assert.Equal(t, tc.wantRemaining, gatheredValue(t, metrics, "issue_relay_github_rate_limit_remaining", "", ""))
		})
	}
}

func gatheredValue(t *testing.T, metrics *telemetry.Metrics, name, labelName, labelValue string) float64 {
	t.Helper()

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if labelName != "" && !hasLabel(metric.GetLabel(), labelName, labelValue) {
				continue
			}
			if metric.GetCounter() != nil {
				return metric.GetCounter().GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	return 0
}

func hasLabel(pairs []*dto.LabelPair, name, value string) bool {
	for _, pair := range pairs {
		if pair.GetName() == name && pair.GetValue() == value {
			return true
		}
	}
	return false
}

func TestCallStatusStreaks(t *testing.T) {
	t.Parallel()

	status := NewCallStatus()
	assert.True(t, status.Healthy(), "no calls yet counts as healthy")

	now := time.Unix(1739836800, 0)
	status.record(false, RateLimitHeaders{}, now)
	status.record(false, RateLimitHeaders{Present: true, Remaining: 12}, now)
	assert.False(t, status.Healthy())
	assert.Equal(t, 2, status.FailureStreak())
	assert.Equal(t, 12, status.LastRateLimit().Remaining)

	status.record(true, RateLimitHeaders{}, now)
	assert.True(t, status.Healthy())
	assert.Equal(t, 0, status.FailureStreak())
	assert.Equal(t, 12, status.LastRateLimit().Remaining, "calls without headers keep the last observation")

	var nilStatus *CallStatus
	nilStatus.record(false, RateLimitHeaders{}, now)
	assert.True(t, nilStatus.Healthy())
	assert.Equal(t, 0, nilStatus.FailureStreak())
}
