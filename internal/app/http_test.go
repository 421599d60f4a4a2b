package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cam3ron2/issue-relay/internal/issues"
	"github.com/cam3ron2/issue-relay/internal/relay"
	"github.com/cam3ron2/issue-relay/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	mu sync.Mutex

	report      relay.ForecastReport
	err         error
	summaries   []relay.RepositorySummary
	gotRepo     string
	gotRepos    []string
	forecasts   int
	panicOnCall bool
}

func (s *stubService) IssueForecast(_ context.Context, repo string) (relay.ForecastReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicOnCall {
		panic("boom")
	}
	s.forecasts++
	s.gotRepo = repo
	return s.report, s.err
}

func (s *stubService) RepositoryDetails(_ context.Context, repos []string) []relay.RepositorySummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gotRepos = repos
	return s.summaries
}

func newTestHandler(service RelayService, metrics *telemetry.Metrics) http.Handler {
	healthHandler := http.NewServeMux()
	healthHandler.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("live"))
	})
	healthHandler.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
	})
	healthHandler.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"mode":"healthy"}`))
	})
	return NewHTTPHandler(Routes{
		API:     NewAPI(service, nil),
		Metrics: metrics,
		Health:  healthHandler,
	})
}

func assertCORS(t *testing.T, header http.Header) {
	t.Helper()
	assert.Equal(t, "*", header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "PUT, GET, POST, DELETE, OPTIONS", header.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", header.Get("Access-Control-Allow-Headers"))
}

func TestNewHTTPHandlerOperationalRoutes(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(&stubService{}, nil)

	testCases := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{path: "/livez", wantCode: http.StatusOK, wantBody: "live"},
		{path: "/readyz", wantCode: http.StatusServiceUnavailable, wantBody: "not ready"},
		{path: "/healthz", wantCode: http.StatusOK, wantBody: `{"mode":"healthy"}`},
		{path: "/metrics", wantCode: http.StatusNotFound, wantBody: "404 page not found\n"},
		{path: "/unknown", wantCode: http.StatusNotFound, wantBody: "404 page not found\n"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.path, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.wantCode {
				t.Fatalf("code = %d, want %d", rec.Code, tc.wantCode)
			}
			if rec.Body.String() != tc.wantBody {
				t.Fatalf("body = %q, want %q", rec.Body.String(), tc.wantBody)
			}
			assertCORS(t, rec.Header())
			assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
		})
	}
}

func TestIssueForecastEndpoint(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		body     string
		service  *stubService
		wantCode int
		wantBody string
		wantRepo string
		wantCall bool
	}{
		{
			name: "success",
			body: `{"repository": "octocat/Hello-World"}`,
			service: &stubService{report: relay.ForecastReport{
				Created:            []issues.MonthBucket{{Month: issues.Month{Year: 2025, Month: 5}, Count: 2}},
				Closed:             []issues.MonthBucket{},
				StarCount:          10,
				ForkCount:          3,
				CreatedAtImageURLs: json.RawMessage(`{"a":1}`),
				ClosedAtImageURLs:  json.RawMessage(`{"b":2}`),
			}},
			wantCode: http.StatusOK,
			wantBody: `{"created":[["2025-05",2]],"closed":[],"starCount":10,"forkCount":3,"createdAtImageUrls":{"a":1},"closedAtImageUrls":{"b":2}}`,
			wantRepo: "octocat/Hello-World",
			wantCall: true,
		},
		{
			name:     "malformed_body_is_bad_request",
			body:     `{"repository":`,
			service:  &stubService{},
			wantCode: http.StatusBadRequest,
			wantBody: `{"error":"Missing 'repository' in request body"}`,
		},
		{
			name:     "validation_error",
			body:     `{}`,
			service:  &stubService{err: relay.ValidationError("Missing 'repository' in request body", nil)},
			wantCode: http.StatusBadRequest,
			wantBody: `{"error":"Missing 'repository' in request body"}`,
			wantCall: true,
		},
		{
			name:     "not_found",
			body:     `{"repository": "octocat/empty"}`,
			service:  &stubService{err: relay.NotFoundError("No issues found for the repo")},
			wantCode: http.StatusNotFound,
			wantBody: `{"error":"No issues found for the repo"}`,
			wantRepo: "octocat/empty",
			wantCall: true,
		},
		{
			name:     "configuration_error",
			body:     `{"repository": "octocat/Hello-World"}`,
			service:  &stubService{err: relay.ConfigurationError("GitHub token not found or invalid", errors.New("missing"))},
			wantCode: http.StatusInternalServerError,
			wantBody: `{"error":"GitHub token not found or invalid: missing"}`,
			wantRepo: "octocat/Hello-World",
			wantCall: true,
		},
		{
			name:     "upstream_error",
			body:     `{"repository": "octocat/Hello-World"}`,
			service:  &stubService{err: relay.UpstreamError("GitHub repo fetch failed", errors.New("404 Not Found"))},
			wantCode: http.StatusBadGateway,
			wantBody: `{"error":"GitHub repo fetch failed: 404 Not Found"}`,
			wantRepo: "octocat/Hello-World",
			wantCall: true,
		},
		{
			name:     "unclassified_error_is_internal",
			body:     `{"repository": "octocat/Hello-World"}`,
			service:  &stubService{err: errors.New("surprise")},
			wantCode: http.StatusInternalServerError,
			wantBody: `{"error":"surprise"}`,
			wantRepo: "octocat/Hello-World",
			wantCall: true,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			handler := newTestHandler(tc.service, nil)
			req := httptest.NewRequest(http.MethodPost, "/api/github", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantCode, rec.Code)
			assert.JSONEq(t, tc.wantBody, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assertCORS(t, rec.Header())
			assert.Equal(t, tc.wantRepo, tc.service.gotRepo)
			assert.Equal(t, tc.wantCall, tc.service.forecasts == 1)
		})
	}
}

func TestRepositoryDetailsEndpoint(t *testing.T) {
	t.Parallel()

	service := &stubService{summaries: []relay.RepositorySummary{
		{Name: "facebook/react", Stars: 1, Forks: 2, TotalIssues: 3, ClosedIssues: 1},
	}}
	handler := newTestHandler(service, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/github/details", strings.NewReader(`[{"name":"facebook/react"},{"name":"broken/repo"},{}]`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"name":"facebook/react","stars":1,"forks":2,"total_issues":3,"closed_issues":1}]`, rec.Body.String())
	assert.Equal(t, []string{"facebook/react", "broken/repo", ""}, service.gotRepos)
	assertCORS(t, rec.Header())

	req = httptest.NewRequest(http.MethodPost, "/api/github/details", strings.NewReader(`{"name":"facebook/react"}`))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestPreflightAndMethodHandling(t *testing.T) {
	t.Parallel()

	service := &stubService{}
	handler := newTestHandler(service, nil)

	for _, path := range []string{"/api/github", "/api/github/details", "/anything"} {
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assertCORS(t, rec.Header())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/github", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.JSONEq(t, `{"error":"Method not allowed"}`, rec.Body.String())
	assert.Zero(t, service.forecasts)
}

func TestRecovererAndRequestID(t *testing.T) {
	t.Parallel()

	metrics := telemetry.NewMetrics()
	handler := newTestHandler(&stubService{panicOnCall: true}, metrics)

	req := httptest.NewRequest(http.MethodPost, "/api/github", strings.NewReader(`{"repository":"o/r"}`))
	req.Header.Set(requestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Unexpected server error"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "goroutine")
	assert.Equal(t, "req-123", rec.Header().Get(requestIDHeader))
	assertCORS(t, rec.Header())
}

func TestWrapHTTPHandlerByTraceMode(t *testing.T) {
	t.Parallel()

	base := &staticHandler{}

	testCases := []struct {
		name        string
		traceMode   string
		wantWrapped bool
	}{
		{
			name:        "trace_off",
			traceMode:   "off",
			wantWrapped: false,
		},
		{
			name:        "trace_sampled",
			traceMode:   "sampled",
			wantWrapped: true,
		},
		{
			name:        "trace_detailed",
			traceMode:   "detailed",
			wantWrapped: true,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			wrapped := wrapHTTPHandler(tc.traceMode, "metrics", base)
			gotWrapped := wrapped != base
			if gotWrapped != tc.wantWrapped {
				t.Fatalf("wrapped = %t, want %t", gotWrapped, tc.wantWrapped)
			}
		})
	}
}

func TestWrapHTTPHandlerNilHandlerAndStatusCapture(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		traceMode string
		route     string
		handler   http.Handler
		wantCode  int
	}{
		{
			name:      "nil_handler_uses_not_found",
			traceMode: "sampled",
			route:     "metrics",
			handler:   nil,
			wantCode:  http.StatusNotFound,
		},
		{
			name:      "empty_route_defaults_operation_name",
			traceMode: "detailed",
			route:     "",
			handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			}),
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			wrapped := wrapHTTPHandler(tc.traceMode, tc.route, tc.handler)
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			rec := httptest.NewRecorder()
			wrapped.ServeHTTP(rec, req)
			if rec.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantCode)
			}
		})
	}
}

func TestStatusCapturingResponseWriterKeepsFirstStatus(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writer := &statusCapturingResponseWriter{ResponseWriter: rec, status: http.StatusOK}
	_, _ = writer.Write([]byte("body"))
	writer.WriteHeader(http.StatusTeapot)
	if writer.status != http.StatusOK {
		t.Fatalf("status = %d, want %d", writer.status, http.StatusOK)
	}
}

type staticHandler struct{}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
