package githubapi

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cam3ron2/issue-relay/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const tracerName = "issue-relay/internal/githubapi"

// CallStatus tracks the health of recent GitHub calls for readiness reporting.
type CallStatus struct {
	mu            sync.RWMutex
	lastSuccess   time.Time
	lastFailure   time.Time
	failureStreak int
	lastRate      RateLimitHeaders
}

// NewCallStatus creates an empty call status tracker.
func NewCallStatus() *CallStatus {
	return &CallStatus{}
}

func (s *CallStatus) record(ok bool, rate RateLimitHeaders, now time.Time) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rate.Present || rate.SecondaryLimited {
		s.lastRate = rate
	}
	if ok {
		s.lastSuccess = now
		s.failureStreak = 0
		return
	}
	s.lastFailure = now
	s.failureStreak++
}

// Healthy reports whether the most recent GitHub call succeeded. No calls yet
// counts as healthy.
func (s *CallStatus) Healthy() bool {
	if s == nil {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failureStreak == 0
}

// FailureStreak returns consecutive failed GitHub calls.
func (s *CallStatus) FailureStreak() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failureStreak
}

// LastRateLimit returns the most recently observed rate-limit headers.
func (s *CallStatus) LastRateLimit() RateLimitHeaders {
	if s == nil {
		return RateLimitHeaders{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRate
}

// instrumentedTransport observes GitHub calls without altering them. It never
// retries; a failed round trip is returned to the caller as-is.
type instrumentedTransport struct {
	base    http.RoundTripper
	metrics *telemetry.Metrics
	status  *CallStatus
	logger  *zap.Logger
	now     func() time.Time
}

func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}

	ctx, span := telemetry.StartDependencySpan(
		req.Context(),
		tracerName,
		"githubapi.roundtrip",
		attribute.String("http.method", req.Method),
		attribute.String("http.path", req.URL.EscapedPath()),
	)
	if span != nil {
		defer span.End()
		req = req.WithContext(ctx)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.metrics.ObserveUpstream(telemetry.UpstreamGitHub, telemetry.UpstreamOutcome(0, err))
		t.status.record(false, RateLimitHeaders{}, t.now())
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}

	rate := ParseRateLimitHeaders(resp.Header, resp.StatusCode)
	if rate.Present {
		t.metrics.SetRateLimitRemaining(rate.Remaining)
	}
	t.metrics.ObserveUpstream(telemetry.UpstreamGitHub, telemetry.UpstreamOutcome(resp.StatusCode, nil))

	failed := resp.StatusCode >= http.StatusInternalServerError || rate.Exhausted()
	t.status.record(!failed, rate, t.now())
	if rate.Exhausted() {
		t.logger.Warn(
			"github rate limit exhausted",
			zap.Int("status", resp.StatusCode),
			zap.Time("reset_at", rate.ResetAt()),
			zap.Duration("retry_after", rate.RetryAfter),
		)
	}

	if span != nil {
		span.SetAttributes(
			attribute.Int("http.status_code", resp.StatusCode),
			attribute.Int("github.rate_limit_remaining", rate.Remaining),
			attribute.Int64("github.rate_limit_reset_unix", rate.ResetUnix),
		)
		if failed {
			span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		} else {
			span.SetStatus(codes.Ok, "request completed")
		}
	}
	return resp, nil
}
