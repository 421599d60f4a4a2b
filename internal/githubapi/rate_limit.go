package githubapi

import (
	"net/http"
	"strconv"
	"time"
)

// RateLimitHeaders contains parsed GitHub rate-limit response headers.
type RateLimitHeaders struct {
	// Present is false when GitHub sent no X-RateLimit-Remaining header.
	Present          bool
	Remaining        int
	ResetUnix        int64
	Used             int
	RetryAfter       time.Duration
	SecondaryLimited bool
}

// ParseRateLimitHeaders parses rate-limit and retry headers.
func ParseRateLimitHeaders(header http.Header, statusCode int) RateLimitHeaders {
	parsed := RateLimitHeaders{}
	if raw := header.Get("X-RateLimit-Remaining"); raw != "" {
		if remaining, err := strconv.Atoi(raw); err == nil {
			parsed.Present = true
			parsed.Remaining = remaining
		}
	}
	parsed.Used = parseInt(header.Get("X-RateLimit-Used"))
	parsed.ResetUnix = parseInt64(header.Get("X-RateLimit-Reset"))

	retryAfterSeconds := parseInt(header.Get("Retry-After"))
	if retryAfterSeconds > 0 {
		parsed.RetryAfter = time.Duration(retryAfterSeconds) * time.Second
	}

	if statusCode == http.StatusTooManyRequests {
		parsed.SecondaryLimited = true
	}
	if statusCode == http.StatusForbidden && parsed.RetryAfter > 0 {
		parsed.SecondaryLimited = true
	}

	return parsed
}

// Exhausted reports whether GitHub refused or will refuse further calls
// until the rate-limit window resets.
func (h RateLimitHeaders) Exhausted() bool {
	if h.SecondaryLimited {
		return true
	}
	return h.Present && h.Remaining <= 0
}

// ResetAt returns the primary rate-limit reset time, or zero when unknown.
func (h RateLimitHeaders) ResetAt() time.Time {
	if h.ResetUnix <= 0 {
		return time.Time{}
	}
	return time.Unix(h.ResetUnix, 0).UTC()
}

func parseInt(raw string) int {
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

func parseInt64(raw string) int64 {
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
