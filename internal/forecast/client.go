// Package forecast relays normalized issues to the external forecasting service.
package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cam3ron2/issue-relay/internal/issues"
	"github.com/cam3ron2/issue-relay/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	tracerName = "issue-relay/internal/forecast"
	// maxErrorBody bounds how much of a failed response is quoted in errors.
	maxErrorBody = 512
)

// HTTPDoer is implemented by http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Request is the body posted to the forecasting service.
type Request struct {
	Issues []issues.Record `json:"issues"`
	Type   string          `json:"type"`
	Repo   string          `json:"repo"`
}

// Client posts issue batches to the forecasting endpoint.
type Client struct {
	endpoint *url.URL
	doer     HTTPDoer
	metrics  *telemetry.Metrics
}

// NewClient creates a forecasting client for one endpoint URL.
func NewClient(endpoint string, doer HTTPDoer, metrics *telemetry.Metrics) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return nil, fmt.Errorf("parse forecast url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse forecast url: missing scheme or host")
	}
	if doer == nil {
		doer = &http.Client{}
	}
	return &Client{
		endpoint: parsed,
		doer:     doer,
		metrics:  metrics,
	}, nil
}

// BareRepoName strips the owning organization from "owner/repo".
func BareRepoName(repo string) string {
	trimmed := strings.TrimSpace(repo)
	if _, name, ok := strings.Cut(trimmed, "/"); ok {
		return name
	}
	return trimmed
}

// Forecast sends the full record set for one dimension and returns the
// service's response body untouched.
func (c *Client) Forecast(ctx context.Context, repo string, records []issues.Record, dimension issues.Dimension) (json.RawMessage, error) {
	if err := dimension.Validate(); err != nil {
		return nil, err
	}
	if records == nil {
		records = []issues.Record{}
	}

	body, err := json.Marshal(Request{
		Issues: records,
		Type:   dimension.Field(),
		Repo:   BareRepoName(repo),
	})
	if err != nil {
		return nil, fmt.Errorf("encode forecast request: %w", err)
	}

	ctx, span := telemetry.StartDependencySpan(
		ctx,
		tracerName,
		"forecast.client.post",
		attribute.String("forecast.type", dimension.Field()),
		attribute.Int("forecast.issue_count", len(records)),
	)
	if span != nil {
		defer span.End()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build forecast request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.doer.Do(req)
	if err != nil {
		c.metrics.ObserveUpstream(telemetry.UpstreamForecast, telemetry.UpstreamOutcome(0, err))
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, fmt.Errorf("forecast %s request failed: %w", dimension.Field(), err)
	}
	defer resp.Body.Close()
	c.metrics.ObserveUpstream(telemetry.UpstreamForecast, telemetry.UpstreamOutcome(resp.StatusCode, nil))

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read forecast %s response: %w", dimension.Field(), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if span != nil {
			span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		}
		return nil, fmt.Errorf("forecast %s returned status %d: %s", dimension.Field(), resp.StatusCode, truncate(payload, maxErrorBody))
	}
	if !json.Valid(payload) {
		if span != nil {
			span.SetStatus(codes.Error, "invalid json")
		}
		return nil, fmt.Errorf("forecast %s returned invalid json", dimension.Field())
	}

	if span != nil {
		span.SetStatus(codes.Ok, "request completed")
	}
	return json.RawMessage(payload), nil
}

func truncate(payload []byte, limit int) string {
	text := strings.TrimSpace(string(payload))
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
