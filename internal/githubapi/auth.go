package githubapi

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cam3ron2/issue-relay/internal/telemetry"
	"github.com/google/go-github/v75/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// HTTPClientConfig configures the authenticated GitHub HTTP client.
type HTTPClientConfig struct {
	// Token is sent as a bearer credential. Empty means unauthenticated.
	Token         string
	Timeout       time.Duration
	BaseTransport http.RoundTripper
	Metrics       *telemetry.Metrics
	Status        *CallStatus
	Logger        *zap.Logger
}

// NewHTTPClient creates an HTTP client that authenticates with a static token
// and reports every call to metrics and the call status tracker.
func NewHTTPClient(cfg HTTPClientConfig) *http.Client {
	baseTransport := cfg.BaseTransport
	if baseTransport == nil {
		baseTransport = http.DefaultTransport
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var transport http.RoundTripper = &instrumentedTransport{
		base:    baseTransport,
		metrics: cfg.Metrics,
		status:  cfg.Status,
		logger:  logger,
		now:     time.Now,
	}
	if token := strings.TrimSpace(cfg.Token); token != "" {
		transport = &oauth2.Transport{
			Base:   transport,
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// NewGitHubRESTClient creates a go-github client with optional API base URL override.
func NewGitHubRESTClient(httpClient *http.Client, apiBaseURL string) (*github.Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	client := github.NewClient(httpClient)
	trimmedBaseURL := strings.TrimSpace(apiBaseURL)
	if trimmedBaseURL == "" {
		return client, nil
	}

	parsedURL, err := url.Parse(trimmedBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse github api base url: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("parse github api base url: missing scheme or host")
	}
	if !strings.HasSuffix(parsedURL.Path, "/") {
		parsedURL.Path += "/"
	}

	client.BaseURL = parsedURL
	return client, nil
}
