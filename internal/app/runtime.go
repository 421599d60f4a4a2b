package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cam3ron2/issue-relay/internal/config"
	"github.com/cam3ron2/issue-relay/internal/forecast"
	"github.com/cam3ron2/issue-relay/internal/githubapi"
	"github.com/cam3ron2/issue-relay/internal/health"
	"github.com/cam3ron2/issue-relay/internal/relay"
	"github.com/cam3ron2/issue-relay/internal/telemetry"
	"go.uber.org/zap"
)

// RuntimeOptions overrides transports for tests.
type RuntimeOptions struct {
	GitHubTransport   http.RoundTripper
	ForecastTransport http.RoundTripper
}

// Runtime owns the relay's wired dependencies.
type Runtime struct {
	cfg        *config.Config
	service    *relay.Service
	metrics    *telemetry.Metrics
	callStatus *githubapi.CallStatus
	evaluator  *health.StatusEvaluator
	logger     *zap.Logger

	githubClientUsable bool
}

// NewRuntime builds the GitHub client, the forecast client, and the relay service from cfg.
func NewRuntime(cfg *config.Config, logger *zap.Logger, opts ...RuntimeOptions) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var options RuntimeOptions
	if len(opts) > 0 {
		options = opts[0]
	}

	metrics := telemetry.NewMetrics()
	callStatus := githubapi.NewCallStatus()

	token, tokenErr := cfg.GitHub.ResolveToken()
	if tokenErr != nil {
		logger.Warn("github token not configured; issue forecasts will be rejected until GITHUB_TOKEN is set")
	}

	httpClient := githubapi.NewHTTPClient(githubapi.HTTPClientConfig{
		Token:         token,
		Timeout:       cfg.GitHub.RequestTimeout,
		BaseTransport: options.GitHubTransport,
		Metrics:       metrics,
		Status:        callStatus,
		Logger:        logger,
	})
	restClient, err := githubapi.NewGitHubRESTClient(httpClient, cfg.GitHub.APIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("build github client: %w", err)
	}
	issueClient, err := githubapi.NewClient(restClient, cfg.GitHub.PageSize)
	if err != nil {
		return nil, fmt.Errorf("build issue client: %w", err)
	}

	forecastHTTP := &http.Client{
		Transport: options.ForecastTransport,
		Timeout:   cfg.Forecast.RequestTimeout,
	}
	forecaster, err := forecast.NewClient(cfg.Forecast.URL, forecastHTTP, metrics)
	if err != nil {
		return nil, fmt.Errorf("build forecast client: %w", err)
	}

	return &Runtime{
		cfg:                cfg,
		service:            relay.NewService(cfg, issueClient, forecaster, metrics, logger),
		metrics:            metrics,
		callStatus:         callStatus,
		evaluator:          health.NewStatusEvaluator(),
		logger:             logger,
		githubClientUsable: true,
	}, nil
}

// Service exposes the relay service for one-shot commands.
func (r *Runtime) Service() *relay.Service {
	return r.service
}

// Metrics exposes the runtime collectors.
func (r *Runtime) Metrics() *telemetry.Metrics {
	return r.metrics
}

// Handler returns the combined HTTP handler.
func (r *Runtime) Handler() http.Handler {
	return NewHTTPHandler(Routes{
		API:     NewAPI(r.service, r.logger),
		Metrics: r.metrics,
		Health:  health.NewHandler(r),
		Logger:  r.logger,
	})
}

// CurrentStatus evaluates relay health from configuration and recent GitHub calls.
func (r *Runtime) CurrentStatus(_ context.Context) health.Status {
	_, tokenErr := r.cfg.GitHub.ResolveToken()
	return r.evaluator.Evaluate(health.Input{
		GitHubClientUsable: r.githubClientUsable,
		ForecastConfigured: strings.TrimSpace(r.cfg.Forecast.URL) != "",
		CredentialPresent:  tokenErr == nil,
		GitHubHealthy:      r.callStatus.Healthy(),
	})
}
