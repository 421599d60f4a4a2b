// Package relay composes GitHub issue data and forecasting results for the
// relay's HTTP endpoints.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/cam3ron2/issue-relay/internal/config"
	"github.com/cam3ron2/issue-relay/internal/githubapi"
	"github.com/cam3ron2/issue-relay/internal/issues"
	"github.com/cam3ron2/issue-relay/internal/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// IssueSource reads repository metadata and issues from the issue tracker.
type IssueSource interface {
	GetRepository(ctx context.Context, repo string) (githubapi.RepositoryInfo, error)
	FetchIssues(ctx context.Context, repo string, windowCount int, reference time.Time) (githubapi.FetchResult, error)
	CountIssues(ctx context.Context, query string) (int, error)
}

// Forecaster relays records to the forecasting service.
type Forecaster interface {
	Forecast(ctx context.Context, repo string, records []issues.Record, dimension issues.Dimension) (json.RawMessage, error)
}

// ForecastReport is the issue-forecast endpoint payload.
type ForecastReport struct {
	Created            []issues.MonthBucket `json:"created"`
	Closed             []issues.MonthBucket `json:"closed"`
	StarCount          int                  `json:"starCount"`
	ForkCount          int                  `json:"forkCount"`
	CreatedAtImageURLs json.RawMessage      `json:"createdAtImageUrls"`
	ClosedAtImageURLs  json.RawMessage      `json:"closedAtImageUrls"`
}

// Service runs the relay's request flows. It holds no per-request state.
type Service struct {
	cfg        *config.Config
	source     IssueSource
	forecaster Forecaster
	metrics    *telemetry.Metrics
	logger     *zap.Logger

	// Now supplies the reference date for the issue window walk.
	Now func() time.Time
}

// NewService creates a relay service.
func NewService(cfg *config.Config, source IssueSource, forecaster Forecaster, metrics *telemetry.Metrics, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:        cfg,
		source:     source,
		forecaster: forecaster,
		metrics:    metrics,
		logger:     logger,
		Now:        time.Now,
	}
}

// IssueForecast fetches a year of issues for repo, aggregates them by month,
// and attaches both forecasts. It fails fast: any upstream error aborts the
// request and no partial report is returned.
func (s *Service) IssueForecast(ctx context.Context, repo string) (ForecastReport, error) {
	repo = strings.TrimSpace(repo)
	if repo == "" {
		return ForecastReport{}, ValidationError("Missing 'repository' in request body", nil)
	}
	if _, _, err := githubapi.SplitRepository(repo); err != nil {
		return ForecastReport{}, ValidationError("Invalid 'repository' in request body", err)
	}

	if _, err := s.cfg.GitHub.ResolveToken(); err != nil {
		return ForecastReport{}, ConfigurationError("GitHub token not found or invalid", err)
	}

	logger := s.logger.With(zap.String("repository", repo))

	repository, err := s.source.GetRepository(ctx, repo)
	if err != nil {
		return ForecastReport{}, UpstreamError("GitHub repo fetch failed", err)
	}

	fetched, err := s.source.FetchIssues(ctx, repo, s.cfg.GitHub.WindowCount, s.Now())
	if err != nil {
		return ForecastReport{}, UpstreamError("Failed to fetch issues", err)
	}
	s.logTruncatedWindows(logger, fetched.Windows)

	batch := issues.NormalizeAll(fetched.Issues)
	for _, reason := range batch.SkipReasons() {
		s.metrics.ObserveSkipped(string(reason), batch.Skipped[reason])
	}
	if skipped := batch.SkippedTotal(); skipped > 0 {
		logger.Info("skipped malformed issues", zap.Int("skipped", skipped), zap.Any("reasons", batch.Skipped))
	}
	if len(batch.Records) == 0 {
		return ForecastReport{}, NotFoundError("No issues found for the repo")
	}

	report := ForecastReport{
		Created:   issues.Aggregate(batch.Records, issues.Created),
		Closed:    issues.Aggregate(batch.Records, issues.Closed),
		StarCount: repository.Stars,
		ForkCount: repository.Forks,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		created, err := s.forecaster.Forecast(groupCtx, repo, batch.Records, issues.Created)
		report.CreatedAtImageURLs = created
		return err
	})
	group.Go(func() error {
		closed, err := s.forecaster.Forecast(groupCtx, repo, batch.Records, issues.Closed)
		report.ClosedAtImageURLs = closed
		return err
	})
	if err := group.Wait(); err != nil {
		return ForecastReport{}, UpstreamError("Forecast service failed", err)
	}

	logger.Info(
		"issue forecast composed",
		zap.Int("issues", len(batch.Records)),
		zap.Int("created_months", len(report.Created)),
		zap.Int("closed_months", len(report.Closed)),
	)
	return report, nil
}

func (s *Service) logTruncatedWindows(logger *zap.Logger, windows []githubapi.Window) {
	for _, window := range windows {
		if !window.Truncated() {
			continue
		}
		s.metrics.ObserveTruncatedWindow()
		logger.Debug(
			"issue search window capped by page size",
			zap.Time("window_start", window.Start),
			zap.Time("window_end", window.End),
			zap.Int("returned", window.Returned),
			zap.Int("total", window.Total),
		)
	}
}

// IsContextError reports whether err came from a cancelled or expired context.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
