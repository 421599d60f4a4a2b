package relay

import (
	"context"
	"fmt"
	"strings"

	"github.com/cam3ron2/issue-relay/internal/githubapi"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RepositorySummary is one entry of the details endpoint payload.
type RepositorySummary struct {
	Name         string `json:"name"`
	Stars        int    `json:"stars"`
	Forks        int    `json:"forks"`
	TotalIssues  int    `json:"total_issues"`
	ClosedIssues int    `json:"closed_issues"`
}

// RepositoryDetails looks up every repository independently. A repository
// whose lookup fails is logged and left out; the batch itself never fails.
// Output follows input order.
func (s *Service) RepositoryDetails(ctx context.Context, repos []string) []RepositorySummary {
	if _, err := s.cfg.GitHub.ResolveToken(); err != nil {
		s.logger.Warn("github token missing; repository details requested unauthenticated")
	}

	results := make([]*RepositorySummary, len(repos))
	var group errgroup.Group
	group.SetLimit(max(1, s.cfg.GitHub.DetailsConcurrency))
	for i, repo := range repos {
		group.Go(func() error {
			summary, err := s.repositoryDetail(ctx, repo)
			if err != nil {
				s.metrics.ObserveDetailsOmitted()
				logFn := s.logger.Warn
				if IsContextError(err) {
					logFn = s.logger.Debug
				}
				logFn("repository details omitted", zap.String("repository", repo), zap.Error(err))
				return nil
			}
			results[i] = &summary
			return nil
		})
	}
	_ = group.Wait()

	summaries := make([]RepositorySummary, 0, len(repos))
	for _, summary := range results {
		if summary != nil {
			summaries = append(summaries, *summary)
		}
	}
	return summaries
}

func (s *Service) repositoryDetail(ctx context.Context, repo string) (RepositorySummary, error) {
	repo = strings.TrimSpace(repo)
	if _, _, err := githubapi.SplitRepository(repo); err != nil {
		return RepositorySummary{}, err
	}

	summary := RepositorySummary{Name: repo}
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		info, err := s.source.GetRepository(groupCtx, repo)
		if err != nil {
			return err
		}
		summary.Stars = info.Stars
		summary.Forks = info.Forks
		return nil
	})
	group.Go(func() error {
		total, err := s.source.CountIssues(groupCtx, githubapi.TotalIssuesQuery(repo))
		if err != nil {
			return fmt.Errorf("count issues: %w", err)
		}
		summary.TotalIssues = total
		return nil
	})
	group.Go(func() error {
		closed, err := s.source.CountIssues(groupCtx, githubapi.ClosedIssuesQuery(repo))
		if err != nil {
			return fmt.Errorf("count closed issues: %w", err)
		}
		summary.ClosedIssues = closed
		return nil
	})
	if err := group.Wait(); err != nil {
		return RepositorySummary{}, err
	}
	return summary, nil
}
