package githubapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v75/github"
)

const searchDateLayout = "2006-01-02"

// ErrInvalidRepository reports an identifier that is not "owner/repo".
var ErrInvalidRepository = errors.New("repository must be in owner/repo form")

// RepositoryInfo is the subset of repository metadata the relay reports.
type RepositoryInfo struct {
	FullName string
	Stars    int
	Forks    int
}

// Window is one inclusive creation-date range searched by FetchIssues.
type Window struct {
	Start time.Time
	End   time.Time
	// Returned is the number of items on the single fetched page.
	Returned int
	// Total is GitHub's total_count for the window query.
	Total int
}

// Truncated reports whether the window matched more issues than were fetched.
func (w Window) Truncated() bool {
	return w.Total > w.Returned
}

// FetchResult is the ordered output of a windowed issue fetch.
type FetchResult struct {
	Issues  []*github.Issue
	Windows []Window
}

// Client reads repository metadata and issue searches from the GitHub REST API.
type Client struct {
	rest     *github.Client
	pageSize int
}

// NewClient wraps a go-github client. pageSize caps the items fetched per
// search window.
func NewClient(rest *github.Client, pageSize int) (*Client, error) {
	if rest == nil {
		return nil, fmt.Errorf("github rest client is required")
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Client{rest: rest, pageSize: pageSize}, nil
}

// SplitRepository splits "owner/repo" into its two parts.
func SplitRepository(repo string) (string, string, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(repo), "/")
	owner = strings.TrimSpace(owner)
	name = strings.TrimSpace(name)
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRepository, repo)
	}
	return owner, name, nil
}

// GetRepository reads star and fork counts for one repository.
func (c *Client) GetRepository(ctx context.Context, repo string) (RepositoryInfo, error) {
	owner, name, err := SplitRepository(repo)
	if err != nil {
		return RepositoryInfo{}, err
	}

	repository, _, err := c.rest.Repositories.Get(ctx, owner, name)
	if err != nil {
		return RepositoryInfo{}, fmt.Errorf("get repository %s: %w", repo, err)
	}
	return RepositoryInfo{
		FullName: repository.GetFullName(),
		Stars:    repository.GetStargazersCount(),
		Forks:    repository.GetForksCount(),
	}, nil
}

// CountIssues returns the search total_count for a query.
func (c *Client) CountIssues(ctx context.Context, query string) (int, error) {
	result, _, err := c.rest.Search.Issues(ctx, query, &github.SearchOptions{
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		return 0, fmt.Errorf("search issues %q: %w", query, err)
	}
	return result.GetTotal(), nil
}

// FetchIssues walks backward from reference one calendar month at a time,
// windowCount times, collecting the first page of issues created in each
// window. Both ends of a window are inclusive, so adjacent windows share their
// boundary day. Items are appended in window order with no deduplication.
// Any failed window aborts the whole fetch.
func (c *Client) FetchIssues(ctx context.Context, repo string, windowCount int, reference time.Time) (FetchResult, error) {
	if _, _, err := SplitRepository(repo); err != nil {
		return FetchResult{}, err
	}
	if windowCount <= 0 {
		return FetchResult{}, fmt.Errorf("window count must be > 0")
	}

	result := FetchResult{
		Windows: make([]Window, 0, windowCount),
	}
	end := truncateToDate(reference)
	for i := 0; i < windowCount; i++ {
		start := MonthBefore(end)
		query := IssueWindowQuery(repo, start, end)

		page, _, err := c.rest.Search.Issues(ctx, query, &github.SearchOptions{
			ListOptions: github.ListOptions{PerPage: c.pageSize},
		})
		if err != nil {
			return FetchResult{}, fmt.Errorf(
				"search issues window %s..%s: %w",
				start.Format(searchDateLayout),
				end.Format(searchDateLayout),
				err,
			)
		}

		result.Issues = append(result.Issues, page.Issues...)
		result.Windows = append(result.Windows, Window{
			Start:    start,
			End:      end,
			Returned: len(page.Issues),
			Total:    page.GetTotal(),
		})
		end = start
	}
	return result, nil
}

// IssueWindowQuery builds the search query for issues created in [start, end].
func IssueWindowQuery(repo string, start, end time.Time) string {
	return fmt.Sprintf(
		"type:issue repo:%s created:%s..%s",
		strings.TrimSpace(repo),
		start.Format(searchDateLayout),
		end.Format(searchDateLayout),
	)
}

// TotalIssuesQuery matches every issue in a repository.
func TotalIssuesQuery(repo string) string {
	return fmt.Sprintf("repo:%s type:issue", strings.TrimSpace(repo))
}

// ClosedIssuesQuery matches closed issues in a repository.
func ClosedIssuesQuery(repo string) string {
	return fmt.Sprintf("repo:%s type:issue state:closed", strings.TrimSpace(repo))
}

// MonthBefore returns the same day one calendar month earlier, clamped to the
// last day of the earlier month (Mar 31 -> Feb 28, or Feb 29 in leap years).
func MonthBefore(day time.Time) time.Time {
	year, month, dom := day.Date()
	firstOfPrevious := time.Date(year, month-1, 1, 0, 0, 0, 0, time.UTC)
	lastOfPrevious := firstOfPrevious.AddDate(0, 1, -1).Day()
	if dom > lastOfPrevious {
		dom = lastOfPrevious
	}
	return time.Date(firstOfPrevious.Year(), firstOfPrevious.Month(), dom, 0, 0, 0, 0, time.UTC)
}

func truncateToDate(ts time.Time) time.Time {
	year, month, day := ts.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
