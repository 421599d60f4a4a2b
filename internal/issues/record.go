package issues

import (
	"sort"

	"github.com/google/go-github/v75/github"
)

// State is the open/closed state of an issue.
type State string

const (
	// StateOpen is an open issue.
	StateOpen State = "open"
	// StateClosed is a closed issue.
	StateClosed State = "closed"
)

// Record is the reduced form of an issue forwarded to the forecasting service.
// JSON keys follow the forecasting service's request contract.
type Record struct {
	Number    int      `json:"issue_number"`
	CreatedAt *Date    `json:"created_at"`
	ClosedAt  *Date    `json:"closed_at"`
	Labels    []string `json:"labels"`
	State     State    `json:"State"`
	Author    string   `json:"Author"`
}

// SkipReason explains why a raw issue produced no Record. The zero value
// means the issue was kept.
type SkipReason string

const (
	// SkipNone marks a successfully normalized issue.
	SkipNone SkipReason = ""
	// SkipNilIssue marks a nil entry in the upstream item list.
	SkipNilIssue SkipReason = "nil_issue"
	// SkipMissingNumber marks an issue without a number.
	SkipMissingNumber SkipReason = "missing_number"
	// SkipMissingState marks an issue without a state.
	SkipMissingState SkipReason = "missing_state"
	// SkipUnknownState marks an issue whose state is neither open nor closed.
	SkipUnknownState SkipReason = "unknown_state"
	// SkipMissingAuthor marks an issue without a user login.
	SkipMissingAuthor SkipReason = "missing_author"
	// SkipMalformedLabel marks an issue carrying a label without a name.
	SkipMalformedLabel SkipReason = "malformed_label"
)

// Normalize reduces a raw GitHub issue to a Record. Issues missing a required
// field are not errors: the returned SkipReason names the missing piece.
func Normalize(raw *github.Issue) (Record, SkipReason) {
	if raw == nil {
		return Record{}, SkipNilIssue
	}
	if raw.Number == nil {
		return Record{}, SkipMissingNumber
	}
	if raw.State == nil {
		return Record{}, SkipMissingState
	}
	state := State(raw.GetState())
	if state != StateOpen && state != StateClosed {
		return Record{}, SkipUnknownState
	}
	if raw.User == nil || raw.User.Login == nil {
		return Record{}, SkipMissingAuthor
	}

	labels := make([]string, 0, len(raw.Labels))
	for _, label := range raw.Labels {
		if label == nil || label.Name == nil {
			return Record{}, SkipMalformedLabel
		}
		labels = append(labels, label.GetName())
	}

	return Record{
		Number:    raw.GetNumber(),
		CreatedAt: dateOfTimestamp(raw.CreatedAt),
		ClosedAt:  dateOfTimestamp(raw.ClosedAt),
		Labels:    labels,
		State:     state,
		Author:    raw.User.GetLogin(),
	}, SkipNone
}

// Batch is the outcome of normalizing a list of raw issues.
type Batch struct {
	// Records keeps the input order of every kept issue.
	Records []Record
	Skipped map[SkipReason]int
}

// SkippedTotal returns the number of dropped issues.
func (b Batch) SkippedTotal() int {
	total := 0
	for _, count := range b.Skipped {
		total += count
	}
	return total
}

// SkipReasons returns the distinct skip reasons in sorted order.
func (b Batch) SkipReasons() []SkipReason {
	reasons := make([]SkipReason, 0, len(b.Skipped))
	for reason := range b.Skipped {
		reasons = append(reasons, reason)
	}
	sort.Slice(reasons, func(i, j int) bool {
		return reasons[i] < reasons[j]
	})
	return reasons
}

// NormalizeAll normalizes every raw issue, keeping order and counting skips.
func NormalizeAll(raw []*github.Issue) Batch {
	batch := Batch{
		Records: make([]Record, 0, len(raw)),
		Skipped: map[SkipReason]int{},
	}
	for _, issue := range raw {
		record, reason := Normalize(issue)
		if reason != SkipNone {
			batch.Skipped[reason]++
			continue
		}
		batch.Records = append(batch.Records, record)
	}
	return batch
}

func dateOfTimestamp(ts *github.Timestamp) *Date {
	if ts == nil || ts.IsZero() {
		return nil
	}
	day := DateOf(ts.Time)
	return &day
}
