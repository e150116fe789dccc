package model

import "time"

// PullRequest represents a GitHub pull request tracked by ghpr-view.
//
// ID is the PR's stable numeric database id from the GraphQL API. It is the
// only identity used for change detection and caching: two PullRequest values
// refer to the same PR iff their IDs match, and every other field may change
// between refreshes. Number is the per-repository PR number and is display
// data, not identity.
type PullRequest struct {
	ID              int64     `json:"id"`
	Number          int       `json:"number"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	AuthorAvatarURL string    `json:"authorAvatarUrl,omitempty"`
	RepoOwner       string    `json:"repoOwner"`
	RepoName        string    `json:"repoName"`
	URL             string    `json:"url"`
	State           PRState   `json:"state"`
	IsDraft         bool      `json:"isDraft"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
	MergedAt        time.Time `json:"mergedAt,omitzero"`
	LastCommitAt    time.Time `json:"lastCommitAt,omitzero"`

	CI CISummary `json:"ci"`

	// Review-state fields. ViewerReviewState carries the viewer's last review
	// verdict as reported by GitHub (APPROVED, CHANGES_REQUESTED, ...); empty
	// when the viewer has not reviewed. ReviewStatus is the derived value and
	// is only computed for review-request PRs.
	ViewerReviewState   string       `json:"viewerReviewState,omitempty"`
	ViewerReviewedAt    time.Time    `json:"viewerReviewedAt,omitzero"`
	LastReviewRequestAt time.Time    `json:"lastReviewRequestAt,omitzero"`
	OwnThreadsResolved  bool         `json:"ownThreadsResolved"`
	ApprovalCount       int          `json:"approvalCount"`
	ReviewStatus        ReviewStatus `json:"reviewStatus,omitempty"`

	Threads []ReviewThread `json:"threads"`

	// ThreadsTruncated is set when thread enrichment stopped at its cap with
	// older pages still unfetched, so Threads may be incomplete.
	ThreadsTruncated bool     `json:"threadsTruncated,omitempty"`
	Category         Category `json:"category"`
}

// RepoFullName returns the repository in "owner/name" form.
func (pr PullRequest) RepoFullName() string {
	return pr.RepoOwner + "/" + pr.RepoName
}

// UnresolvedThreadCount counts review threads that are neither resolved nor
// outdated. This is the number shown on the unresolved badge and the value
// the change detector compares across refreshes.
func (pr PullRequest) UnresolvedThreadCount() int {
	n := 0
	for _, t := range pr.Threads {
		if !t.IsResolved && !t.IsOutdated {
			n++
		}
	}
	return n
}

// CISummary is the aggregated CI view of a PR's most recent commit, computed
// from individual contexts rather than from GitHub's own rollup state.
type CISummary struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Pending int `json:"pending"`

	// Status is derived from the counts above. Empty means the PR has no CI
	// configured at all.
	Status CIStatus `json:"status,omitempty"`

	// RollupState is GitHub's server-computed aggregate for the commit,
	// retained for enrichment-disagreement detection.
	RollupState string `json:"rollupState,omitempty"`

	// LimitReached is set when enrichment stopped at its hard cap with pages
	// still remaining, meaning the counts may be incomplete.
	LimitReached bool `json:"limitReached,omitempty"`

	// Checks is the per-check breakdown of every counted context, newest run
	// per check name.
	Checks []CheckResult `json:"checks,omitempty"`
}

// CheckResult is one counted CI context after re-run deduplication.
type CheckResult struct {
	Name     string   `json:"name"`
	Workflow string   `json:"workflow,omitempty"`
	Status   CIStatus `json:"status"`
}
