package model

// FetchOptions carries the per-refresh settings the GitHub adapter needs.
// The engine re-reads settings at the start of every refresh, so live edits
// take effect on the next cycle without restarting polling.
type FetchOptions struct {
	// MergedWindowDays bounds the server-side merged search qualifier.
	MergedWindowDays int
	// CIExcludeFilter holds case-insensitive substrings; a status context
	// whose name matches any entry is excluded from CI aggregation.
	CIExcludeFilter []string
}

// FetchResult holds the four normalized query buckets from one combined
// search request, before aggregation.
type FetchResult struct {
	Authored        []PullRequest
	ReviewRequested []PullRequest
	ReviewedBy      []PullRequest
	MergedInvolved  []PullRequest
	RateLimit       *RateLimitInfo
}
