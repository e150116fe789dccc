package driven

import (
	"context"

	"github.com/xiaocang/ghpr-view/internal/domain/model"
)

// GitHubClient defines the driven port for fetching the viewer's pull
// requests from the GitHub GraphQL API. One call covers the whole refresh:
// the combined four-bucket search, normalization, and any follow-up
// enrichment pages for CI contexts and review threads.
type GitHubClient interface {
	// FetchInvolved returns the normalized query buckets for the given user.
	// Per-PR enrichment failures are logged and leave that PR at its
	// first-page values; only transport and query-level failures return an
	// error.
	FetchInvolved(ctx context.Context, username string, opts model.FetchOptions) (*model.FetchResult, error)

	// RateLimit returns the most recently observed API quota, or nil before
	// the first response.
	RateLimit() *model.RateLimitInfo
}
