package github

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/xiaocang/ghpr-view/internal/domain/model"
)

type contextsPageData struct {
	Repository struct {
		PullRequest struct {
			Commits struct {
				Nodes []struct {
					Commit struct {
						StatusCheckRollup *rollupNode `json:"statusCheckRollup"`
					} `json:"commit"`
				} `json:"nodes"`
			} `json:"commits"`
		} `json:"pullRequest"`
	} `json:"repository"`
}

type threadsPageData struct {
	Repository struct {
		PullRequest struct {
			ReviewThreads threadConnection `json:"reviewThreads"`
		} `json:"pullRequest"`
	} `json:"repository"`
}

// enrich fetches follow-up pages for one PR when the first page
// under-reported. Enrichment is best-effort: a failure is logged and the PR
// keeps its first-page values, never failing the refresh.
func (c *Client) enrich(ctx context.Context, st *prState, opts model.FetchOptions) {
	if needsCIEnrichment(st, opts) {
		if err := c.enrichContexts(ctx, st); err != nil {
			slog.Warn("ci context enrichment failed, keeping first page",
				"repo", st.pr.RepoFullName(), "pr", st.pr.Number, "error", err)
		}
	}

	if st.threadsHavePrev && st.threadsCursor != "" {
		if err := c.enrichThreads(ctx, st); err != nil {
			slog.Warn("review thread enrichment failed, keeping first page",
				"repo", st.pr.RepoFullName(), "pr", st.pr.Number, "error", err)
		}
	}
}

// needsCIEnrichment reports whether the rollup claims a state the first
// page's counts cannot explain while more context pages exist.
func needsCIEnrichment(st *prState, opts model.FetchOptions) bool {
	if !st.ciHasNext || st.ciCursor == "" {
		return false
	}
	counts := aggregateCI(st.contexts, opts.CIExcludeFilter)
	return (st.rollupState == "FAILURE" && counts.failure == 0) ||
		(st.rollupState == "PENDING" && counts.pending == 0)
}

// enrichContexts pages forward through the remaining CI contexts, stopping
// at the cap rather than fetching unbounded history.
func (c *Client) enrichContexts(ctx context.Context, st *prState) error {
	cursor := st.ciCursor
	for {
		if len(st.contexts) >= maxContextsPerPR {
			st.ciTruncated = true
			return nil
		}

		data, err := c.do(ctx, checkContextsQuery, map[string]any{
			"owner":    st.pr.RepoOwner,
			"name":     st.pr.RepoName,
			"number":   st.pr.Number,
			"cursor":   cursor,
			"pageSize": enrichContextsPage,
		})
		if err != nil {
			return err
		}

		var decoded contextsPageData
		if err := json.Unmarshal(data, &decoded); err != nil {
			return &model.DecodeError{Err: err}
		}

		commits := decoded.Repository.PullRequest.Commits.Nodes
		if len(commits) == 0 || commits[0].Commit.StatusCheckRollup == nil {
			// A new commit landed mid-refresh; the next cycle picks it up.
			return nil
		}
		page := commits[0].Commit.StatusCheckRollup.Contexts
		if len(page.Nodes) == 0 {
			return nil
		}

		st.contexts = append(st.contexts, page.Nodes...)
		st.ciEnriched = true

		if !page.PageInfo.HasNextPage || page.PageInfo.EndCursor == "" {
			return nil
		}
		cursor = page.PageInfo.EndCursor
	}
}

// enrichThreads pages backward through older review threads, prepending
// each page since the first fetch held the newest ones.
func (c *Client) enrichThreads(ctx context.Context, st *prState) error {
	cursor := st.threadsCursor
	for {
		if len(st.pr.Threads) >= maxThreadsPerPR {
			st.threadsTruncated = true
			return nil
		}

		data, err := c.do(ctx, reviewThreadsQuery, map[string]any{
			"owner":    st.pr.RepoOwner,
			"name":     st.pr.RepoName,
			"number":   st.pr.Number,
			"cursor":   cursor,
			"pageSize": enrichThreadsPage,
			"comments": threadCommentsPerPR,
		})
		if err != nil {
			return err
		}

		var decoded threadsPageData
		if err := json.Unmarshal(data, &decoded); err != nil {
			return &model.DecodeError{Err: err}
		}

		page := decoded.Repository.PullRequest.ReviewThreads
		if len(page.Nodes) == 0 {
			return nil
		}

		st.pr.Threads = append(normalizeThreads(page.Nodes), st.pr.Threads...)

		if !page.PageInfo.HasPreviousPage || page.PageInfo.StartCursor == "" {
			return nil
		}
		cursor = page.PageInfo.StartCursor
	}
}
