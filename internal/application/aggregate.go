package application

import (
	"sort"
	"strings"
	"time"

	"github.com/xiaocang/ghpr-view/internal/config"
	"github.com/xiaocang/ghpr-view/internal/domain/model"
)

// BuildSnapshot folds the four fetched buckets into the display snapshot.
//
// The authored and review-request buckets are category-tagged by query
// construction; the merged bucket mixes both roles and is re-tagged here by
// comparing the PR author against the viewer. Review-request PRs appearing in
// both the review-requested and reviewed-by buckets are deduplicated by id,
// first seen wins, with authored taking precedence over either. Both lists
// pass the repository allow-list; the open list additionally drops drafts
// when the user has hidden them. The merged list keeps only PRs merged
// within the display window, which is tighter than the server-side fetch
// window to tolerate clock and timezone skew.
func BuildSnapshot(res *model.FetchResult, username string, settings config.Settings, now time.Time) model.Snapshot {
	seen := make(map[int64]bool)
	open := make([]model.PullRequest, 0, len(res.Authored)+len(res.ReviewRequested)+len(res.ReviewedBy))
	for _, bucket := range [][]model.PullRequest{res.Authored, res.ReviewRequested, res.ReviewedBy} {
		for _, pr := range bucket {
			if seen[pr.ID] {
				continue
			}
			seen[pr.ID] = true
			if pr.IsDraft && !settings.ShowDrafts {
				continue
			}
			if !settings.AllowsRepo(pr.RepoFullName()) {
				continue
			}
			open = append(open, pr)
		}
	}
	sort.Slice(open, func(i, j int) bool {
		return open[i].UpdatedAt.After(open[j].UpdatedAt)
	})

	cutoff := now.Add(-settings.MergedDisplayWindow())
	mergedSeen := make(map[int64]bool)
	merged := make([]model.PullRequest, 0, len(res.MergedInvolved))
	for _, pr := range res.MergedInvolved {
		if mergedSeen[pr.ID] {
			continue
		}
		mergedSeen[pr.ID] = true
		if !mergedStamp(pr).After(cutoff) {
			continue
		}
		if !settings.AllowsRepo(pr.RepoFullName()) {
			continue
		}
		if strings.EqualFold(pr.Author, username) {
			pr.Category = model.CategoryAuthored
		} else {
			pr.Category = model.CategoryReviewRequest
			pr.ReviewStatus = model.DeriveReviewStatus(pr)
		}
		merged = append(merged, pr)
	}
	sort.Slice(merged, func(i, j int) bool {
		return mergedStamp(merged[i]).After(mergedStamp(merged[j]))
	})

	return model.Snapshot{
		LastUpdated: now,
		Open:        open,
		Merged:      merged,
	}
}

// mergedStamp is the timestamp merged PRs are windowed and sorted by. Some
// search results omit mergedAt, so updatedAt stands in.
func mergedStamp(pr model.PullRequest) time.Time {
	if !pr.MergedAt.IsZero() {
		return pr.MergedAt
	}
	return pr.UpdatedAt
}
