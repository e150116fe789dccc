package model

// DeriveReviewStatus computes the review status of a review-request PR from
// the viewer's perspective.
//
// A CHANGES_REQUESTED verdict goes stale (changes-resolved) when the author
// has visibly moved past it: the viewer's own threads are all resolved, a
// newer commit landed after the review, or review was re-requested after it.
func DeriveReviewStatus(pr PullRequest) ReviewStatus {
	switch pr.ViewerReviewState {
	case "APPROVED":
		return ReviewStatusApproved
	case "CHANGES_REQUESTED":
		if pr.OwnThreadsResolved {
			return ReviewStatusChangesResolved
		}
		if !pr.LastCommitAt.IsZero() && pr.LastCommitAt.After(pr.ViewerReviewedAt) {
			return ReviewStatusChangesResolved
		}
		if !pr.LastReviewRequestAt.IsZero() && pr.LastReviewRequestAt.After(pr.ViewerReviewedAt) {
			return ReviewStatusChangesResolved
		}
		return ReviewStatusChangesRequested
	case "DISMISSED":
		return ReviewStatusChangesResolved
	default:
		// No review yet, COMMENTED, or PENDING.
		return ReviewStatusWaiting
	}
}
