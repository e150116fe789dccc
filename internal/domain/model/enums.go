package model

// PRState represents the lifecycle state of a pull request.
type PRState string

const (
	PRStateOpen   PRState = "open"
	PRStateClosed PRState = "closed"
	PRStateMerged PRState = "merged"
)

// Category distinguishes why a PR is being tracked for the viewer.
type Category string

const (
	CategoryAuthored      Category = "authored"
	CategoryReviewRequest Category = "review-request"
)

// CIStatus is the derived CI state of a PR's most recent commit. The empty
// value means the PR has no CI configured.
type CIStatus string

const (
	CIStatusSuccess CIStatus = "success"
	CIStatusFailure CIStatus = "failure"
	CIStatusPending CIStatus = "pending"
	// CIStatusExpected means a rollup existed but every context was excluded
	// from counting (skipped, neutral, or filtered): CI is configured but has
	// produced no signal.
	CIStatusExpected CIStatus = "expected"
	// CIStatusUnknown means GitHub's rollup disagreed with locally counted
	// contexts even after enrichment, so no trustworthy status exists.
	CIStatusUnknown CIStatus = "unknown"
)

// ReviewStatus is the derived state of a review-request PR from the
// viewer's perspective.
type ReviewStatus string

const (
	ReviewStatusWaiting          ReviewStatus = "waiting"
	ReviewStatusApproved         ReviewStatus = "approved"
	ReviewStatusChangesRequested ReviewStatus = "changes-requested"
	// ReviewStatusChangesResolved marks a changes-requested verdict that has
	// gone stale: the author resolved the viewer's threads, pushed a newer
	// commit, or re-requested review after the verdict, or the review was
	// dismissed.
	ReviewStatusChangesResolved ReviewStatus = "changes-resolved"
)

// NotificationKind identifies the type of a notification intent.
type NotificationKind string

const (
	NotificationUnresolvedComments NotificationKind = "unresolved-comments"
	NotificationCIStatus           NotificationKind = "ci-status"
)
