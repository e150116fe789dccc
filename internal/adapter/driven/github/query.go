package github

import (
	"fmt"
	"regexp"
	"time"
)

// Per-bucket and per-page fetch limits. The first page of a PR carries the
// newest 20 review threads and the first 20 CI contexts; enrichment pages
// are larger to cut round trips.
const (
	searchPageSize      = 50
	firstPageThreads    = 20
	firstPageContexts   = 20
	threadCommentsPerPR = 5
	enrichContextsPage  = 100
	enrichThreadsPage   = 50
	maxContextsPerPR    = 200
	maxThreadsPerPR     = 200
	latestReviewsPerPR  = 10
	reviewRequestsPerPR = 5
)

// validUsername matches GitHub logins (alphanumerics and hyphens). Anything
// else is rejected before interpolation into the search query string.
var validUsername = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// prFieldsFragment is the shared field selection embedded in each search
// bucket. %s is the viewer's login, used to scope the reviews connection.
const prFieldsFragment = `fragment prFields on PullRequest {
	databaseId
	fullDatabaseId
	number
	title
	url
	state
	isDraft
	createdAt
	updatedAt
	mergedAt
	author { login avatarUrl }
	repository { name owner { login } }
	reviewThreads(last: %d) {
		pageInfo { hasPreviousPage startCursor }
		nodes {
			id
			isResolved
			isOutdated
			path
			line
			comments(first: %d) {
				nodes { id author { login } body createdAt }
			}
		}
	}
	commits(last: 1) {
		nodes {
			commit {
				committedDate
				statusCheckRollup {
					state
					contexts(first: %d) {
						pageInfo { hasNextPage endCursor }
						totalCount
						nodes {
							__typename
							... on CheckRun {
								name
								conclusion
								checkSuite { workflowRun { workflow { name } } }
							}
							... on StatusContext { context state }
						}
					}
				}
			}
		}
	}
	reviews(last: 1, author: %q) { nodes { state submittedAt } }
	latestReviews(first: %d) { nodes { state author { login } } }
	timelineItems(last: %d, itemTypes: [REVIEW_REQUESTED_EVENT]) {
		nodes { ... on ReviewRequestedEvent { createdAt } }
	}
}`

// BuildSearchQuery constructs the combined four-bucket search query for the
// given user. It is a pure function of its arguments: the merged bucket's
// server-side cutoff is the UTC midnight mergedWindowDays before now.
func BuildSearchQuery(username string, now time.Time, mergedWindowDays int) (string, error) {
	if username == "" {
		return "", fmt.Errorf("username is empty")
	}
	if !validUsername.MatchString(username) {
		return "", fmt.Errorf("username %q contains characters not allowed in a search qualifier", username)
	}
	if mergedWindowDays < 1 {
		mergedWindowDays = 1
	}

	mergedCutoff := now.UTC().AddDate(0, 0, -mergedWindowDays).Format("2006-01-02")

	fragment := fmt.Sprintf(prFieldsFragment,
		firstPageThreads, threadCommentsPerPR, firstPageContexts,
		username, latestReviewsPerPR, reviewRequestsPerPR)

	query := fmt.Sprintf(`%s
query {
	authored: search(query: "is:open is:pr author:%s archived:false", type: ISSUE, first: %d) {
		nodes { ... on PullRequest { ...prFields } }
	}
	reviewRequested: search(query: "is:open is:pr review-requested:%s archived:false", type: ISSUE, first: %d) {
		nodes { ... on PullRequest { ...prFields } }
	}
	reviewedBy: search(query: "is:open is:pr reviewed-by:%s -author:%s archived:false", type: ISSUE, first: %d) {
		nodes { ... on PullRequest { ...prFields } }
	}
	mergedInvolved: search(query: "is:pr is:merged involves:%s merged:>=%s", type: ISSUE, first: %d) {
		nodes { ... on PullRequest { ...prFields } }
	}
}`,
		fragment,
		username, searchPageSize,
		username, searchPageSize,
		username, username, searchPageSize,
		username, mergedCutoff, searchPageSize,
	)

	return query, nil
}

// checkContextsQuery fetches one follow-up page of CI contexts for a PR.
const checkContextsQuery = `query($owner: String!, $name: String!, $number: Int!, $cursor: String!, $pageSize: Int!) {
	repository(owner: $owner, name: $name) {
		pullRequest(number: $number) {
			commits(last: 1) {
				nodes {
					commit {
						statusCheckRollup {
							state
							contexts(first: $pageSize, after: $cursor) {
								pageInfo { hasNextPage endCursor }
								totalCount
								nodes {
									__typename
									... on CheckRun {
										name
										conclusion
										checkSuite { workflowRun { workflow { name } } }
									}
									... on StatusContext { context state }
								}
							}
						}
					}
				}
			}
		}
	}
}`

// reviewThreadsQuery fetches one follow-up page of review threads, walking
// backward since the first page holds the newest threads and older ones
// precede them.
const reviewThreadsQuery = `query($owner: String!, $name: String!, $number: Int!, $cursor: String!, $pageSize: Int!, $comments: Int!) {
	repository(owner: $owner, name: $name) {
		pullRequest(number: $number) {
			reviewThreads(last: $pageSize, before: $cursor) {
				pageInfo { hasPreviousPage startCursor }
				nodes {
					id
					isResolved
					isOutdated
					path
					line
					comments(first: $comments) {
						nodes { id author { login } body createdAt }
					}
				}
			}
		}
	}
}`
