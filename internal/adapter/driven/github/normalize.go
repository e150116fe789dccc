package github

import (
	"strconv"
	"strings"
	"time"

	"github.com/xiaocang/ghpr-view/internal/domain/model"
)

// searchData is the decoded shape of the combined search response, one
// bucket per alias.
type searchData struct {
	Authored        searchBucket `json:"authored"`
	ReviewRequested searchBucket `json:"reviewRequested"`
	ReviewedBy      searchBucket `json:"reviewedBy"`
	MergedInvolved  searchBucket `json:"mergedInvolved"`
}

type searchBucket struct {
	Nodes []prNode `json:"nodes"`
}

// prNode mirrors the shared PR field fragment. Non-PR search results decode
// to zero values and are dropped by the missing-id rule.
type prNode struct {
	DatabaseID     *int64 `json:"databaseId"`
	FullDatabaseID string `json:"fullDatabaseId"`
	Number         int    `json:"number"`
	Title          string `json:"title"`
	URL            string `json:"url"`
	State          string `json:"state"`
	IsDraft        bool   `json:"isDraft"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	MergedAt  *time.Time `json:"mergedAt"`

	Author struct {
		Login     string `json:"login"`
		AvatarURL string `json:"avatarUrl"`
	} `json:"author"`

	Repository struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`

	ReviewThreads threadConnection `json:"reviewThreads"`

	Commits struct {
		Nodes []struct {
			Commit struct {
				CommittedDate     time.Time   `json:"committedDate"`
				StatusCheckRollup *rollupNode `json:"statusCheckRollup"`
			} `json:"commit"`
		} `json:"nodes"`
	} `json:"commits"`

	Reviews struct {
		Nodes []struct {
			State       string    `json:"state"`
			SubmittedAt time.Time `json:"submittedAt"`
		} `json:"nodes"`
	} `json:"reviews"`

	LatestReviews struct {
		Nodes []struct {
			State  string `json:"state"`
			Author struct {
				Login string `json:"login"`
			} `json:"author"`
		} `json:"nodes"`
	} `json:"latestReviews"`

	TimelineItems struct {
		Nodes []struct {
			CreatedAt time.Time `json:"createdAt"`
		} `json:"nodes"`
	} `json:"timelineItems"`
}

type threadConnection struct {
	PageInfo struct {
		HasPreviousPage bool   `json:"hasPreviousPage"`
		StartCursor     string `json:"startCursor"`
	} `json:"pageInfo"`
	Nodes []threadNode `json:"nodes"`
}

type threadNode struct {
	ID         string `json:"id"`
	IsResolved bool   `json:"isResolved"`
	IsOutdated bool   `json:"isOutdated"`
	Path       string `json:"path"`
	Line       *int   `json:"line"`
	Comments   struct {
		Nodes []struct {
			ID     string `json:"id"`
			Author struct {
				Login string `json:"login"`
			} `json:"author"`
			Body      string    `json:"body"`
			CreatedAt time.Time `json:"createdAt"`
		} `json:"nodes"`
	} `json:"comments"`
}

type rollupNode struct {
	State    string            `json:"state"`
	Contexts contextConnection `json:"contexts"`
}

type contextConnection struct {
	PageInfo struct {
		HasNextPage bool   `json:"hasNextPage"`
		EndCursor   string `json:"endCursor"`
	} `json:"pageInfo"`
	TotalCount int           `json:"totalCount"`
	Nodes      []contextNode `json:"nodes"`
}

// contextNode is the raw union shape shared by CheckRun and StatusContext.
type contextNode struct {
	Typename   string `json:"__typename"`
	Name       string `json:"name"`
	Conclusion string `json:"conclusion"`
	CheckSuite struct {
		WorkflowRun struct {
			Workflow struct {
				Name string `json:"name"`
			} `json:"workflow"`
		} `json:"workflowRun"`
	} `json:"checkSuite"`
	Context string `json:"context"`
	State   string `json:"state"`
}

// ciContextKind tags the resolved variant of a raw context node.
type ciContextKind int

const (
	// kindCheckRun is a finished check run carrying a conclusion.
	kindCheckRun ciContextKind = iota
	// kindStatus is a commit status carrying a state.
	kindStatus
	// kindInProgress is a context with neither conclusion nor state, a
	// check run that has not finished.
	kindInProgress
)

type ciContext struct {
	kind       ciContextKind
	name       string
	workflow   string
	conclusion string
	state      string
}

// resolveContext disambiguates the union once: a conclusion makes it a check
// run, a state makes it a status, neither means still running.
func resolveContext(node contextNode) ciContext {
	switch {
	case node.Conclusion != "":
		return ciContext{
			kind:       kindCheckRun,
			name:       node.Name,
			workflow:   node.CheckSuite.WorkflowRun.Workflow.Name,
			conclusion: node.Conclusion,
		}
	case node.State != "":
		return ciContext{kind: kindStatus, name: node.Context, state: node.State}
	default:
		name := node.Name
		if name == "" {
			name = node.Context
		}
		return ciContext{
			kind:     kindInProgress,
			name:     name,
			workflow: node.CheckSuite.WorkflowRun.Workflow.Name,
		}
	}
}

// prState holds everything needed to finish a PR after enrichment: the
// normalized entity plus accumulated raw CI contexts and pagination cursors.
type prState struct {
	pr model.PullRequest

	rollupState string
	contexts    []contextNode
	ciHasNext   bool
	ciCursor    string
	ciEnriched  bool
	ciTruncated bool

	threadsHavePrev  bool
	threadsCursor    string
	threadsTruncated bool
}

// normalizeBucket maps raw search nodes into prStates, silently dropping
// nodes without a numeric database id.
func normalizeBucket(bucket searchBucket) []*prState {
	out := make([]*prState, 0, len(bucket.Nodes))
	for _, node := range bucket.Nodes {
		if st := normalizeNode(node); st != nil {
			out = append(out, st)
		}
	}
	return out
}

func normalizeNode(node prNode) *prState {
	id := nodeID(node)
	if id == 0 {
		return nil
	}

	pr := model.PullRequest{
		ID:              id,
		Number:          node.Number,
		Title:           node.Title,
		Author:          node.Author.Login,
		AuthorAvatarURL: node.Author.AvatarURL,
		RepoOwner:       node.Repository.Owner.Login,
		RepoName:        node.Repository.Name,
		URL:             node.URL,
		State:           model.PRState(strings.ToLower(node.State)),
		IsDraft:         node.IsDraft,
		CreatedAt:       node.CreatedAt,
		UpdatedAt:       node.UpdatedAt,
		Threads:         normalizeThreads(node.ReviewThreads.Nodes),
	}
	if node.MergedAt != nil {
		pr.MergedAt = *node.MergedAt
	}

	if len(node.Reviews.Nodes) > 0 {
		pr.ViewerReviewState = node.Reviews.Nodes[0].State
		pr.ViewerReviewedAt = node.Reviews.Nodes[0].SubmittedAt
	}
	for _, r := range node.LatestReviews.Nodes {
		if r.State == "APPROVED" {
			pr.ApprovalCount++
		}
	}
	for _, ev := range node.TimelineItems.Nodes {
		if ev.CreatedAt.After(pr.LastReviewRequestAt) {
			pr.LastReviewRequestAt = ev.CreatedAt
		}
	}

	st := &prState{
		pr:              pr,
		threadsHavePrev: node.ReviewThreads.PageInfo.HasPreviousPage,
		threadsCursor:   node.ReviewThreads.PageInfo.StartCursor,
	}

	if len(node.Commits.Nodes) > 0 {
		commit := node.Commits.Nodes[0].Commit
		st.pr.LastCommitAt = commit.CommittedDate
		if commit.StatusCheckRollup != nil {
			st.rollupState = commit.StatusCheckRollup.State
			st.contexts = commit.StatusCheckRollup.Contexts.Nodes
			st.ciHasNext = commit.StatusCheckRollup.Contexts.PageInfo.HasNextPage
			st.ciCursor = commit.StatusCheckRollup.Contexts.PageInfo.EndCursor
		}
	}

	return st
}

func normalizeThreads(nodes []threadNode) []model.ReviewThread {
	threads := make([]model.ReviewThread, 0, len(nodes))
	for _, n := range nodes {
		t := model.ReviewThread{
			ID:         n.ID,
			IsResolved: n.IsResolved,
			IsOutdated: n.IsOutdated,
			Path:       n.Path,
		}
		if n.Line != nil {
			t.Line = *n.Line
		}
		for _, c := range n.Comments.Nodes {
			t.Comments = append(t.Comments, model.ReviewComment{
				ID:        c.ID,
				Author:    c.Author.Login,
				Body:      c.Body,
				CreatedAt: c.CreatedAt,
			})
		}
		threads = append(threads, t)
	}
	return threads
}

// nodeID resolves the PR's numeric identity, preferring fullDatabaseId since
// databaseId overflows for newer PRs.
func nodeID(node prNode) int64 {
	if node.FullDatabaseID != "" {
		if id, err := strconv.ParseInt(node.FullDatabaseID, 10, 64); err == nil {
			return id
		}
	}
	if node.DatabaseID != nil {
		return *node.DatabaseID
	}
	return 0
}

// ciCounts is the outcome of one aggregation pass.
type ciCounts struct {
	success int
	failure int
	pending int
	checks  []model.CheckResult
}

// aggregateCI counts contexts by walking them newest-first (the server
// returns oldest-first) so re-run dedup keeps the latest result per check
// name. Status contexts are matched against the exclude filter before any
// counting; excluded statuses never touch the seen set.
func aggregateCI(contexts []contextNode, excludeFilter []string) ciCounts {
	var counts ciCounts
	seen := make(map[string]bool)

	for i := len(contexts) - 1; i >= 0; i-- {
		c := resolveContext(contexts[i])
		switch c.kind {
		case kindCheckRun:
			if seen[c.name] {
				continue
			}
			seen[c.name] = true
			switch c.conclusion {
			case "SUCCESS":
				counts.success++
				counts.checks = append(counts.checks, model.CheckResult{Name: c.name, Workflow: c.workflow, Status: model.CIStatusSuccess})
			case "FAILURE", "TIMED_OUT", "ACTION_REQUIRED", "STARTUP_FAILURE":
				counts.failure++
				counts.checks = append(counts.checks, model.CheckResult{Name: c.name, Workflow: c.workflow, Status: model.CIStatusFailure})
			case "CANCELLED", "SKIPPED", "NEUTRAL", "STALE":
				// Excluded from all counts, but the name stays claimed so
				// older runs of the same check cannot resurface.
			default:
				counts.pending++
				counts.checks = append(counts.checks, model.CheckResult{Name: c.name, Workflow: c.workflow, Status: model.CIStatusPending})
			}
		case kindStatus:
			if matchesExcludeFilter(c.name, excludeFilter) {
				continue
			}
			switch c.state {
			case "SUCCESS":
				counts.success++
				counts.checks = append(counts.checks, model.CheckResult{Name: c.name, Status: model.CIStatusSuccess})
			case "FAILURE", "ERROR":
				counts.failure++
				counts.checks = append(counts.checks, model.CheckResult{Name: c.name, Status: model.CIStatusFailure})
			case "PENDING", "EXPECTED":
				counts.pending++
				counts.checks = append(counts.checks, model.CheckResult{Name: c.name, Status: model.CIStatusPending})
			}
		case kindInProgress:
			if seen[c.name] {
				continue
			}
			seen[c.name] = true
			counts.pending++
			counts.checks = append(counts.checks, model.CheckResult{Name: c.name, Workflow: c.workflow, Status: model.CIStatusPending})
		}
	}

	return counts
}

func matchesExcludeFilter(name string, filter []string) bool {
	if len(filter) == 0 {
		return false
	}
	lower := strings.ToLower(name)
	for _, sub := range filter {
		sub = strings.ToLower(strings.TrimSpace(sub))
		if sub != "" && strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// deriveCIStatus derives the overall status from counts, not from GitHub's
// rollup, since the exclude filter may have removed entries the rollup
// counted.
func deriveCIStatus(counts ciCounts, hadRollup bool) model.CIStatus {
	switch {
	case counts.failure > 0:
		return model.CIStatusFailure
	case counts.pending > 0:
		return model.CIStatusPending
	case counts.success > 0:
		return model.CIStatusSuccess
	case hadRollup:
		return model.CIStatusExpected
	default:
		return ""
	}
}

// finalize computes the PR's derived CI and review fields from the
// accumulated state. Called once per PR after any enrichment completed.
func (st *prState) finalize(username string, excludeFilter []string) model.PullRequest {
	pr := st.pr

	hadRollup := st.rollupState != ""
	counts := aggregateCI(st.contexts, excludeFilter)
	pr.CI = model.CISummary{
		Success:      counts.success,
		Failure:      counts.failure,
		Pending:      counts.pending,
		Status:       deriveCIStatus(counts, hadRollup),
		RollupState:  st.rollupState,
		LimitReached: st.ciTruncated,
		Checks:       counts.checks,
	}

	// Enrichment exists to find the failures or pendings the rollup claims.
	// If they are still missing after it ran, the data is incomplete in a
	// way that could show a false all-green, so refuse to guess.
	if st.ciEnriched {
		if (st.rollupState == "FAILURE" && counts.failure == 0) ||
			(st.rollupState == "PENDING" && counts.pending == 0) {
			pr.CI.Status = model.CIStatusUnknown
		}
	}

	pr.ThreadsTruncated = st.threadsTruncated
	pr.OwnThreadsResolved = ownThreadsResolved(pr.Threads, username)
	return pr
}

// ownThreadsResolved reports whether the viewer has review threads and all
// of them are resolved or outdated. No threads means no resolution evidence,
// so a changes-requested verdict is not promoted on that basis.
func ownThreadsResolved(threads []model.ReviewThread, username string) bool {
	own := 0
	for _, t := range threads {
		if len(t.Comments) == 0 || t.Comments[0].Author != username {
			continue
		}
		own++
		if !t.IsResolved && !t.IsOutdated {
			return false
		}
	}
	return own > 0
}
