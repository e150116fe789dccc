package httphandler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/xiaocang/ghpr-view/internal/domain/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// AcceptedResponse acknowledges a trigger endpoint without waiting for the
// refresh it started.
type AcceptedResponse struct {
	Status string `json:"status"`
}

// SnapshotResponse is the body of GET /api/v1/snapshot. It re-exposes the
// snapshot's transient refresh metadata, which the model deliberately keeps
// out of its own JSON form because the disk cache shares it.
type SnapshotResponse struct {
	LastUpdated        time.Time            `json:"lastUpdated,omitzero"`
	PullRequests       []model.PullRequest  `json:"pullRequests"`
	MergedPullRequests []model.PullRequest  `json:"mergedPullRequests"`
	IsLoading          bool                 `json:"isLoading"`
	Error              string               `json:"error,omitempty"`
	ErrorKind          string               `json:"errorKind,omitempty"`
	RateLimit          *model.RateLimitInfo `json:"rateLimit,omitempty"`
}

func toSnapshotResponse(snap model.Snapshot) SnapshotResponse {
	resp := SnapshotResponse{
		LastUpdated:        snap.LastUpdated,
		PullRequests:       snap.Open,
		MergedPullRequests: snap.Merged,
		IsLoading:          snap.IsLoading,
		RateLimit:          snap.RateLimit,
	}
	if resp.PullRequests == nil {
		resp.PullRequests = []model.PullRequest{}
	}
	if resp.MergedPullRequests == nil {
		resp.MergedPullRequests = []model.PullRequest{}
	}
	if snap.Err != nil {
		resp.Error = snap.Err.Error()
		resp.ErrorKind = model.ErrorKind(snap.Err)
	}
	return resp
}

// NotificationsResponse is the body of GET /api/v1/notifications.
type NotificationsResponse struct {
	Notifications []model.NotificationEvent `json:"notifications"`
}

// ThreadsResponse is the body of GET /api/v1/pulls/{id}/threads: the review
// conversations of one PR with comment bodies rendered to sanitized HTML.
type ThreadsResponse struct {
	PullRequestID   int64            `json:"pullRequestId"`
	Repo            string           `json:"repo"`
	Number          int              `json:"number"`
	Title           string           `json:"title"`
	UnresolvedCount int              `json:"unresolvedCount"`
	Truncated       bool             `json:"truncated"`
	Threads         []ThreadResponse `json:"threads"`
}

// ThreadResponse is one review conversation within a ThreadsResponse.
type ThreadResponse struct {
	ID         string                  `json:"id"`
	IsResolved bool                    `json:"isResolved"`
	IsOutdated bool                    `json:"isOutdated"`
	Path       string                  `json:"path,omitempty"`
	Line       int                     `json:"line,omitempty"`
	Comments   []ThreadCommentResponse `json:"comments"`
}

// ThreadCommentResponse is one comment within a ThreadResponse. Body is the
// raw markdown; BodyHTML is the rendered, sanitized form.
type ThreadCommentResponse struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Body      string `json:"body"`
	BodyHTML  string `json:"bodyHtml"`
	CreatedAt string `json:"createdAt,omitempty"`
}

func toThreadsResponse(pr model.PullRequest) ThreadsResponse {
	resp := ThreadsResponse{
		PullRequestID:   pr.ID,
		Repo:            pr.RepoFullName(),
		Number:          pr.Number,
		Title:           pr.Title,
		UnresolvedCount: pr.UnresolvedThreadCount(),
		Truncated:       pr.ThreadsTruncated,
		Threads:         make([]ThreadResponse, 0, len(pr.Threads)),
	}
	for _, t := range pr.Threads {
		resp.Threads = append(resp.Threads, toThreadResponse(t))
	}
	return resp
}

func toThreadResponse(t model.ReviewThread) ThreadResponse {
	resp := ThreadResponse{
		ID:         t.ID,
		IsResolved: t.IsResolved,
		IsOutdated: t.IsOutdated,
		Path:       t.Path,
		Line:       t.Line,
		Comments:   make([]ThreadCommentResponse, 0, len(t.Comments)),
	}
	for _, c := range t.Comments {
		comment := ThreadCommentResponse{
			ID:       c.ID,
			Author:   c.Author,
			Body:     c.Body,
			BodyHTML: renderMarkdown(c.Body),
		}
		if !c.CreatedAt.IsZero() {
			comment.CreatedAt = c.CreatedAt.UTC().Format(time.RFC3339)
		}
		resp.Comments = append(resp.Comments, comment)
	}
	return resp
}
