// Package github implements the GitHubClient port against the GitHub
// GraphQL API.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/xiaocang/ghpr-view/internal/domain/model"
	"github.com/xiaocang/ghpr-view/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.GitHubClient = (*Client)(nil)

// Client executes GraphQL queries against a single endpoint. The bearer
// token is read through a func on every request, so the auth provider can
// swap credentials without the client being rebuilt.
type Client struct {
	graphqlURL string
	token      func() string
	httpc      *http.Client

	mu        sync.Mutex
	rateLimit *model.RateLimitInfo
}

// NewClient creates a GraphQL client for graphqlURL. The 30-second timeout
// is the only retry/cancellation behavior the transport owns; retry policy
// belongs to the polling scheduler.
func NewClient(graphqlURL string, token func() string) *Client {
	return &Client{
		graphqlURL: graphqlURL,
		token:      token,
		httpc:      &http.Client{Timeout: 30 * time.Second},
	}
}

// graphqlRequest is the JSON body sent to the GitHub GraphQL API.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlEnvelope is the generic response wrapper; Data stays raw so each
// call site decodes its own shape.
type graphqlEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// do executes one GraphQL POST and classifies the outcome. Rate-limit
// headers are recorded on every response regardless of status.
func (c *Client) do(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("marshaling graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating graphql request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("bearer %s", c.token()))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &model.NetworkError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	c.updateRateLimit(resp.Header)

	switch {
	case resp.StatusCode == http.StatusOK:
		// Classified below.
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &model.AuthError{Reason: "token invalid or revoked"}
	case resp.StatusCode == http.StatusForbidden:
		if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
			return nil, &model.RateLimitError{Reset: parseUnixHeader(reset)}
		}
		return nil, &model.AuthError{Reason: "access forbidden"}
	default:
		return nil, &model.APIError{StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &model.NetworkError{Err: err}
	}

	var envelope graphqlEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &model.DecodeError{Err: err}
	}

	if len(envelope.Errors) > 0 {
		if len(envelope.Data) == 0 || bytes.Equal(envelope.Data, []byte("null")) {
			return nil, &model.GraphQLError{Message: envelope.Errors[0].Message}
		}
		// Partial success: usable data alongside errors.
		slog.Warn("graphql response carries errors with partial data", "error", envelope.Errors[0].Message)
	}

	return envelope.Data, nil
}

// RateLimit returns the most recently observed quota, or nil before the
// first response.
func (c *Client) RateLimit() *model.RateLimitInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rateLimit == nil {
		return nil
	}
	copied := *c.rateLimit
	return &copied
}

func (c *Client) updateRateLimit(headers http.Header) {
	limit, okLimit := parseHeaderInt(headers, "X-RateLimit-Limit")
	remaining, okRemaining := parseHeaderInt(headers, "X-RateLimit-Remaining")
	if !okLimit && !okRemaining {
		return
	}

	info := model.RateLimitInfo{Limit: limit, Remaining: remaining}
	if reset := headers.Get("X-RateLimit-Reset"); reset != "" {
		info.Reset = parseUnixHeader(reset)
	}

	c.mu.Lock()
	c.rateLimit = &info
	c.mu.Unlock()

	if info.Low() {
		slog.Warn("github rate limit low",
			"remaining", info.Remaining,
			"limit", info.Limit,
			"reset_in", time.Until(info.Reset).Round(time.Second),
		)
	}
}

func parseHeaderInt(headers http.Header, key string) (int, bool) {
	v := headers.Get(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseUnixHeader(v string) time.Time {
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

// FetchInvolved runs the combined search for username, normalizes each
// bucket, and enriches PRs whose first page under-reported CI contexts or
// review threads.
func (c *Client) FetchInvolved(ctx context.Context, username string, opts model.FetchOptions) (*model.FetchResult, error) {
	query, err := BuildSearchQuery(username, time.Now(), opts.MergedWindowDays)
	if err != nil {
		return nil, &model.ConfigError{Reason: err.Error()}
	}

	data, err := c.do(ctx, query, nil)
	if err != nil {
		return nil, err
	}

	var decoded searchData
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, &model.DecodeError{Err: err}
	}

	authored := normalizeBucket(decoded.Authored)
	reviewRequested := normalizeBucket(decoded.ReviewRequested)
	reviewedBy := normalizeBucket(decoded.ReviewedBy)
	merged := normalizeBucket(decoded.MergedInvolved)

	for _, bucket := range [][]*prState{authored, reviewRequested, reviewedBy, merged} {
		for _, st := range bucket {
			c.enrich(ctx, st, opts)
		}
	}

	result := &model.FetchResult{
		Authored:        finalizeBucket(authored, username, opts, model.CategoryAuthored),
		ReviewRequested: finalizeBucket(reviewRequested, username, opts, model.CategoryReviewRequest),
		ReviewedBy:      finalizeBucket(reviewedBy, username, opts, model.CategoryReviewRequest),
		MergedInvolved:  finalizeBucket(merged, username, opts, ""),
		RateLimit:       c.RateLimit(),
	}
	return result, nil
}

// finalizeBucket computes derived fields for each PR and tags the category
// known by query construction. The merged bucket mixes roles, so it stays
// untagged for the aggregator to resolve.
func finalizeBucket(states []*prState, username string, opts model.FetchOptions, category model.Category) []model.PullRequest {
	prs := make([]model.PullRequest, 0, len(states))
	for _, st := range states {
		pr := st.finalize(username, opts.CIExcludeFilter)
		pr.Category = category
		if category == model.CategoryReviewRequest {
			pr.ReviewStatus = model.DeriveReviewStatus(pr)
		}
		prs = append(prs, pr)
	}
	return prs
}
