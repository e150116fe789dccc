package github_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ghAdapter "github.com/xiaocang/ghpr-view/internal/adapter/driven/github"
	"github.com/xiaocang/ghpr-view/internal/domain/model"
)

// newTestClient creates a Client backed by the given httptest handler.
func newTestClient(t *testing.T, handler http.Handler) *ghAdapter.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return ghAdapter.NewClient(server.URL+"/graphql", func() string { return "test-token" })
}

// gqlRequest mirrors the request body for routing scripted responses.
type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func decodeRequest(t *testing.T, r *http.Request) gqlRequest {
	t.Helper()
	var req gqlRequest
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
	return req
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// prNodeJSON builds a minimal open PR node; overrides patch individual keys.
func prNodeJSON(id int64, number int, overrides map[string]any) map[string]any {
	node := map[string]any{
		"databaseId":     id,
		"fullDatabaseId": fmt.Sprintf("%d", id),
		"number":         number,
		"title":          fmt.Sprintf("PR %d", number),
		"url":            fmt.Sprintf("https://github.com/acme/gadget/pull/%d", number),
		"state":          "OPEN",
		"isDraft":        false,
		"createdAt":      "2025-05-01T10:00:00Z",
		"updatedAt":      "2025-05-02T10:00:00Z",
		"author":         map[string]any{"login": "alice", "avatarUrl": "https://avatars.example/alice"},
		"repository":     map[string]any{"name": "gadget", "owner": map[string]any{"login": "acme"}},
		"reviewThreads": map[string]any{
			"pageInfo": map[string]any{"hasPreviousPage": false, "startCursor": ""},
			"nodes":    []any{},
		},
		"commits":       map[string]any{"nodes": []any{}},
		"reviews":       map[string]any{"nodes": []any{}},
		"latestReviews": map[string]any{"nodes": []any{}},
		"timelineItems": map[string]any{"nodes": []any{}},
	}
	for k, v := range overrides {
		node[k] = v
	}
	return node
}

func searchEnvelope(authored, reviewRequested, reviewedBy, merged []any) map[string]any {
	bucket := func(nodes []any) map[string]any {
		if nodes == nil {
			nodes = []any{}
		}
		return map[string]any{"nodes": nodes}
	}
	return map[string]any{"data": map[string]any{
		"authored":        bucket(authored),
		"reviewRequested": bucket(reviewRequested),
		"reviewedBy":      bucket(reviewedBy),
		"mergedInvolved":  bucket(merged),
	}}
}

func checkRunJSON(name, conclusion string) map[string]any {
	return map[string]any{
		"__typename": "CheckRun",
		"name":       name,
		"conclusion": conclusion,
		"checkSuite": map[string]any{"workflowRun": map[string]any{"workflow": map[string]any{"name": "CI"}}},
	}
}

func rollupJSON(state string, hasNext bool, endCursor string, nodes []any) map[string]any {
	return map[string]any{
		"state": state,
		"contexts": map[string]any{
			"pageInfo":   map[string]any{"hasNextPage": hasNext, "endCursor": endCursor},
			"totalCount": len(nodes),
			"nodes":      nodes,
		},
	}
}

func commitsJSON(rollup map[string]any) map[string]any {
	commit := map[string]any{"committedDate": "2025-05-02T08:00:00Z"}
	if rollup != nil {
		commit["statusCheckRollup"] = rollup
	}
	return map[string]any{"nodes": []any{map[string]any{"commit": commit}}}
}

func threadJSON(id string, resolved bool) map[string]any {
	return map[string]any{
		"id":         id,
		"isResolved": resolved,
		"isOutdated": false,
		"path":       "main.go",
		"line":       1,
		"comments":   map[string]any{"nodes": []any{}},
	}
}

func contextsPageJSON(rollup map[string]any) map[string]any {
	return map[string]any{"data": map[string]any{"repository": map[string]any{"pullRequest": map[string]any{
		"commits": commitsJSON(rollup),
	}}}}
}

func threadsPageJSON(hasPrev bool, startCursor string, nodes []any) map[string]any {
	return map[string]any{"data": map[string]any{"repository": map[string]any{"pullRequest": map[string]any{
		"reviewThreads": map[string]any{
			"pageInfo": map[string]any{"hasPreviousPage": hasPrev, "startCursor": startCursor},
			"nodes":    nodes,
		},
	}}}}
}

func fetchOpts() model.FetchOptions {
	return model.FetchOptions{MergedWindowDays: 2}
}

func TestFetchInvolved_SendsAuthHeaders(t *testing.T) {
	var gotAuth, gotAccept, gotContentType string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotContentType = r.Header.Get("Content-Type")
		writeJSON(w, searchEnvelope(nil, nil, nil, nil))
	}))

	_, err := client.FetchInvolved(context.Background(), "octocat", fetchOpts())
	require.NoError(t, err)

	assert.Equal(t, "bearer test-token", gotAuth)
	assert.Equal(t, "application/vnd.github+json", gotAccept)
	assert.Equal(t, "application/json", gotContentType)
}

func TestFetchInvolved_TokenHotSwap(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		writeJSON(w, searchEnvelope(nil, nil, nil, nil))
	}))
	t.Cleanup(server.Close)

	token := "first"
	client := ghAdapter.NewClient(server.URL+"/graphql", func() string { return token })

	_, err := client.FetchInvolved(context.Background(), "octocat", fetchOpts())
	require.NoError(t, err)
	token = "second"
	_, err = client.FetchInvolved(context.Background(), "octocat", fetchOpts())
	require.NoError(t, err)

	assert.Equal(t, []string{"bearer first", "bearer second"}, seen)
}

func TestFetchInvolved_ErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "401 -> auth error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
			check: func(t *testing.T, err error) {
				var authErr *model.AuthError
				require.True(t, errors.As(err, &authErr))
			},
		},
		{
			name: "403 with reset header -> rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-RateLimit-Reset", "1749600000")
				w.WriteHeader(http.StatusForbidden)
			},
			check: func(t *testing.T, err error) {
				var rateErr *model.RateLimitError
				require.True(t, errors.As(err, &rateErr))
				assert.Equal(t, time.Unix(1749600000, 0), rateErr.Reset)
			},
		},
		{
			name: "403 without reset header -> auth error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
			check: func(t *testing.T, err error) {
				var authErr *model.AuthError
				require.True(t, errors.As(err, &authErr))
			},
		},
		{
			name: "other non-200 -> api error with status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			check: func(t *testing.T, err error) {
				var apiErr *model.APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
			},
		},
		{
			name: "graphql errors with null data -> graphql error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, map[string]any{
					"data":   nil,
					"errors": []any{map[string]any{"message": "Field 'search' is broken"}},
				})
			},
			check: func(t *testing.T, err error) {
				var gqlErr *model.GraphQLError
				require.True(t, errors.As(err, &gqlErr))
				assert.Equal(t, "Field 'search' is broken", gqlErr.Message)
			},
		},
		{
			name: "malformed body -> decode error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"data": {`))
			},
			check: func(t *testing.T, err error) {
				var decodeErr *model.DecodeError
				require.True(t, errors.As(err, &decodeErr))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, tc.handler)

			_, err := client.FetchInvolved(context.Background(), "octocat", fetchOpts())
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestFetchInvolved_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := ghAdapter.NewClient(server.URL+"/graphql", func() string { return "test-token" })
	server.Close()

	_, err := client.FetchInvolved(context.Background(), "octocat", fetchOpts())

	var netErr *model.NetworkError
	require.True(t, errors.As(err, &netErr))
}

func TestFetchInvolved_RateLimitParsedOnEveryResponse(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "5000")
		w.Header().Set("X-RateLimit-Remaining", "4321")
		w.Header().Set("X-RateLimit-Reset", "1749600000")
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.FetchInvolved(context.Background(), "octocat", fetchOpts())
	require.Error(t, err, "401 still records the headers")

	rl := client.RateLimit()
	require.NotNil(t, rl)
	assert.Equal(t, 5000, rl.Limit)
	assert.Equal(t, 4321, rl.Remaining)
	assert.Equal(t, time.Unix(1749600000, 0), rl.Reset)
}

func TestFetchInvolved_InvalidUsernameShortCircuits(t *testing.T) {
	called := false
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	_, err := client.FetchInvolved(context.Background(), `bad"user`, fetchOpts())

	var cfgErr *model.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.False(t, called, "no network call for an invalid username")
}

func TestFetchInvolved_Categories(t *testing.T) {
	merged := prNodeJSON(4, 40, map[string]any{
		"state":    "MERGED",
		"mergedAt": "2025-05-02T12:00:00Z",
	})
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, searchEnvelope(
			[]any{prNodeJSON(1, 10, nil)},
			[]any{prNodeJSON(2, 20, nil)},
			[]any{prNodeJSON(3, 30, nil)},
			[]any{merged},
		))
	}))

	result, err := client.FetchInvolved(context.Background(), "octocat", fetchOpts())
	require.NoError(t, err)

	require.Len(t, result.Authored, 1)
	assert.Equal(t, model.CategoryAuthored, result.Authored[0].Category)
	assert.Empty(t, result.Authored[0].ReviewStatus, "authored PRs carry no review status")

	require.Len(t, result.ReviewRequested, 1)
	assert.Equal(t, model.CategoryReviewRequest, result.ReviewRequested[0].Category)
	assert.Equal(t, model.ReviewStatusWaiting, result.ReviewRequested[0].ReviewStatus)

	require.Len(t, result.ReviewedBy, 1)
	assert.Equal(t, model.CategoryReviewRequest, result.ReviewedBy[0].Category)

	require.Len(t, result.MergedInvolved, 1)
	assert.Empty(t, result.MergedInvolved[0].Category, "merged bucket mixes roles, aggregation resolves it")
	assert.Equal(t, model.PRStateMerged, result.MergedInvolved[0].State)
}

func TestFetchInvolved_DropsNodesWithoutID(t *testing.T) {
	broken := prNodeJSON(0, 99, nil)
	delete(broken, "databaseId")
	broken["fullDatabaseId"] = ""

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, searchEnvelope([]any{broken, prNodeJSON(1, 10, nil)}, nil, nil, nil))
	}))

	result, err := client.FetchInvolved(context.Background(), "octocat", fetchOpts())
	require.NoError(t, err)

	require.Len(t, result.Authored, 1)
	assert.Equal(t, int64(1), result.Authored[0].ID)
}

func TestFetchInvolved_PartialDataWithErrors(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		envelope := searchEnvelope([]any{prNodeJSON(1, 10, nil)}, nil, nil, nil)
		envelope["errors"] = []any{map[string]any{"message": "partial outage"}}
		writeJSON(w, envelope)
	}))

	result, err := client.FetchInvolved(context.Background(), "octocat", fetchOpts())
	require.NoError(t, err, "usable data wins over the errors array")
	assert.Len(t, result.Authored, 1)
}

func TestFetchInvolved_EnrichesCIContexts(t *testing.T) {
	firstPage := []any{checkRunJSON("lint", "SUCCESS")}
	secondPage := []any{checkRunJSON("integration", "FAILURE")}

	var requests int
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		req := decodeRequest(t, r)
		if strings.Contains(req.Query, "fragment prFields") {
			node := prNodeJSON(1, 10, map[string]any{
				"commits": commitsJSON(rollupJSON("FAILURE", true, "cursor-1", firstPage)),
			})
			writeJSON(w, searchEnvelope([]any{node}, nil, nil, nil))
			return
		}
		assert.Equal(t, "cursor-1", req.Variables["cursor"])
		assert.Equal(t, "acme", req.Variables["owner"])
		assert.Equal(t, "gadget", req.Variables["name"])
		writeJSON(w, contextsPageJSON(rollupJSON("FAILURE", false, "", secondPage)))
	}))

	result, err := client.FetchInvolved(context.Background(), "octocat", fetchOpts())
	require.NoError(t, err)
	require.Len(t, result.Authored, 1)

	ci := result.Authored[0].CI
	assert.Equal(t, 2, requests)
	assert.Equal(t, model.CIStatusFailure, ci.Status, "failure found on the second page")
	assert.Equal(t, 1, ci.Failure)
	assert.Equal(t, 1, ci.Success)
	assert.False(t, ci.LimitReached)
}

func TestFetchInvolved_NoEnrichmentWhenCountsExplainRollup(t *testing.T) {
	firstPage := []any{checkRunJSON("build", "FAILURE")}

	var requests int
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		node := prNodeJSON(1, 10, map[string]any{
			"commits": commitsJSON(rollupJSON("FAILURE", true, "cursor-1", firstPage)),
		})
		writeJSON(w, searchEnvelope([]any{node}, nil, nil, nil))
	}))

	result, err := client.FetchInvolved(context.Background(), "octocat", fetchOpts())
	require.NoError(t, err)

	assert.Equal(t, 1, requests, "first page already explains the rollup")
	assert.Equal(t, model.CIStatusFailure, result.Authored[0].CI.Status)
}

func TestFetchInvolved_ContextCapYieldsUnknown(t *testing.T) {
	page := func(prefix string, n int) []any {
		nodes := make([]any, 0, n)
		for i := 0; i < n; i++ {
			nodes = append(nodes, checkRunJSON(fmt.Sprintf("%s-%d", prefix, i), "SUCCESS"))
		}
		return nodes
	}

	var followUps int
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		if strings.Contains(req.Query, "fragment prFields") {
			node := prNodeJSON(1, 10, map[string]any{
				"commits": commitsJSON(rollupJSON("FAILURE", true, "cursor-0", page("first", 20))),
			})
			writeJSON(w, searchEnvelope([]any{node}, nil, nil, nil))
			return
		}
		followUps++
		cursor := fmt.Sprintf("cursor-%d", followUps)
		writeJSON(w, contextsPageJSON(rollupJSON("FAILURE", true, cursor, page(fmt.Sprintf("p%d", followUps), 100))))
	}))

	result, err := client.FetchInvolved(context.Background(), "octocat", fetchOpts())
	require.NoError(t, err)
	require.Len(t, result.Authored, 1)

	ci := result.Authored[0].CI
	assert.Equal(t, 2, followUps, "20 + 100 + 100 contexts reach the cap")
	assert.True(t, ci.LimitReached)
	assert.Equal(t, model.CIStatusUnknown, ci.Status,
		"rollup claims FAILURE but no failure was found before the cap")
	assert.Equal(t, 0, ci.Failure)
}

func TestFetchInvolved_EnrichmentFailureKeepsFirstPage(t *testing.T) {
	firstPage := []any{checkRunJSON("lint", "SUCCESS")}

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		if strings.Contains(req.Query, "fragment prFields") {
			node := prNodeJSON(1, 10, map[string]any{
				"commits": commitsJSON(rollupJSON("FAILURE", true, "cursor-1", firstPage)),
			})
			writeJSON(w, searchEnvelope([]any{node}, nil, nil, nil))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))

	result, err := client.FetchInvolved(context.Background(), "octocat", fetchOpts())
	require.NoError(t, err, "per-PR enrichment failure never fails the refresh")
	require.Len(t, result.Authored, 1)

	ci := result.Authored[0].CI
	assert.Equal(t, model.CIStatusSuccess, ci.Status, "first-page values kept")
	assert.Equal(t, 1, ci.Success)
}

func TestFetchInvolved_EnrichesThreadsBackward(t *testing.T) {
	newest := []any{threadJSON("RT_3", false), threadJSON("RT_4", false)}
	older := []any{threadJSON("RT_1", true), threadJSON("RT_2", true)}

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		if strings.Contains(req.Query, "fragment prFields") {
			node := prNodeJSON(1, 10, map[string]any{
				"reviewThreads": map[string]any{
					"pageInfo": map[string]any{"hasPreviousPage": true, "startCursor": "start-1"},
					"nodes":    newest,
				},
			})
			writeJSON(w, searchEnvelope([]any{node}, nil, nil, nil))
			return
		}
		assert.Equal(t, "start-1", req.Variables["cursor"])
		writeJSON(w, threadsPageJSON(false, "", older))
	}))

	result, err := client.FetchInvolved(context.Background(), "octocat", fetchOpts())
	require.NoError(t, err)
	require.Len(t, result.Authored, 1)

	threads := result.Authored[0].Threads
	require.Len(t, threads, 4)
	assert.Equal(t, "RT_1", threads[0].ID, "older threads precede newer ones")
	assert.Equal(t, "RT_2", threads[1].ID)
	assert.Equal(t, "RT_3", threads[2].ID)
	assert.Equal(t, "RT_4", threads[3].ID)
	assert.Equal(t, 2, result.Authored[0].UnresolvedThreadCount())
}
