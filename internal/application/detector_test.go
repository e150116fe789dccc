package application_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaocang/ghpr-view/internal/application"
	"github.com/xiaocang/ghpr-view/internal/domain/model"
)

// trackedPR builds an open PR with the given number of unresolved threads.
func trackedPR(id int64, unresolved int) model.PullRequest {
	pr := model.PullRequest{
		ID:        id,
		Number:    int(id),
		Title:     "tracked change",
		RepoOwner: "org",
		RepoName:  "repo",
		URL:       fmt.Sprintf("https://github.com/org/repo/pull/%d", id),
		State:     model.PRStateOpen,
	}
	for i := 0; i < unresolved; i++ {
		pr.Threads = append(pr.Threads, model.ReviewThread{ID: fmt.Sprintf("RT_%d", i)})
	}
	return pr
}

func ciPR(id int64, status model.CIStatus) model.PullRequest {
	pr := trackedPR(id, 0)
	pr.CI.Status = status
	return pr
}

func TestDetector_UnresolvedIncreaseNotifiesExactlyOnce(t *testing.T) {
	d := application.NewDetector()

	// First sighting establishes the baseline without notifying.
	events := d.Diff([]model.PullRequest{trackedPR(42, 0)})
	assert.Empty(t, events)

	// Count rises to 2: exactly one intent carrying the delta.
	events = d.Diff([]model.PullRequest{trackedPR(42, 2)})
	require.Len(t, events, 1)
	assert.Equal(t, model.NotificationUnresolvedComments, events[0].Kind)
	assert.Equal(t, int64(42), events[0].PRID)
	assert.Equal(t, "org/repo", events[0].Repo)
	assert.Equal(t, 2, events[0].UnresolvedCount)
	assert.Equal(t, 2, events[0].Delta)

	// Unchanged count: silence.
	events = d.Diff([]model.PullRequest{trackedPR(42, 2)})
	assert.Empty(t, events)
}

func TestDetector_NeverNotifiesOnDecreaseOrEqual(t *testing.T) {
	d := application.NewDetector()

	d.Diff([]model.PullRequest{trackedPR(1, 5)})

	events := d.Diff([]model.PullRequest{trackedPR(1, 3)})
	assert.Empty(t, events)

	events = d.Diff([]model.PullRequest{trackedPR(1, 3)})
	assert.Empty(t, events)
}

func TestDetector_ResolvedThreadsDoNotCount(t *testing.T) {
	d := application.NewDetector()

	d.Diff([]model.PullRequest{trackedPR(1, 1)})

	// Two more threads arrive but both are resolved or outdated; the
	// unresolved count is unchanged.
	pr := trackedPR(1, 1)
	pr.Threads = append(pr.Threads,
		model.ReviewThread{ID: "RT_r", IsResolved: true},
		model.ReviewThread{ID: "RT_o", IsOutdated: true},
	)

	events := d.Diff([]model.PullRequest{pr})
	assert.Empty(t, events)
}

func TestDetector_FirstSightingNeverNotifies(t *testing.T) {
	d := application.NewDetector()

	// A cold start with a full list of busy PRs stays silent.
	events := d.Diff([]model.PullRequest{
		trackedPR(1, 4),
		ciPR(2, model.CIStatusFailure),
		trackedPR(3, 9),
	})
	assert.Empty(t, events)
}

func TestDetector_ReappearingPRIsFirstSeenAgain(t *testing.T) {
	d := application.NewDetector()

	d.Diff([]model.PullRequest{trackedPR(1, 0)})

	// The PR drops out of the open list for a cycle; its baseline is gone.
	d.Diff(nil)

	// Reappearing with a higher count does not notify.
	events := d.Diff([]model.PullRequest{trackedPR(1, 3)})
	assert.Empty(t, events)
}

func TestDetector_CIStatusTransitions(t *testing.T) {
	tests := []struct {
		name     string
		from, to model.CIStatus
		notify   bool
	}{
		{name: "pending to failure", from: model.CIStatusPending, to: model.CIStatusFailure, notify: true},
		{name: "pending to success", from: model.CIStatusPending, to: model.CIStatusSuccess, notify: true},
		{name: "failure to success", from: model.CIStatusFailure, to: model.CIStatusSuccess, notify: true},
		{name: "no ci to success", from: "", to: model.CIStatusSuccess, notify: true},
		{name: "success to pending", from: model.CIStatusSuccess, to: model.CIStatusPending, notify: false},
		{name: "pending to unknown", from: model.CIStatusPending, to: model.CIStatusUnknown, notify: false},
		{name: "pending to expected", from: model.CIStatusPending, to: model.CIStatusExpected, notify: false},
		{name: "failure unchanged", from: model.CIStatusFailure, to: model.CIStatusFailure, notify: false},
		{name: "success unchanged", from: model.CIStatusSuccess, to: model.CIStatusSuccess, notify: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := application.NewDetector()
			d.Diff([]model.PullRequest{ciPR(1, tt.from)})

			events := d.Diff([]model.PullRequest{ciPR(1, tt.to)})
			if !tt.notify {
				assert.Empty(t, events)
				return
			}
			require.Len(t, events, 1)
			assert.Equal(t, model.NotificationCIStatus, events[0].Kind)
			assert.Equal(t, tt.to, events[0].CIStatus)
		})
	}
}

func TestDetector_CommentAndCIChangesEmitSeparateEvents(t *testing.T) {
	d := application.NewDetector()

	first := trackedPR(1, 0)
	first.CI.Status = model.CIStatusPending
	d.Diff([]model.PullRequest{first})

	second := trackedPR(1, 2)
	second.CI.Status = model.CIStatusFailure

	events := d.Diff([]model.PullRequest{second})
	require.Len(t, events, 2)
	assert.Equal(t, model.NotificationUnresolvedComments, events[0].Kind)
	assert.Equal(t, model.NotificationCIStatus, events[1].Kind)
}

func TestDetector_ResetDropsBaseline(t *testing.T) {
	d := application.NewDetector()

	d.Diff([]model.PullRequest{trackedPR(1, 0)})
	d.Reset()

	// After a reset the PR counts as first-seen even with a higher count.
	events := d.Diff([]model.PullRequest{trackedPR(1, 5)})
	assert.Empty(t, events)

	// But the post-reset generation is a baseline for the next cycle.
	events = d.Diff([]model.PullRequest{trackedPR(1, 6)})
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].Delta)
	assert.Equal(t, 6, events[0].UnresolvedCount)
}
