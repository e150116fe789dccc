package application

import (
	"github.com/xiaocang/ghpr-view/internal/domain/model"
)

// Detector compares successive generations of the open-PR list and emits
// notification intents. It keeps exactly one prior generation in memory,
// keyed by PR id; it is owned by the engine's run loop and is not safe for
// concurrent use.
type Detector struct {
	prev map[int64]model.PullRequest
}

// NewDetector returns a detector with an empty baseline, so the first Diff
// call never notifies.
func NewDetector() *Detector {
	return &Detector{prev: make(map[int64]model.PullRequest)}
}

// Diff compares open against the previous generation and returns the
// notification intents the comparison produced. A PR notifies when its
// unresolved-comment count increased, or when its CI status changed and
// landed on exactly success or failure. PRs absent from the previous
// generation never notify, which keeps a cold start or re-sign-in from
// producing a notification storm.
//
// The new list then replaces the previous generation wholesale, whether or
// not anything notified: stale ids are dropped, and only PRs present in open
// are tracked for the next cycle.
func (d *Detector) Diff(open []model.PullRequest) []model.NotificationEvent {
	var events []model.NotificationEvent
	next := make(map[int64]model.PullRequest, len(open))

	for _, pr := range open {
		next[pr.ID] = pr

		before, known := d.prev[pr.ID]
		if !known {
			continue
		}

		newCount := pr.UnresolvedThreadCount()
		if oldCount := before.UnresolvedThreadCount(); newCount > oldCount {
			events = append(events, model.NotificationEvent{
				PRID:            pr.ID,
				Repo:            pr.RepoFullName(),
				Number:          pr.Number,
				Title:           pr.Title,
				URL:             pr.URL,
				Kind:            model.NotificationUnresolvedComments,
				UnresolvedCount: newCount,
				Delta:           newCount - oldCount,
			})
		}

		if status := pr.CI.Status; status != before.CI.Status &&
			(status == model.CIStatusSuccess || status == model.CIStatusFailure) {
			events = append(events, model.NotificationEvent{
				PRID:     pr.ID,
				Repo:     pr.RepoFullName(),
				Number:   pr.Number,
				Title:    pr.Title,
				URL:      pr.URL,
				Kind:     model.NotificationCIStatus,
				CIStatus: status,
			})
		}
	}

	d.prev = next
	return events
}

// Reset drops the baseline. The next Diff treats every PR as first-seen.
func (d *Detector) Reset() {
	d.prev = make(map[int64]model.PullRequest)
}
