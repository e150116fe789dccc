package application

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xiaocang/ghpr-view/internal/domain/model"
)

// The baseline after every Diff must be exactly the id set of the list just
// passed in: no stale ids linger, and nothing outside the open list is ever
// tracked.
func TestDetectorBaselineMirrorsOpenList(t *testing.T) {
	d := NewDetector()

	d.Diff([]model.PullRequest{{ID: 1}, {ID: 2}})
	assert.ElementsMatch(t, []int64{1, 2}, baselineIDs(d))

	d.Diff([]model.PullRequest{{ID: 2}, {ID: 3}})
	assert.ElementsMatch(t, []int64{2, 3}, baselineIDs(d))

	d.Diff(nil)
	assert.Empty(t, baselineIDs(d))
}

func baselineIDs(d *Detector) []int64 {
	ids := make([]int64, 0, len(d.prev))
	for id := range d.prev {
		ids = append(ids, id)
	}
	return ids
}
