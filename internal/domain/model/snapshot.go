package model

import "time"

// Snapshot is the aggregated view state published after each refresh cycle.
// Open and Merged are the display lists; the remaining fields are transient
// refresh metadata and never persisted to the disk cache.
type Snapshot struct {
	LastUpdated time.Time     `json:"lastUpdated"`
	Open        []PullRequest `json:"pullRequests"`
	Merged      []PullRequest `json:"mergedPullRequests"`

	IsLoading bool           `json:"-"`
	Err       error          `json:"-"`
	RateLimit *RateLimitInfo `json:"-"`
}

// IsEmpty reports whether the snapshot carries no PR data at all.
func (s Snapshot) IsEmpty() bool {
	return len(s.Open) == 0 && len(s.Merged) == 0
}
