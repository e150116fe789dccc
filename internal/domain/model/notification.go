package model

import "time"

// NotificationEvent is an intent to alert the user about a change on a PR.
// It carries what changed, not how to present it; delivery and wording are
// the notifier's concern.
type NotificationEvent struct {
	ID     int64            `json:"id,omitempty"`
	PRID   int64            `json:"prId"`
	Repo   string           `json:"repo"`
	Number int              `json:"number"`
	Title  string           `json:"title"`
	URL    string           `json:"url"`
	Kind   NotificationKind `json:"kind"`

	// Unresolved-comment events carry the new count and how many were added.
	UnresolvedCount int `json:"unresolvedCount,omitempty"`
	Delta           int `json:"delta,omitempty"`

	// CI events carry the status transitioned to (success or failure).
	CIStatus CIStatus `json:"ciStatus,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}
