package model

import "time"

// ReviewThread is a single review conversation on a PR.
type ReviewThread struct {
	ID         string          `json:"id"`
	IsResolved bool            `json:"isResolved"`
	IsOutdated bool            `json:"isOutdated"`
	Path       string          `json:"path,omitempty"`
	Line       int             `json:"line,omitempty"`
	Comments   []ReviewComment `json:"comments,omitempty"`
}

// ReviewComment is one comment within a review thread.
type ReviewComment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}
