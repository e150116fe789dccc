package driven

import (
	"context"

	"github.com/xiaocang/ghpr-view/internal/domain/model"
)

// NotificationStore defines the driven port for the delivered-notification
// journal. The notify service consults it for throttling; the UI drains it
// to raise OS notifications.
type NotificationStore interface {
	// Insert journals a delivered event and returns its assigned id.
	Insert(ctx context.Context, event model.NotificationEvent) (int64, error)

	// ListRecent returns up to limit events, newest first.
	ListRecent(ctx context.Context, limit int) ([]model.NotificationEvent, error)

	// LastForPR returns the most recent event for the given PR and kind, or
	// (nil, nil) if none exists.
	LastForPR(ctx context.Context, prID int64, kind model.NotificationKind) (*model.NotificationEvent, error)

	// Prune deletes all but the newest keep events.
	Prune(ctx context.Context, keep int) error

	// Clear empties the journal.
	Clear(ctx context.Context) error
}
