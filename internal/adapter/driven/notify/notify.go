package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xiaocang/ghpr-view/internal/domain/model"
	"github.com/xiaocang/ghpr-view/internal/domain/port/driven"
)

// throttleWindow is the minimum gap between notifications for the same PR
// and kind. Repeated CI flapping or comment bursts collapse into one alert.
const throttleWindow = 10 * time.Minute

// journalKeep bounds the journal; older entries are pruned after each
// delivery.
const journalKeep = 200

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*Service)(nil)

// Deliverer presents a notification to the user.
type Deliverer interface {
	Deliver(ctx context.Context, event model.NotificationEvent) error
}

// LogDeliverer writes notifications to the log. The menu bar process reads
// the journal over HTTP and raises the real OS notifications itself, so the
// log line is the server-side record of what it will find.
type LogDeliverer struct{}

func (LogDeliverer) Deliver(_ context.Context, event model.NotificationEvent) error {
	slog.Info("notification",
		"repo", event.Repo, "pr", event.Number, "kind", event.Kind,
		"unresolved", event.UnresolvedCount, "ciStatus", event.CIStatus)
	return nil
}

// Service journals notification intents and hands them to a deliverer,
// throttling repeats per PR and kind.
type Service struct {
	store   driven.NotificationStore
	deliver Deliverer
	now     func() time.Time
}

// NewService creates a notification service backed by the given journal.
// A nil deliverer falls back to log delivery.
func NewService(store driven.NotificationStore, deliverer Deliverer) *Service {
	if deliverer == nil {
		deliverer = LogDeliverer{}
	}
	return &Service{
		store:   store,
		deliver: deliverer,
		now:     time.Now,
	}
}

// Notify journals and delivers the event unless the same PR and kind was
// notified within the throttle window. Delivery failures are logged, not
// returned; the journal entry already exists and the next poll must not be
// blocked on a presentation problem.
func (s *Service) Notify(ctx context.Context, event model.NotificationEvent) error {
	last, err := s.store.LastForPR(ctx, event.PRID, event.Kind)
	if err != nil {
		return fmt.Errorf("check notification throttle: %w", err)
	}

	now := s.now()
	if last != nil && now.Sub(last.CreatedAt) < throttleWindow {
		slog.Debug("notification throttled",
			"repo", event.Repo, "pr", event.Number, "kind", event.Kind)
		return nil
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}

	id, err := s.store.Insert(ctx, event)
	if err != nil {
		return fmt.Errorf("journal notification: %w", err)
	}
	event.ID = id

	if err := s.deliver.Deliver(ctx, event); err != nil {
		slog.Warn("notification delivery failed",
			"repo", event.Repo, "pr", event.Number, "error", err)
	}

	if err := s.store.Prune(ctx, journalKeep); err != nil {
		slog.Warn("notification journal prune failed", "error", err)
	}

	return nil
}
