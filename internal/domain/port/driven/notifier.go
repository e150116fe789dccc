package driven

import (
	"context"

	"github.com/xiaocang/ghpr-view/internal/domain/model"
)

// Notifier defines the driven port that receives notification intents from
// the change detector. Throttling, journaling, and delivery are the
// implementation's concern, not the detector's.
type Notifier interface {
	Notify(ctx context.Context, event model.NotificationEvent) error
}
