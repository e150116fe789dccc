package driven

import (
	"context"
	"time"

	"github.com/xiaocang/ghpr-view/internal/domain/model"
)

// SnapshotCache defines the driven port for persisting the last successful
// snapshot, giving cold starts instant data and failed refreshes a stale
// fallback.
type SnapshotCache interface {
	// Load returns the cached snapshot, or (nil, nil) on a cache miss.
	// A snapshot older than maxAge counts as a miss unless allowStale is
	// set. A corrupt cache file is deleted silently and reported as a miss.
	Load(ctx context.Context, maxAge time.Duration, allowStale bool) (*model.Snapshot, error)

	// Save persists the snapshot's durable fields. The write is an atomic
	// replace so a crash mid-save can never corrupt the previous cache.
	Save(ctx context.Context, snap model.Snapshot) error

	// Clear removes the cached snapshot.
	Clear(ctx context.Context) error
}
