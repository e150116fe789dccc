package application

import (
	"sync"

	"github.com/xiaocang/ghpr-view/internal/domain/model"
)

// SnapshotHolder publishes the latest snapshot to concurrent readers. Only
// the engine's run loop writes it; the HTTP surface reads it on every
// request.
type SnapshotHolder struct {
	mu   sync.RWMutex
	snap model.Snapshot
}

// NewSnapshotHolder returns a holder containing an empty snapshot.
func NewSnapshotHolder() *SnapshotHolder {
	return &SnapshotHolder{}
}

// Get returns the current snapshot.
func (h *SnapshotHolder) Get() model.Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snap
}

// Set replaces the current snapshot.
func (h *SnapshotHolder) Set(snap model.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snap = snap
}
