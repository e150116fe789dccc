package diskcache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"github.com/xiaocang/ghpr-view/internal/domain/model"
	"github.com/xiaocang/ghpr-view/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SnapshotCache = (*Cache)(nil)

// Cache persists the last good snapshot as a JSON file so a restart can show
// data immediately instead of an empty panel.
type Cache struct {
	path string
}

// NewCache creates a snapshot cache at the given file path, creating parent
// directories as needed.
func NewCache(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &Cache{path: path}, nil
}

// Load reads the cached snapshot. A missing file, a corrupt file, or a
// snapshot older than maxAge all report a miss with a nil snapshot and nil
// error. Corrupt files are deleted so the next save starts clean. allowStale
// skips the age check so a failed refresh can fall back to old data.
func (c *Cache) Load(ctx context.Context, maxAge time.Duration, allowStale bool) (*model.Snapshot, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot cache: %w", err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("snapshot cache corrupt, discarding", "path", c.path, "error", err)
		if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("failed to remove corrupt snapshot cache", "path", c.path, "error", err)
		}
		return nil, nil
	}

	if !allowStale && time.Since(snap.LastUpdated) > maxAge {
		return nil, nil
	}

	return &snap, nil
}

// Save writes the snapshot atomically so a crash mid-write cannot corrupt
// the previous copy.
func (c *Cache) Save(ctx context.Context, snap model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := atomic.WriteFile(c.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write snapshot cache: %w", err)
	}
	return nil
}

// Clear removes the cache file. Clearing an absent cache is not an error.
func (c *Cache) Clear(ctx context.Context) error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove snapshot cache: %w", err)
	}
	return nil
}
