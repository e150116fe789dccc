// Package avatarcache implements the AvatarCache port: a disk cache of
// author avatars keyed by URL hash, so the menu bar renders them offline
// and GitHub's CDN is hit once per author.
package avatarcache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"github.com/xiaocang/ghpr-view/internal/domain/model"
	"github.com/xiaocang/ghpr-view/internal/domain/port/driven"
)

// maxAvatarBytes bounds a single download; avatars past this size are
// truncated rather than ballooning the cache.
const maxAvatarBytes = 2 << 20

// Compile-time interface satisfaction check.
var _ driven.AvatarCache = (*Cache)(nil)

// Cache fetches avatars over HTTP and keeps them on disk.
type Cache struct {
	dir   string
	httpc *http.Client
}

// NewCache creates an avatar cache rooted at dir.
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create avatar cache directory: %w", err)
	}
	return &Cache{
		dir:   dir,
		httpc: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Get returns the avatar bytes and content type for the given URL, serving
// from disk when possible. A failed cache write is logged but the fetched
// bytes are still returned.
func (c *Cache) Get(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, "", fmt.Errorf("unsupported avatar url: %q", rawURL)
	}

	path := c.pathFor(rawURL)
	data, err := os.ReadFile(path)
	if err == nil {
		return data, http.DetectContentType(data), nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("read cached avatar: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build avatar request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, "", &model.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &model.APIError{StatusCode: resp.StatusCode}
	}

	data, err = io.ReadAll(io.LimitReader(resp.Body, maxAvatarBytes))
	if err != nil {
		return nil, "", &model.NetworkError{Err: err}
	}

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		slog.Warn("could not cache avatar", "url", rawURL, "error", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

// Clear removes every cached avatar. Used on sign-out.
func (c *Cache) Clear(ctx context.Context) error {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read avatar cache directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err != nil {
			return fmt.Errorf("remove cached avatar: %w", err)
		}
	}
	return nil
}

func (c *Cache) pathFor(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:]))
}
