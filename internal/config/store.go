package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/natefinch/atomic"
)

// Store owns the settings file. Reads come from an in-memory copy; saves are
// atomic replace-on-disk; external edits are picked up by a directory watch
// and pushed to subscribers.
type Store struct {
	path string

	mu      sync.RWMutex
	current Settings
	subs    []func(Settings)
}

// NewStore opens the settings file at path, creating it with defaults when
// missing. A file that exists but does not decode falls back to defaults in
// memory and is left on disk untouched for the user to repair.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating settings directory: %w", err)
	}

	s := &Store{path: path, current: DefaultSettings()}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		if err := s.write(s.current); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("reading settings file: %w", err)
	default:
		loaded, err := decodeSettings(data)
		if err != nil {
			slog.Warn("settings file is not valid JSON, using defaults", "path", path, "error", err)
		} else {
			s.current = loaded
		}
	}

	return s, nil
}

// decodeSettings unmarshals on top of the defaults so keys missing from the
// file keep their default values.
func decodeSettings(data []byte) (Settings, error) {
	loaded := DefaultSettings()
	if err := json.Unmarshal(data, &loaded); err != nil {
		return Settings{}, err
	}
	return loaded.Normalized(), nil
}

// Current returns the settings as of the last load or save.
func (s *Store) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Save validates, persists, and publishes new settings.
func (s *Store) Save(settings Settings) error {
	settings = settings.Normalized()
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := s.write(settings); err != nil {
		return err
	}
	s.replace(settings)
	return nil
}

// Subscribe registers fn to run on every settings change, whether from Save
// or from an external file edit.
func (s *Store) Subscribe(fn func(Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Watch follows the settings file until ctx is done, reloading on external
// writes. Atomic saves land as rename events, so the watch is on the parent
// directory rather than the file itself.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating settings watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watching settings directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			s.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("settings watcher error", "error", err)
		}
	}
}

func (s *Store) reload() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("reloading settings failed", "path", s.path, "error", err)
		}
		return
	}
	loaded, err := decodeSettings(data)
	if err != nil {
		slog.Warn("ignoring settings edit, file is not valid JSON", "path", s.path, "error", err)
		return
	}
	if err := loaded.Validate(); err != nil {
		slog.Warn("ignoring settings edit", "path", s.path, "error", err)
		return
	}
	s.replace(loaded)
}

// replace swaps the current settings and notifies subscribers when the
// value actually changed.
func (s *Store) replace(settings Settings) {
	s.mu.Lock()
	if reflect.DeepEqual(s.current, settings) {
		s.mu.Unlock()
		return
	}
	s.current = settings
	subs := make([]func(Settings), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(settings)
	}
}

func (s *Store) write(settings Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing settings file: %w", err)
	}
	return nil
}
