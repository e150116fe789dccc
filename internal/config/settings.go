package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/xiaocang/ghpr-view/internal/domain/model"
)

// Settings floor and ceiling bounds. The 60s floor bounds API cost no matter
// what the settings file says; the scheduler enforces the same floor again
// when arming its timer.
const (
	MinRefreshInterval = 60
	MaxRefreshInterval = 24 * 60 * 60
)

// Settings is the user-editable configuration, persisted as a JSON file and
// replaced atomically on save. The engine re-reads it at the start of every
// refresh cycle, so edits apply without a restart.
type Settings struct {
	// RefreshIntervalSeconds is the polling interval. Validation enforces
	// the 60s floor and 24h ceiling.
	RefreshIntervalSeconds int `json:"refreshInterval"`

	// Repositories is the allow-list: exact "owner/repo" entries or
	// "owner/" prefixes, matched case-insensitively. Empty means no filter.
	Repositories []string `json:"repositories"`

	ShowDrafts           bool `json:"showDrafts"`
	NotificationsEnabled bool `json:"notificationsEnabled"`
	RefreshOnOpen        bool `json:"refreshOnOpen"`

	// CIStatusExcludeFilter hides status contexts whose name contains any of
	// these substrings (case-insensitive). Used for non-CI statuses such as
	// code-review bots.
	CIStatusExcludeFilter []string `json:"ciStatusExcludeFilter"`

	PauseOnLowPower         bool `json:"pausePollingInLowPowerMode"`
	PauseOnExpensiveNetwork bool `json:"pausePollingOnExpensiveNetwork"`
	ShowReviewStatus        bool `json:"showReviewStatus"`

	// MergedFetchWindowDays bounds the server-side merged search;
	// MergedDisplayWindowHours is the tighter client-side display window.
	// The gap tolerates clock and timezone skew.
	MergedFetchWindowDays    int `json:"mergedFetchWindowDays"`
	MergedDisplayWindowHours int `json:"mergedDisplayWindowHours"`
}

// DefaultSettings returns the settings written on first run.
func DefaultSettings() Settings {
	return Settings{
		RefreshIntervalSeconds:   300,
		Repositories:             []string{},
		ShowDrafts:               true,
		NotificationsEnabled:     true,
		RefreshOnOpen:            false,
		CIStatusExcludeFilter:    []string{},
		PauseOnLowPower:          true,
		PauseOnExpensiveNetwork:  true,
		ShowReviewStatus:         true,
		MergedFetchWindowDays:    2,
		MergedDisplayWindowHours: 24,
	}
}

// RefreshInterval returns the configured interval as a duration.
func (s Settings) RefreshInterval() time.Duration {
	return time.Duration(s.RefreshIntervalSeconds) * time.Second
}

// MergedDisplayWindow returns the client-side merged display window.
func (s Settings) MergedDisplayWindow() time.Duration {
	return time.Duration(s.MergedDisplayWindowHours) * time.Hour
}

// Validate checks bounds and returns a model.ConfigError describing the
// first violation. The engine validates before every refresh so an invalid
// settings file short-circuits the cycle before any network call.
func (s Settings) Validate() error {
	if s.RefreshIntervalSeconds < MinRefreshInterval {
		return &model.ConfigError{Reason: fmt.Sprintf("refreshInterval %ds is below the %ds minimum", s.RefreshIntervalSeconds, MinRefreshInterval)}
	}
	if s.RefreshIntervalSeconds > MaxRefreshInterval {
		return &model.ConfigError{Reason: fmt.Sprintf("refreshInterval %ds exceeds the %ds maximum", s.RefreshIntervalSeconds, MaxRefreshInterval)}
	}
	if s.MergedFetchWindowDays < 1 {
		return &model.ConfigError{Reason: "mergedFetchWindowDays must be at least 1"}
	}
	if s.MergedDisplayWindowHours < 1 {
		return &model.ConfigError{Reason: "mergedDisplayWindowHours must be at least 1"}
	}
	return nil
}

// Normalized returns a copy with repository entries and filter substrings
// trimmed and empties dropped.
func (s Settings) Normalized() Settings {
	out := s
	out.Repositories = cleanList(s.Repositories)
	out.CIStatusExcludeFilter = cleanList(s.CIStatusExcludeFilter)
	return out
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// AllowsRepo reports whether repoFullName ("owner/repo") passes the
// repository allow-list. An empty list allows everything. Entries ending in
// "/" match as owner prefixes; all matching is case-insensitive.
func (s Settings) AllowsRepo(repoFullName string) bool {
	if len(s.Repositories) == 0 {
		return true
	}
	name := strings.ToLower(repoFullName)
	for _, entry := range s.Repositories {
		filter := strings.ToLower(strings.TrimSpace(entry))
		if filter == "" {
			continue
		}
		if strings.HasSuffix(filter, "/") {
			if strings.HasPrefix(name, filter) {
				return true
			}
			continue
		}
		if name == filter {
			return true
		}
	}
	return false
}
