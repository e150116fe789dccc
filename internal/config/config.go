// Package config loads daemon configuration from environment variables and
// manages the user settings file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds daemon-level configuration loaded from environment variables.
// User-facing settings live in the settings file (see Settings); Config only
// covers knobs that must exist before the settings store can be opened.
type Config struct {
	ListenAddr string

	// DataDir is the base directory for every file the daemon writes. The
	// individual paths below default to well-known names inside it.
	DataDir      string
	SettingsPath string
	CachePath    string
	DBPath       string
	TokenPath    string

	// GitHubToken is an optional PAT. When set it wins over the token file
	// and the Device Flow.
	GitHubToken   string
	OAuthClientID string

	GraphQLURL   string
	APIBaseURL   string
	OAuthBaseURL string

	// Probe commands for the system monitor. Empty means the platform
	// default (battery sysfs on Linux, nothing elsewhere).
	LowPowerProbe         string
	ExpensiveNetworkProbe string
	SysmonInterval        time.Duration
}

// AvatarDir returns the avatar cache directory under DataDir.
func (c *Config) AvatarDir() string {
	return filepath.Join(c.DataDir, "avatars")
}

// Load reads configuration from environment variables and returns a validated
// Config. Everything is optional; GHPRVIEW_GITHUB_TOKEN is only needed when
// skipping the Device Flow. Defaults: GHPRVIEW_LISTEN_ADDR (127.0.0.1:8080),
// GHPRVIEW_DATA_DIR (.), GHPRVIEW_SYSMON_INTERVAL (30s), path variables
// derived from the data dir.
func Load() (*Config, error) {
	dataDir := "."
	if v, ok := os.LookupEnv("GHPRVIEW_DATA_DIR"); ok && v != "" {
		dataDir = v
	}

	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("GHPRVIEW_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	settingsPath := filepath.Join(dataDir, "settings.json")
	if v, ok := os.LookupEnv("GHPRVIEW_SETTINGS_PATH"); ok {
		settingsPath = v
	}

	cachePath := filepath.Join(dataDir, "snapshot.json")
	if v, ok := os.LookupEnv("GHPRVIEW_CACHE_PATH"); ok {
		cachePath = v
	}

	dbPath := filepath.Join(dataDir, "notifications.db")
	if v, ok := os.LookupEnv("GHPRVIEW_DB_PATH"); ok {
		dbPath = v
	}

	tokenPath := filepath.Join(dataDir, "token")
	if v, ok := os.LookupEnv("GHPRVIEW_TOKEN_PATH"); ok {
		tokenPath = v
	}

	graphqlURL := "https://api.github.com/graphql"
	if v, ok := os.LookupEnv("GHPRVIEW_GRAPHQL_URL"); ok && v != "" {
		graphqlURL = v
	}

	oauthBaseURL := "https://github.com"
	if v, ok := os.LookupEnv("GHPRVIEW_OAUTH_BASE_URL"); ok && v != "" {
		oauthBaseURL = v
	}

	sysmonInterval := 30 * time.Second
	if v, ok := os.LookupEnv("GHPRVIEW_SYSMON_INTERVAL"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("GHPRVIEW_SYSMON_INTERVAL has invalid duration %q: %w", v, err)
		}
		sysmonInterval = parsed
	}

	return &Config{
		ListenAddr:            listenAddr,
		DataDir:               dataDir,
		SettingsPath:          settingsPath,
		CachePath:             cachePath,
		DBPath:                dbPath,
		TokenPath:             tokenPath,
		GitHubToken:           os.Getenv("GHPRVIEW_GITHUB_TOKEN"),
		OAuthClientID:         os.Getenv("GHPRVIEW_OAUTH_CLIENT_ID"),
		GraphQLURL:            graphqlURL,
		APIBaseURL:            os.Getenv("GHPRVIEW_API_BASE_URL"),
		OAuthBaseURL:          oauthBaseURL,
		LowPowerProbe:         os.Getenv("GHPRVIEW_LOW_POWER_PROBE"),
		ExpensiveNetworkProbe: os.Getenv("GHPRVIEW_EXPENSIVE_NETWORK_PROBE"),
		SysmonInterval:        sysmonInterval,
	}, nil
}
