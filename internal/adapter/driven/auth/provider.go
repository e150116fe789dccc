// Package auth implements the AuthProvider port: token resolution from the
// environment or a token file, and interactive sign-in via GitHub's OAuth
// Device Flow.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"
	"github.com/pkg/browser"
	"github.com/xiaocang/ghpr-view/internal/domain/model"
	"github.com/xiaocang/ghpr-view/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.AuthProvider = (*Provider)(nil)

// Options configures a Provider.
type Options struct {
	// TokenPath is where a device-flow token is persisted.
	TokenPath string
	// EnvToken is a personal access token from the environment. It takes
	// precedence over the token file and is never written to disk.
	EnvToken string
	// ClientID is the OAuth app client id for the Device Flow. Without it,
	// SignIn is unavailable and only PAT auth works.
	ClientID string
	// OAuthBaseURL defaults to https://github.com.
	OAuthBaseURL string
	// APIBaseURL overrides the REST endpoint used to resolve the username.
	// Empty means api.github.com.
	APIBaseURL string
}

// Provider resolves and holds the GitHub credential. All methods are safe
// for concurrent use.
type Provider struct {
	tokenPath    string
	envToken     string
	clientID     string
	oauthBaseURL string
	apiBaseURL   string
	httpc        *http.Client
	pollFloor    time.Duration
	slowDownStep time.Duration
	openBrowser  func(url string) error

	mu    sync.RWMutex
	token string
	state model.AuthState
	subs  []func(model.AuthState)
}

// NewProvider creates a Provider. No I/O happens until Bootstrap or SignIn.
func NewProvider(opts Options) *Provider {
	oauthBase := strings.TrimSuffix(opts.OAuthBaseURL, "/")
	if oauthBase == "" {
		oauthBase = "https://github.com"
	}
	return &Provider{
		tokenPath:    opts.TokenPath,
		envToken:     strings.TrimSpace(opts.EnvToken),
		clientID:     opts.ClientID,
		oauthBaseURL: oauthBase,
		apiBaseURL:   opts.APIBaseURL,
		httpc:        &http.Client{Timeout: 30 * time.Second},
		pollFloor:    5 * time.Second,
		slowDownStep: 5 * time.Second,
		openBrowser:  browser.OpenURL,
	}
}

// Bootstrap resolves the startup credential: an environment PAT first, then
// the token file. The token is validated by resolving the username against
// the API. Failure leaves the provider signed out and is not fatal; the user
// can still sign in interactively.
func (p *Provider) Bootstrap(ctx context.Context) error {
	token := p.envToken
	source := "environment"

	if token == "" {
		data, err := os.ReadFile(p.tokenPath)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read token file: %w", err)
		}
		token = strings.TrimSpace(string(data))
		source = "token file"
	}
	if token == "" {
		return nil
	}

	username, err := p.fetchUsername(ctx, token)
	if err != nil {
		return fmt.Errorf("validate %s token: %w", source, err)
	}

	p.setAuthenticated(token, username)
	slog.Info("authenticated", "username", username, "source", source)
	return nil
}

// Current returns the present auth state.
func (p *Provider) Current() model.AuthState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Token returns the current bearer token, or "" when signed out.
func (p *Provider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}

// SignIn starts a Device Flow authorization. It returns the pending state
// carrying the user code as soon as GitHub issues it; the grant is awaited
// in the background and subscribers learn the outcome.
func (p *Provider) SignIn(ctx context.Context) (model.AuthState, error) {
	if p.clientID == "" {
		return model.AuthState{}, &model.ConfigError{Reason: "oauth client id not configured, set a personal access token instead"}
	}
	if current := p.Current(); current.Authenticated {
		return current, nil
	}

	code, err := p.requestDeviceCode(ctx)
	if err != nil {
		return model.AuthState{}, fmt.Errorf("request device code: %w", err)
	}

	pending := model.AuthState{
		VerificationURI: code.VerificationURI,
		UserCode:        code.UserCode,
	}
	p.setState(pending)

	if err := p.openBrowser(code.VerificationURI); err != nil {
		slog.Warn("could not open browser for device authorization",
			"url", code.VerificationURI, "error", err)
	}

	go p.completeSignIn(code)

	return pending, nil
}

// completeSignIn waits for the device grant. It runs detached from the
// request that started the flow; the device code's own expiry bounds it.
func (p *Provider) completeSignIn(code *deviceCodeResponse) {
	ctx := context.Background()

	token, err := p.pollForAccessToken(ctx, code)
	if err != nil {
		slog.Warn("device authorization failed", "error", err)
		p.setState(model.AuthState{})
		return
	}

	username, err := p.fetchUsername(ctx, token)
	if err != nil {
		slog.Warn("token granted but user lookup failed", "error", err)
		p.setState(model.AuthState{})
		return
	}

	if err := p.saveToken(token); err != nil {
		slog.Warn("could not persist token, sign-in lasts until shutdown", "error", err)
	}

	p.setAuthenticated(token, username)
	slog.Info("authenticated", "username", username, "source", "device flow")
}

// SignOut discards the credential and notifies subscribers. With an
// environment PAT the sign-out lasts until the next start, since the
// environment is re-read at startup.
func (p *Provider) SignOut(ctx context.Context) error {
	if err := os.Remove(p.tokenPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}

	p.mu.Lock()
	p.token = ""
	p.mu.Unlock()
	p.setState(model.AuthState{})

	slog.Info("signed out")
	return nil
}

// Subscribe registers fn to be called on every auth-state transition.
func (p *Provider) Subscribe(fn func(model.AuthState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, fn)
}

func (p *Provider) setAuthenticated(token, username string) {
	p.mu.Lock()
	p.token = token
	p.mu.Unlock()
	p.setState(model.AuthState{Authenticated: true, Username: username})
}

func (p *Provider) setState(state model.AuthState) {
	p.mu.Lock()
	p.state = state
	subs := append(([]func(model.AuthState))(nil), p.subs...)
	p.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

// saveToken persists the token with owner-only permissions.
func (p *Provider) saveToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(p.tokenPath), 0o755); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}
	if err := os.WriteFile(p.tokenPath, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

// fetchUsername resolves the authenticated login through the REST client
// stack: httpcache for conditional requests, the secondary rate limit
// middleware, then go-github with token auth.
func (p *Provider) fetchUsername(ctx context.Context, token string) (string, error) {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	if p.apiBaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(p.apiBaseURL, "/") + "/")
		if err != nil {
			return "", fmt.Errorf("parse api base url: %w", err)
		}
		client.BaseURL = base
	}

	user, _, err := client.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("fetch authenticated user: %w", err)
	}

	return user.GetLogin(), nil
}
