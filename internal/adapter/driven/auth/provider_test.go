package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaocang/ghpr-view/internal/domain/model"
)

func userHandler(login string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"login":"` + login + `"}`))
	}
}

func newTestProvider(t *testing.T, server *httptest.Server, opts Options) *Provider {
	t.Helper()

	if opts.TokenPath == "" {
		opts.TokenPath = filepath.Join(t.TempDir(), "token")
	}
	if server != nil {
		opts.APIBaseURL = server.URL
		opts.OAuthBaseURL = server.URL
	}

	p := NewProvider(opts)
	p.pollFloor = 5 * time.Millisecond
	p.openBrowser = func(string) error { return nil }
	return p
}

func TestProvider_BootstrapWithEnvToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		userHandler("octocat")(w, r)
	}))
	t.Cleanup(server.Close)

	p := newTestProvider(t, server, Options{EnvToken: "env-token"})
	require.NoError(t, p.Bootstrap(context.Background()))

	state := p.Current()
	assert.True(t, state.Authenticated)
	assert.Equal(t, "octocat", state.Username)
	assert.Equal(t, "env-token", p.Token())
	assert.Equal(t, "Bearer env-token", gotAuth)
}

func TestProvider_BootstrapWithTokenFile(t *testing.T) {
	server := httptest.NewServer(userHandler("filed"))
	t.Cleanup(server.Close)

	tokenPath := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenPath, []byte("file-token\n"), 0o600))

	p := newTestProvider(t, server, Options{TokenPath: tokenPath})
	require.NoError(t, p.Bootstrap(context.Background()))

	assert.True(t, p.Current().Authenticated)
	assert.Equal(t, "file-token", p.Token(), "whitespace trimmed from the stored token")
}

func TestProvider_BootstrapEnvTokenWinsOverFile(t *testing.T) {
	server := httptest.NewServer(userHandler("octocat"))
	t.Cleanup(server.Close)

	tokenPath := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenPath, []byte("file-token"), 0o600))

	p := newTestProvider(t, server, Options{TokenPath: tokenPath, EnvToken: "env-token"})
	require.NoError(t, p.Bootstrap(context.Background()))

	assert.Equal(t, "env-token", p.Token())
}

func TestProvider_BootstrapWithoutTokenStaysSignedOut(t *testing.T) {
	p := newTestProvider(t, nil, Options{})

	require.NoError(t, p.Bootstrap(context.Background()))

	assert.False(t, p.Current().Authenticated)
	assert.Empty(t, p.Token())
}

func TestProvider_BootstrapInvalidTokenFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	p := newTestProvider(t, server, Options{EnvToken: "revoked"})

	require.Error(t, p.Bootstrap(context.Background()))
	assert.False(t, p.Current().Authenticated)
	assert.Empty(t, p.Token(), "a token that fails validation is not kept")
}

func TestProvider_SignInDeviceFlow(t *testing.T) {
	var tokenPolls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/login/device/code":
			_, _ = w.Write([]byte(`{"device_code":"dev-1","user_code":"ABCD-1234","verification_uri":"https://github.com/login/device","expires_in":60,"interval":0}`))
		case "/login/oauth/access_token":
			tokenPolls++
			if tokenPolls == 1 {
				_, _ = w.Write([]byte(`{"error":"authorization_pending"}`))
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"flow-token","token_type":"bearer","scope":"repo"}`))
		case "/user":
			_, _ = w.Write([]byte(`{"login":"hubber"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	tokenPath := filepath.Join(t.TempDir(), "token")
	p := newTestProvider(t, server, Options{TokenPath: tokenPath, ClientID: "client-123"})

	var opened string
	p.openBrowser = func(url string) error {
		opened = url
		return nil
	}

	states := make(chan model.AuthState, 8)
	p.Subscribe(func(state model.AuthState) { states <- state })

	pending, err := p.SignIn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ABCD-1234", pending.UserCode)
	assert.Equal(t, "https://github.com/login/device", pending.VerificationURI)
	assert.False(t, pending.Authenticated)
	assert.Equal(t, "https://github.com/login/device", opened)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case state := <-states:
			if !state.Authenticated {
				continue
			}
			assert.Equal(t, "hubber", state.Username)
			assert.Equal(t, "flow-token", p.Token())

			data, err := os.ReadFile(tokenPath)
			require.NoError(t, err)
			assert.Equal(t, "flow-token\n", string(data))

			info, err := os.Stat(tokenPath)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
			return
		case <-deadline:
			t.Fatal("timed out waiting for authenticated state")
		}
	}
}

func TestProvider_SignInWithoutClientID(t *testing.T) {
	p := newTestProvider(t, nil, Options{})

	_, err := p.SignIn(context.Background())

	var cfgErr *model.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestProvider_SignInWhileAuthenticatedIsANoop(t *testing.T) {
	server := httptest.NewServer(userHandler("octocat"))
	t.Cleanup(server.Close)

	p := newTestProvider(t, server, Options{EnvToken: "env-token", ClientID: "client-123"})
	require.NoError(t, p.Bootstrap(context.Background()))

	state, err := p.SignIn(context.Background())
	require.NoError(t, err)
	assert.True(t, state.Authenticated)
	assert.Empty(t, state.UserCode, "no new device flow while signed in")
}

func TestProvider_SignOut(t *testing.T) {
	server := httptest.NewServer(userHandler("octocat"))
	t.Cleanup(server.Close)

	tokenPath := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenPath, []byte("file-token"), 0o600))

	p := newTestProvider(t, server, Options{TokenPath: tokenPath})
	require.NoError(t, p.Bootstrap(context.Background()))

	states := make(chan model.AuthState, 1)
	p.Subscribe(func(state model.AuthState) { states <- state })

	require.NoError(t, p.SignOut(context.Background()))

	assert.Empty(t, p.Token())
	assert.False(t, p.Current().Authenticated)

	_, statErr := os.Stat(tokenPath)
	assert.True(t, os.IsNotExist(statErr), "token file removed")

	select {
	case state := <-states:
		assert.False(t, state.Authenticated)
	case <-time.After(time.Second):
		t.Fatal("subscriber not notified of sign-out")
	}

	require.NoError(t, p.SignOut(context.Background()), "sign-out is idempotent")
}
