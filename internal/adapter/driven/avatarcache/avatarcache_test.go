package avatarcache_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaocang/ghpr-view/internal/adapter/driven/avatarcache"
	"github.com/xiaocang/ghpr-view/internal/domain/model"
)

// pngBytes carries the PNG magic so content sniffing recognizes it.
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), []byte("fake image payload")...)

func TestCache_GetFetchesOnceThenServesFromDisk(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	}))
	t.Cleanup(server.Close)

	cache, err := avatarcache.NewCache(t.TempDir())
	require.NoError(t, err)

	data, contentType, err := cache.Get(context.Background(), server.URL+"/u/1")
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
	assert.Equal(t, "image/png", contentType)

	data, contentType, err = cache.Get(context.Background(), server.URL+"/u/1")
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
	assert.Equal(t, "image/png", contentType, "sniffed from the cached bytes")

	assert.Equal(t, 1, hits, "second read served from disk")
}

func TestCache_DistinctURLsDistinctEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("payload for " + r.URL.Path))
	}))
	t.Cleanup(server.Close)

	cache, err := avatarcache.NewCache(t.TempDir())
	require.NoError(t, err)

	first, _, err := cache.Get(context.Background(), server.URL+"/u/1")
	require.NoError(t, err)
	second, _, err := cache.Get(context.Background(), server.URL+"/u/2")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestCache_GetRejectsNonHTTPURL(t *testing.T) {
	cache, err := avatarcache.NewCache(t.TempDir())
	require.NoError(t, err)

	_, _, err = cache.Get(context.Background(), "file:///etc/passwd")
	require.Error(t, err)
}

func TestCache_GetUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	cache, err := avatarcache.NewCache(t.TempDir())
	require.NoError(t, err)

	_, _, err = cache.Get(context.Background(), server.URL+"/missing")

	var apiErr *model.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestCache_ClearForcesRefetch(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write(pngBytes)
	}))
	t.Cleanup(server.Close)

	cache, err := avatarcache.NewCache(t.TempDir())
	require.NoError(t, err)

	_, _, err = cache.Get(context.Background(), server.URL+"/u/1")
	require.NoError(t, err)

	require.NoError(t, cache.Clear(context.Background()))

	_, _, err = cache.Get(context.Background(), server.URL+"/u/1")
	require.NoError(t, err)
	assert.Equal(t, 2, hits)

	require.NoError(t, cache.Clear(context.Background()), "clearing an empty cache is fine")
}
