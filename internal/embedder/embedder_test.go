package embedder

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dthille/corpusqa/internal/config"
	"github.com/dthille/corpusqa/pkg/types"
)

func ollamaTestServer(t *testing.T, calls *atomic.Int64, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		_, _ = w.Write([]byte(`{"embedding":[0.1,0.2,0.3]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, url string) Client {
	t.Helper()
	c, err := New(config.ClientConfig{
		Provider:   ProviderOllama,
		BaseURL:    url,
		Model:      "test-model",
		Timeout:    5 * time.Second,
		MaxRetries: 2,
		CacheSize:  10,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestEncode(t *testing.T) {
	var calls atomic.Int64
	srv := ollamaTestServer(t, &calls, http.StatusOK)
	c := newTestClient(t, srv.URL)

	vec, err := c.Encode(context.Background(), "what is a pipeline")
	require.NoError(t, err)
	assert.Equal(t, types.EmbeddingVector{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, int64(1), calls.Load())
}

func TestEncodeUsesCache(t *testing.T) {
	var calls atomic.Int64
	srv := ollamaTestServer(t, &calls, http.StatusOK)
	c := newTestClient(t, srv.URL)

	_, err := c.Encode(context.Background(), "repeated text")
	require.NoError(t, err)
	_, err = c.Encode(context.Background(), "repeated text")
	require.NoError(t, err)

	assert.Equal(t, int64(1), calls.Load(), "second encode must be served from cache")
}

func TestEncodeEmptyText(t *testing.T) {
	srv := ollamaTestServer(t, &atomic.Int64{}, http.StatusOK)
	c := newTestClient(t, srv.URL)

	_, err := c.Encode(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestEncodeUnavailable(t *testing.T) {
	var calls atomic.Int64
	srv := ollamaTestServer(t, &calls, http.StatusInternalServerError)
	c := newTestClient(t, srv.URL)

	_, err := c.Encode(context.Background(), "some text")
	assert.ErrorIs(t, err, types.ErrEncodingUnavailable)
	assert.Equal(t, int64(2), calls.Load(), "retries are bounded by MaxRetries")
}

func TestEncodeCancelledContext(t *testing.T) {
	srv := ollamaTestServer(t, &atomic.Int64{}, http.StatusInternalServerError)
	c := newTestClient(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Encode(ctx, "some text")
	assert.True(t, errors.Is(err, context.Canceled) || errors.Is(err, types.ErrEncodingUnavailable))
}

func TestUnknownProvider(t *testing.T) {
	_, err := New(config.ClientConfig{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestCacheReturnsCopies(t *testing.T) {
	cache := NewCache(4)
	cache.Set("k", types.EmbeddingVector{1, 2, 3})

	vec, ok := cache.Get("k")
	require.True(t, ok)
	vec[0] = 99

	again, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, float32(1), again[0])
}
