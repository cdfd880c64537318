package generator

import (
	"context"
	"encoding/json"
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

func ollamaGenTestServer(t *testing.T, calls *atomic.Int64, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req ollamaGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)

		_, _ = w.Write([]byte(`{"response":"GitLab is an all-remote company."}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGenerator(t *testing.T, url string) Client {
	t.Helper()
	c, err := New(config.ClientConfig{
		Provider:   ProviderOllama,
		BaseURL:    url,
		Model:      "test-model",
		Timeout:    5 * time.Second,
		MaxRetries: 2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestComplete(t *testing.T) {
	var calls atomic.Int64
	srv := ollamaGenTestServer(t, &calls, http.StatusOK)
	c := newTestGenerator(t, srv.URL)

	text, err := c.Complete(context.Background(), "Answer using the context below.")
	require.NoError(t, err)
	assert.Equal(t, "GitLab is an all-remote company.", text)
	assert.Equal(t, int64(1), calls.Load())
}

func TestCompleteEmptyPrompt(t *testing.T) {
	srv := ollamaGenTestServer(t, &atomic.Int64{}, http.StatusOK)
	c := newTestGenerator(t, srv.URL)

	_, err := c.Complete(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestCompleteUnavailable(t *testing.T) {
	var calls atomic.Int64
	srv := ollamaGenTestServer(t, &calls, http.StatusInternalServerError)
	c := newTestGenerator(t, srv.URL)

	_, err := c.Complete(context.Background(), "prompt")
	assert.ErrorIs(t, err, types.ErrGenerationUnavailable)
	assert.Equal(t, int64(2), calls.Load(), "retries are bounded by MaxRetries")
}

func TestCompleteCancelledContext(t *testing.T) {
	srv := ollamaGenTestServer(t, &atomic.Int64{}, http.StatusInternalServerError)
	c := newTestGenerator(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Complete(ctx, "prompt")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, types.ErrGenerationUnavailable)
}

func TestUnknownGenerationProvider(t *testing.T) {
	_, err := New(config.ClientConfig{Provider: "smoke-signal"})
	assert.Error(t, err)
}
