package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dthille/corpusqa/internal/config"
)

const testCorpus = `{"id":"p1","text":"GitLab is an all-remote company with no offices","source_url":"https://example.com/remote","embedding":[1,0,0]}
{"id":"p2","text":"Merge requests are reviewed by maintainers before merging","embedding":[0,1,0]}
`

// fakeBackend serves both the embeddings and the generate endpoints.
func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/embeddings", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[1,0,0]}`))
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"response":"GitLab operates fully remotely."}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	corpusPath := filepath.Join(t.TempDir(), "corpus.jsonl")
	require.NoError(t, os.WriteFile(corpusPath, []byte(testCorpus), 0o644))

	backend := fakeBackend(t)

	cfg := config.Default()
	cfg.Corpus.Path = corpusPath
	cfg.Embedding.BaseURL = backend.URL
	cfg.Embedding.MaxRetries = 1
	cfg.Generation.BaseURL = backend.URL
	cfg.Generation.MaxRetries = 1
	cfg.RequestTimeout = 10 * time.Second

	s, err := NewServer(cfg, nil)
	require.NoError(t, err)
	return s
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func textOf(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &parsed))
	return parsed
}

func TestNewServerComponents(t *testing.T) {
	s := newTestServer(t)

	assert.NotNil(t, s.mcp)
	assert.NotNil(t, s.engine)
	assert.NotNil(t, s.corpus)
	assert.Equal(t, 2, s.corpus.Len())
}

func TestNewServerMissingCorpus(t *testing.T) {
	cfg := config.Default()
	cfg.Corpus.Path = filepath.Join(t.TempDir(), "does-not-exist.jsonl")

	_, err := NewServer(cfg, nil)
	assert.Error(t, err)
}

func TestHandleAsk(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleAsk(context.Background(), callRequest(map[string]interface{}{
		"question": "What is remote work at GitLab?",
	}))
	require.NoError(t, err)

	response := textOf(t, result)
	assert.Equal(t, "GitLab operates fully remotely.", response["answer"])
	assert.NotNil(t, response["confidence"])
	assert.NotEmpty(t, response["citations"])
}

func TestHandleAskMissingQuestion(t *testing.T) {
	s := newTestServer(t)

	_, err := s.handleAsk(context.Background(), callRequest(map[string]interface{}{}))
	require.Error(t, err)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}

func TestHandleAskEmptyAfterNormalization(t *testing.T) {
	s := newTestServer(t)

	_, err := s.handleAsk(context.Background(), callRequest(map[string]interface{}{
		"question": "what is the???",
	}))
	require.Error(t, err)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeEmptyQuery, mcpErr.Code)
}

func TestHandleSearchPassages(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleSearchPassages(context.Background(), callRequest(map[string]interface{}{
		"query": "merge request review",
		"limit": float64(5),
	}))
	require.NoError(t, err)

	response := textOf(t, result)
	assert.Equal(t, "merge request review", response["query"])
	passages, ok := response["passages"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, passages)

	first, ok := passages[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "p2", first["passage_id"])
}

func TestHandleSearchPassagesLimitBounds(t *testing.T) {
	s := newTestServer(t)

	_, err := s.handleSearchPassages(context.Background(), callRequest(map[string]interface{}{
		"query": "merge",
		"limit": float64(0),
	}))
	require.Error(t, err)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}

func TestHandleCacheStats(t *testing.T) {
	s := newTestServer(t)

	_, err := s.handleAsk(context.Background(), callRequest(map[string]interface{}{
		"question": "What is remote work at GitLab?",
	}))
	require.NoError(t, err)

	result, err := s.handleCacheStats(context.Background(), callRequest(nil))
	require.NoError(t, err)

	response := textOf(t, result)
	caches, ok := response["caches"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), caches["exact_entries"])

	// Purge and verify the tiers drain.
	result, err = s.handleCacheStats(context.Background(), callRequest(map[string]interface{}{
		"purge": true,
	}))
	require.NoError(t, err)
	assert.Equal(t, true, textOf(t, result)["purged"])

	exactLen, semanticLen := s.engine.CacheSizes()
	assert.Zero(t, exactLen)
	assert.Zero(t, semanticLen)
}
