package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/dthille/corpusqa/internal/config"
	"github.com/dthille/corpusqa/pkg/types"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	DefaultOllamaModel = "nomic-embed-text"
	DefaultOpenAIModel = "text-embedding-3-small"

	OllamaDimension = 768
	OpenAIDimension = 1536

	defaultMaxRetries = 3
	retryBaseDelay    = 100 * time.Millisecond
	retryMaxDelay     = 5 * time.Second
)

// New creates an embedding client from configuration.
func New(cfg config.ClientConfig) (Client, error) {
	cache := NewCache(cfg.CacheSize)
	switch strings.ToLower(cfg.Provider) {
	case ProviderOllama, "":
		return newOllamaClient(cfg, cache), nil
	case ProviderOpenAI:
		return newOpenAIClient(cfg, cache), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// httpClient is shared plumbing for the HTTP providers.
type httpClient struct {
	baseURL    string
	model      string
	apiKey     string
	dimension  int
	maxRetries uint
	client     *http.Client
	cache      *Cache
}

func newHTTPClient(cfg config.ClientConfig, cache *Cache, defaultURL, defaultModel string, dimension int) httpClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxRetries := uint(defaultMaxRetries)
	if cfg.MaxRetries > 0 {
		maxRetries = uint(cfg.MaxRetries)
	}
	return httpClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		apiKey:     cfg.APIKey,
		dimension:  dimension,
		maxRetries: maxRetries,
		client:     &http.Client{Timeout: timeout},
		cache:      cache,
	}
}

// encode runs one call attempt function with bounded exponential backoff.
// Retry stops early on context cancellation.
func (h *httpClient) encode(ctx context.Context, text string, call func(context.Context, string) (types.EmbeddingVector, error)) (types.EmbeddingVector, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	hash := ComputeHash(text)
	if h.cache != nil {
		if vec, ok := h.cache.Get(hash); ok {
			return vec, nil
		}
	}

	vec, err := retry.DoWithData(
		func() (types.EmbeddingVector, error) { return call(ctx, text) },
		retry.Context(ctx),
		retry.Attempts(h.maxRetries),
		retry.Delay(retryBaseDelay),
		retry.MaxDelay(retryMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", types.ErrEncodingUnavailable, err)
	}

	if h.cache != nil {
		h.cache.Set(hash, vec)
	}
	return vec, nil
}

// OllamaClient talks to a local Ollama embeddings endpoint.
type OllamaClient struct {
	httpClient
}

func newOllamaClient(cfg config.ClientConfig, cache *Cache) *OllamaClient {
	return &OllamaClient{
		httpClient: newHTTPClient(cfg, cache, "http://localhost:11434", DefaultOllamaModel, OllamaDimension),
	}
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (o *OllamaClient) Encode(ctx context.Context, text string) (types.EmbeddingVector, error) {
	return o.encode(ctx, text, o.callAPI)
}

func (o *OllamaClient) callAPI(ctx context.Context, text string) (types.EmbeddingVector, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("embeddings API status %d: %s", resp.StatusCode, payload)
	}

	var parsed ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return parsed.Embedding, nil
}

func (o *OllamaClient) Dimension() int { return o.dimension }
func (o *OllamaClient) Close() error   { return nil }

// OpenAIClient talks to an OpenAI-compatible embeddings API.
type OpenAIClient struct {
	httpClient
}

func newOpenAIClient(cfg config.ClientConfig, cache *Cache) *OpenAIClient {
	return &OpenAIClient{
		httpClient: newHTTPClient(cfg, cache, "https://api.openai.com", DefaultOpenAIModel, OpenAIDimension),
	}
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (o *OpenAIClient) Encode(ctx context.Context, text string) (types.EmbeddingVector, error) {
	return o.encode(ctx, text, o.callAPI)
}

func (o *OpenAIClient) callAPI(ctx context.Context, text string) (types.EmbeddingVector, error) {
	body, err := json.Marshal(openAIEmbedRequest{Model: o.model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("embeddings API status %d: %s", resp.StatusCode, payload)
	}

	var parsed openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return parsed.Data[0].Embedding, nil
}

func (o *OpenAIClient) Dimension() int { return o.dimension }
func (o *OpenAIClient) Close() error   { return nil }
