// Package generator provides the generative model boundary. The model is a
// black-box text-completion service; failures surface as
// types.ErrGenerationUnavailable and callers answer with FallbackText rather
// than propagating the outage to the end user.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/dthille/corpusqa/internal/config"
	"github.com/dthille/corpusqa/pkg/types"
)

// FallbackText is returned to the user when generation is unavailable.
const FallbackText = "I'm sorry, I can't generate an answer right now. Please try again in a moment."

var ErrEmptyPrompt = errors.New("prompt cannot be empty")

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	DefaultOllamaModel = "llama3.2"
	DefaultOpenAIModel = "gpt-4o-mini"

	defaultMaxRetries = 3
	retryBaseDelay    = 200 * time.Millisecond
	retryMaxDelay     = 5 * time.Second
)

// Client produces a text completion for a prompt. Implementations must honor
// context cancellation and deadlines.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Close() error
}

// New creates a generation client from configuration.
func New(cfg config.ClientConfig) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOllama, "":
		return newHTTPGenerator(cfg, "http://localhost:11434", DefaultOllamaModel, ollamaCall), nil
	case ProviderOpenAI:
		return newHTTPGenerator(cfg, "https://api.openai.com", DefaultOpenAIModel, openAICall), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}

type callFunc func(ctx context.Context, g *httpGenerator, prompt string) (string, error)

type httpGenerator struct {
	baseURL    string
	model      string
	apiKey     string
	maxRetries uint
	client     *http.Client
	call       callFunc
}

func newHTTPGenerator(cfg config.ClientConfig, defaultURL, defaultModel string, call callFunc) *httpGenerator {
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
		timeout = 120 * time.Second
	}
	maxRetries := uint(defaultMaxRetries)
	if cfg.MaxRetries > 0 {
		maxRetries = uint(cfg.MaxRetries)
	}
	return &httpGenerator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		apiKey:     cfg.APIKey,
		maxRetries: maxRetries,
		client:     &http.Client{Timeout: timeout},
		call:       call,
	}
}

// Complete calls the provider with bounded exponential backoff. Retries stop
// early on context cancellation so an abandoned request does no extra work.
func (g *httpGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	text, err := retry.DoWithData(
		func() (string, error) { return g.call(ctx, g, prompt) },
		retry.Context(ctx),
		retry.Attempts(g.maxRetries),
		retry.Delay(retryBaseDelay),
		retry.MaxDelay(retryMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", types.ErrGenerationUnavailable, err)
	}
	return text, nil
}

func (g *httpGenerator) Close() error { return nil }

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

func ollamaCall(ctx context.Context, g *httpGenerator, prompt string) (string, error) {
	body, err := json.Marshal(ollamaGenerateRequest{Model: g.model, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("generate API status %d: %s", resp.StatusCode, payload)
	}

	var parsed ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return parsed.Response, nil
}

type openAIChatRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

func openAICall(ctx context.Context, g *httpGenerator, prompt string) (string, error) {
	body, err := json.Marshal(openAIChatRequest{
		Model:    g.model,
		Messages: []openAIMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("chat API status %d: %s", resp.StatusCode, payload)
	}

	var parsed openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}
	return parsed.Choices[0].Message.Content, nil
}
