// Package embed provides the text-to-vector capability consumed by the
// similarity index. The provider is external; callers treat a nil vector or
// an error as "unavailable" and fail open.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rnovak/newswatch/internal/config"
)

const (
	providerAPI    = "api"
	providerOllama = "ollama"

	defaultOllamaBaseURL = "http://127.0.0.1:11434"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type client struct {
	provider    string
	baseURL     string
	apiKey      string
	model       string
	expectedDim int
	batchSize   int
	httpClient  *http.Client
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type embeddingResponse struct {
	Data []embeddingData `json:"data"`
}

type embeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// NewEmbedder builds a client against an OpenAI-compatible /v1/embeddings
// endpoint or a local Ollama instance, depending on configuration.
func NewEmbedder(cfg config.EmbeddingConfig) Embedder {
	c := &client{
		provider:    providerAPI,
		baseURL:     strings.TrimSpace(cfg.BaseURL),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       strings.TrimSpace(cfg.Model),
		expectedDim: cfg.Dimension,
		batchSize:   config.DefaultEmbeddingBatchSize,
		httpClient:  &http.Client{Timeout: time.Duration(config.DefaultEmbeddingTimeoutMs) * time.Millisecond},
	}

	if provider := strings.ToLower(strings.TrimSpace(cfg.Provider)); provider != "" {
		c.provider = provider
	}
	if cfg.TimeoutMs > 0 {
		c.httpClient.Timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	if cfg.BatchSize > 0 {
		c.batchSize = cfg.BatchSize
	}
	if c.provider == providerOllama && c.baseURL == "" {
		c.baseURL = defaultOllamaBaseURL
	}

	return c
}

// Configured reports whether the client can possibly reach a provider.
// Callers disable similarity checking for the process lifetime when false.
func Configured(cfg config.EmbeddingConfig) bool {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == providerOllama {
		return strings.TrimSpace(cfg.Model) != ""
	}
	return strings.TrimSpace(cfg.APIKey) != "" && strings.TrimSpace(cfg.BaseURL) != "" && strings.TrimSpace(cfg.Model) != ""
}

func (c *client) Embed(ctx context.Context, text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("embed: empty text")
	}

	vectors, err := c.request(ctx, trimmed, 1)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return vectors[0], nil
}

func (c *client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("embed batch: empty texts")
	}

	normalized := make([]string, len(texts))
	for i, text := range texts {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil, fmt.Errorf("embed batch: empty text at index %d", i)
		}
		normalized[i] = trimmed
	}

	if c.batchSize <= 0 || len(normalized) <= c.batchSize {
		vectors, err := c.request(ctx, normalized, len(normalized))
		if err != nil {
			return nil, fmt.Errorf("embed batch: %w", err)
		}
		return vectors, nil
	}

	vectors := make([][]float32, 0, len(normalized))
	for start := 0; start < len(normalized); start += c.batchSize {
		end := start + c.batchSize
		if end > len(normalized) {
			end = len(normalized)
		}
		chunk, err := c.request(ctx, normalized[start:end], end-start)
		if err != nil {
			return nil, fmt.Errorf("embed batch: %w", err)
		}
		vectors = append(vectors, chunk...)
	}
	return vectors, nil
}

func (c *client) request(ctx context.Context, input any, expectedCount int) ([][]float32, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.model == "" {
		return nil, fmt.Errorf("missing embedding model")
	}

	baseURL, err := c.resolveBaseURL()
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(embeddingRequest{Model: c.model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded embeddingResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return c.validate(decoded.Data, expectedCount)
}

func (c *client) resolveBaseURL() (string, error) {
	baseURL := strings.TrimRight(c.baseURL, "/")
	switch c.provider {
	case "", providerAPI:
		if baseURL == "" {
			return "", fmt.Errorf("missing embedding base url")
		}
		if c.apiKey == "" {
			return "", fmt.Errorf("missing embedding api key")
		}
		return baseURL, nil
	case providerOllama:
		if baseURL == "" {
			baseURL = defaultOllamaBaseURL
		}
		return strings.TrimRight(baseURL, "/"), nil
	default:
		return "", fmt.Errorf("unsupported embedding provider: %s", c.provider)
	}
}

func (c *client) validate(data []embeddingData, expectedCount int) ([][]float32, error) {
	if len(data) != expectedCount {
		return nil, fmt.Errorf("response count mismatch: got %d want %d", len(data), expectedCount)
	}

	vectors := make([][]float32, expectedCount)
	seen := make([]bool, expectedCount)
	responseDim := 0

	for _, item := range data {
		if item.Index < 0 || item.Index >= expectedCount {
			return nil, fmt.Errorf("invalid embedding index %d", item.Index)
		}
		if seen[item.Index] {
			return nil, fmt.Errorf("duplicate embedding index %d", item.Index)
		}
		if len(item.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding vector at index %d", item.Index)
		}
		if responseDim == 0 {
			responseDim = len(item.Embedding)
		} else if len(item.Embedding) != responseDim {
			return nil, fmt.Errorf("inconsistent embedding dimension at index %d", item.Index)
		}
		if c.expectedDim > 0 && len(item.Embedding) != c.expectedDim {
			return nil, fmt.Errorf("embedding dimension at index %d: got %d want %d", item.Index, len(item.Embedding), c.expectedDim)
		}
		seen[item.Index] = true
		vectors[item.Index] = item.Embedding
	}

	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("missing embedding at index %d", i)
		}
	}
	return vectors, nil
}
