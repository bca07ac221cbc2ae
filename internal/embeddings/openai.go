package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig holds configuration for the remote embedding provider.
type OpenAIConfig struct {
	// APIKey authenticates against the API. Required.
	APIKey string

	// BaseURL overrides the API endpoint, for OpenAI-compatible servers.
	BaseURL string

	// Model is the embedding model. Default: text-embedding-3-small.
	Model string

	// MaxRetries bounds retries of transient failures. Default: 3.
	MaxRetries int

	// RetryBaseDelay is the initial backoff delay, doubled per attempt.
	// Default: 500ms.
	RetryBaseDelay time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *OpenAIConfig) ApplyDefaults() {
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = 500 * time.Millisecond
	}
}

// OpenAIProvider generates embeddings via a remote OpenAI-compatible API.
//
// Transient failures (network errors, 429, 5xx) are retried with exponential
// backoff up to MaxRetries; after that the call fails with
// ErrEmbeddingUnavailable. A batch either fully succeeds or fails as a whole.
type OpenAIProvider struct {
	client    *openai.Client
	config    OpenAIConfig
	dimension int
}

// NewOpenAIProvider creates a new remote embedding provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key required for openai provider", ErrInvalidConfig)
	}
	cfg.ApplyDefaults()

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client:    openai.NewClientWithConfig(clientCfg),
		config:    cfg,
		dimension: openAIModelDimension(cfg.Model),
	}, nil
}

// openAIModelDimension returns the embedding dimension for a model name.
//
//   - text-embedding-3-small: 1536
//   - text-embedding-3-large: 3072
//   - text-embedding-ada-002: 1536
//
// Returns 1536 for unknown models.
func openAIModelDimension(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	default:
		return 1536
	}
}

// EmbedDocuments generates embeddings for multiple texts in a single API
// call.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	var err error
	defer func() {
		observeEmbedding("openai", "embed_documents", start, len(texts), err)
	}()

	if len(texts) == 0 {
		err = fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
		return nil, err
	}

	var vectors [][]float32
	vectors, err = p.embedWithRetry(ctx, texts)
	return vectors, err
}

// EmbedQuery generates an embedding for a single query.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var err error
	defer func() {
		observeEmbedding("openai", "embed_query", start, 1, err)
	}()

	if text == "" {
		err = fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
		return nil, err
	}

	var vectors [][]float32
	vectors, err = p.embedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embedWithRetry calls the embeddings endpoint, retrying transient failures
// with exponential backoff.
func (p *OpenAIProvider) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(p.config.Model),
		Input: texts,
	}

	var lastErr error
	delay := p.config.RetryBaseDelay

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}

		resp, err := p.client.CreateEmbeddings(ctx, req)
		if err == nil {
			return p.vectorsFromResponse(resp, len(texts))
		}

		lastErr = err
		if !isTransient(err) {
			break
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, lastErr)
}

// vectorsFromResponse validates and normalizes the API response. The batch
// contract is all-or-nothing: a response with missing vectors fails whole.
func (p *OpenAIProvider) vectorsFromResponse(resp openai.EmbeddingResponse, want int) ([][]float32, error) {
	if len(resp.Data) != want {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmbeddingUnavailable, len(resp.Data), want)
	}

	vectors := make([][]float32, want)
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= want {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrEmbeddingUnavailable, item.Index)
		}
		v := make([]float32, len(item.Embedding))
		copy(v, item.Embedding)
		Normalize(v)
		vectors[item.Index] = v
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("%w: missing embedding for text %d", ErrEmbeddingUnavailable, i)
		}
	}
	return vectors, nil
}

// isTransient reports whether an API error is worth retrying: rate limits,
// server-side failures, and plain network errors.
func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests ||
			apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests ||
			reqErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	// Anything that never produced an HTTP status (dial/timeout) is
	// transient by nature.
	return true
}

// Dimension returns the embedding dimension based on the configured model.
func (p *OpenAIProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op for the remote provider.
func (p *OpenAIProvider) Close() error {
	return nil
}

// Ensure both variants implement Provider.
var (
	_ Provider = (*OpenAIProvider)(nil)
	_ Provider = (*FastEmbedProvider)(nil)
)
