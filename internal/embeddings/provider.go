// Package embeddings provides embedding generation via multiple providers.
//
// Two variants exist behind the Provider interface: a local in-process ONNX
// model (FastEmbed) and a remote OpenAI-compatible API. Both return vectors
// of a fixed dimension for a given configuration, L2-normalized so that
// cosine similarity reduces to a dot product. Callers never need to know
// which variant is active.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingUnavailable indicates the embedding backend cannot produce
	// vectors: the local model failed to load, or the remote backend
	// exhausted its retries. A batch is never partially embedded; the whole
	// call fails with this kind.
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")
)

// Provider is the interface for embedding providers.
type Provider interface {
	// EmbedDocuments generates embeddings for multiple texts. The result has
	// one vector per input text; on any failure the whole batch fails.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query. Some models
	// optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding dimension for the current model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is the provider type: "fastembed" (local, default) or
	// "openai" (remote API).
	Provider string

	// Model is the embedding model name.
	Model string

	// APIKey authenticates against the remote API (openai provider only).
	APIKey string

	// BaseURL overrides the remote API endpoint, for OpenAI-compatible
	// servers (openai provider only).
	BaseURL string

	// CacheDir is the model cache directory (fastembed provider only).
	CacheDir string
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "fastembed", "":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q (supported: fastembed, openai)", ErrInvalidConfig, cfg.Provider)
	}
}

// Normalize L2-normalizes v in place. Zero vectors are left untouched.
// Normalized vectors make cosine similarity a plain dot product.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
