// Package retriever turns a natural-language question into the ranked
// passages most relevant to it. It embeds the query, searches the vector
// store, and applies the relevance threshold; whether anything survived the
// threshold is the single signal downstream answer synthesis keys off.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/answerd/internal/embeddings"
	"github.com/fyrsmithlabs/answerd/internal/vectorstore"
)

var (
	// ErrEmptyQuery indicates a blank question.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrInvalidConfig indicates invalid retrieval configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config holds retrieval tuning.
type Config struct {
	// TopK is the maximum number of passages returned. Default: 5.
	TopK int

	// MinScore is the cosine-similarity threshold a passage must meet.
	// Zero is a valid threshold and is used as given; the daemon-level
	// default of 0.3 comes from the config layer.
	MinScore float32
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.TopK == 0 {
		c.TopK = 5
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.TopK < 1 {
		return fmt.Errorf("%w: top_k must be at least 1, got %d", ErrInvalidConfig, c.TopK)
	}
	if c.MinScore < -1 || c.MinScore > 1 {
		return fmt.Errorf("%w: min_score must be within [-1, 1], got %v", ErrInvalidConfig, c.MinScore)
	}
	return nil
}

// Result is the outcome of one retrieval.
type Result struct {
	// Chunks are the surviving passages, best first. Ties keep insertion
	// order.
	Chunks []vectorstore.ScoredChunk

	// Found reports whether any passage met the threshold. It is derived
	// from Chunks and nothing else.
	Found bool
}

// Retriever embeds queries and searches the vector store.
type Retriever struct {
	provider embeddings.Provider
	store    vectorstore.Store
	config   Config
	logger   *zap.Logger
}

// New creates a Retriever. A nil logger falls back to a no-op logger.
func New(provider embeddings.Provider, store vectorstore.Store, cfg Config, logger *zap.Logger) (*Retriever, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: embedding provider is required", ErrInvalidConfig)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: vector store is required", ErrInvalidConfig)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		provider: provider,
		store:    store,
		config:   cfg,
		logger:   logger,
	}, nil
}

// Retrieve returns the passages most relevant to query.
//
// An empty knowledge base or a query nothing matches is not an error: the
// result simply reports Found=false with no chunks.
func (r *Retriever) Retrieve(ctx context.Context, query string) (Result, error) {
	start := time.Now()

	if strings.TrimSpace(query) == "" {
		return Result{}, ErrEmptyQuery
	}

	vector, err := r.provider.EmbedQuery(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("embedding query: %w", err)
	}

	chunks, err := r.store.Query(ctx, vector, r.config.TopK, r.config.MinScore)
	if err != nil {
		return Result{}, fmt.Errorf("searching vector store: %w", err)
	}

	observeRetrieval(start, len(chunks))

	r.logger.Debug("retrieval complete",
		zap.Int("results", len(chunks)),
		zap.Int("top_k", r.config.TopK),
		zap.Float32("min_score", r.config.MinScore),
		zap.Duration("duration", time.Since(start)))

	return Result{Chunks: chunks, Found: len(chunks) > 0}, nil
}
