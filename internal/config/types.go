package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Secret wraps strings that should be redacted in logs and serialization.
// Use Value() to access the actual secret value.
type Secret string

// String implements fmt.Stringer. Always returns redacted value.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting.
func (s Secret) GoString() string {
	return "Secret([REDACTED])"
}

// Value returns the actual secret value. Use sparingly.
func (s Secret) Value() string {
	return string(s)
}

// IsSet returns true if the secret has a non-empty value.
func (s Secret) IsSet() bool {
	return s != ""
}

// MarshalJSON implements json.Marshaler. Always returns redacted value.
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("[REDACTED]")
}

// MarshalText implements encoding.TextMarshaler. Always returns redacted value.
func (s Secret) MarshalText() ([]byte, error) {
	if s == "" {
		return []byte(""), nil
	}
	return []byte("[REDACTED]"), nil
}

// Config holds the complete answerd configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Generation  GenerationConfig  `koanf:"generation"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Chunking    ChunkingConfig    `koanf:"chunking"`
	Retrieval   RetrievalConfig   `koanf:"retrieval"`
	Documents   DocumentsConfig   `koanf:"documents"`
}

// DocumentsConfig holds the document source configuration.
type DocumentsConfig struct {
	// Root is the directory documents are fetched from. Document ids are
	// paths relative to it.
	Root string `koanf:"root"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // console or json
}

// EmbeddingsConfig holds embedding provider configuration.
type EmbeddingsConfig struct {
	Provider       string        `koanf:"provider"` // fastembed (default) or openai
	Model          string        `koanf:"model"`
	APIKey         Secret        `koanf:"api_key"`
	BaseURL        string        `koanf:"base_url"`
	CacheDir       string        `koanf:"cache_dir"`
	BatchSize      int           `koanf:"batch_size"`
	BatchTimeout   time.Duration `koanf:"batch_timeout"`
}

// GenerationConfig holds answer-generation configuration. Generation is
// optional: with Enabled false answers are extractive.
type GenerationConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Model       string  `koanf:"model"`
	APIKey      Secret  `koanf:"api_key"`
	BaseURL     string  `koanf:"base_url"`
	MaxTokens   int     `koanf:"max_tokens"`
	Temperature float32 `koanf:"temperature"`
}

// VectorStoreConfig holds the persistent index configuration.
type VectorStoreConfig struct {
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	VectorSize int    `koanf:"vector_size"`
	Compress   bool   `koanf:"compress"`
}

// ChunkingConfig holds document chunking configuration.
type ChunkingConfig struct {
	Size    int `koanf:"size"`
	Overlap int `koanf:"overlap"`
}

// RetrievalConfig holds retrieval tuning.
type RetrievalConfig struct {
	TopK     int     `koanf:"top_k"`
	MinScore float32 `koanf:"min_score"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %v", c.Server.ShutdownTimeout)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format: %q (must be console or json)", c.Logging.Format)
	}

	switch c.Embeddings.Provider {
	case "fastembed", "openai":
	default:
		return fmt.Errorf("invalid embeddings provider: %q (must be fastembed or openai)", c.Embeddings.Provider)
	}
	if c.Embeddings.Provider == "openai" && !c.Embeddings.APIKey.IsSet() {
		return fmt.Errorf("embeddings.api_key is required for the openai provider")
	}
	if c.Embeddings.BatchSize < 1 {
		return fmt.Errorf("embeddings batch size must be positive, got %d", c.Embeddings.BatchSize)
	}

	if c.Generation.Enabled && !c.Generation.APIKey.IsSet() {
		return fmt.Errorf("generation.api_key is required when generation is enabled")
	}

	if c.VectorStore.VectorSize < 1 {
		return fmt.Errorf("vector size must be positive, got %d", c.VectorStore.VectorSize)
	}

	if c.Chunking.Size < 1 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunk overlap must be in [0, chunk size), got %d", c.Chunking.Overlap)
	}

	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("retrieval top_k must be at least 1, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.MinScore < -1 || c.Retrieval.MinScore > 1 {
		return fmt.Errorf("retrieval min_score must be within [-1, 1], got %v", c.Retrieval.MinScore)
	}

	return nil
}
