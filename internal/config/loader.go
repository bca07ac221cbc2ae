// Package config provides configuration loading for answerd.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_HTTP_PORT, EMBEDDINGS_MODEL, ...)
//  2. YAML config file (~/.config/answerd/config.yaml)
//  3. Hardcoded defaults
//
// The configPath parameter specifies the YAML file to load. If empty, uses
// the default path ~/.config/answerd/config.yaml.
//
// # Security Considerations
//
// The file must have 0600 or 0400 permissions, live under
// ~/.config/answerd/ or /etc/answerd/, and be at most 1MB. Weaker
// permissions or paths outside the allowed directories are rejected.
//
// # Environment Variable Mapping
//
// Environment variables use underscore separator and are uppercased. The
// first underscore splits section from field:
//
//	SERVER_HTTP_PORT      -> server.http_port
//	EMBEDDINGS_API_KEY    -> embeddings.api_key
//	RETRIEVAL_MIN_SCORE   -> retrieval.min_score
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	// Defaults load first so an explicit zero in the file or environment
	// survives: min_score 0, temperature 0, and overlap 0 are all
	// meaningful settings.
	if err := k.Load(confmap.Provider(defaultSettings(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "answerd", "config.yaml")
	}

	// Validate config path (even if file doesn't exist)
	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate through the descriptor to avoid a TOCTOU
		// race between stat and read.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Override with environment variables. First underscore splits section
	// from field: EMBEDDINGS_API_KEY -> embeddings.api_key.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDerivedDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// EnsureConfigDir creates the answerd config directory if it doesn't exist.
// The directory is created with 0700 permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "answerd")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}
	return nil
}

// validateConfigPath checks if path is in allowed directories. This
// validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Resolve symlinks so a link cannot escape the allowed directories.
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// Paths that don't exist yet still get validated.
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "answerd"),
		"/etc/answerd",
	}
	if dir := os.Getenv("ANSWERD_CONFIG_DIR"); dir != "" {
		allowedDirs = append(allowedDirs, dir)
	}

	for _, dir := range allowedDirs {
		if strings.HasPrefix(resolvedPath, dir) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/answerd/ or /etc/answerd/")
}

// validateConfigFileProperties checks file permissions and size. Takes
// FileInfo from an already-opened descriptor to avoid a TOCTOU race.
func validateConfigFileProperties(info os.FileInfo) error {
	// Windows has a different permission model.
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// defaultSettings is the lowest-precedence configuration layer. Keeping it
// in koanf (rather than patching zero values after unmarshal) lets explicit
// zeros from the file or environment take effect.
func defaultSettings() map[string]interface{} {
	return map[string]interface{}{
		"server.http_port":         8000,
		"server.shutdown_timeout":  "10s",
		"logging.level":            "info",
		"logging.format":           "console",
		"embeddings.provider":      "fastembed",
		"embeddings.batch_size":    64,
		"embeddings.batch_timeout": "60s",
		"generation.model":         "gpt-4o-mini",
		"generation.max_tokens":    500,
		"generation.temperature":   0.7,
		"vectorstore.path":         "~/.config/answerd/vectorstore",
		"vectorstore.collection":   "answerd_chunks",
		"chunking.size":            1000,
		"chunking.overlap":         200,
		"retrieval.top_k":          5,
		"retrieval.min_score":      0.3,
		"documents.root":           "~/.config/answerd/documents",
	}
}

// applyDerivedDefaults fills fields whose default depends on another field.
func applyDerivedDefaults(cfg *Config) {
	if cfg.Embeddings.Model == "" {
		switch cfg.Embeddings.Provider {
		case "openai":
			cfg.Embeddings.Model = "text-embedding-3-small"
		default:
			cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
		}
	}
	if cfg.VectorStore.VectorSize == 0 {
		// bge-small-en-v1.5 dimensions; openai models override below.
		cfg.VectorStore.VectorSize = 384
		if cfg.Embeddings.Provider == "openai" {
			switch cfg.Embeddings.Model {
			case "text-embedding-3-large":
				cfg.VectorStore.VectorSize = 3072
			default:
				cfg.VectorStore.VectorSize = 1536
			}
		}
	}
}
