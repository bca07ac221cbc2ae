package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig drops a config file into a temp dir that is whitelisted for
// loading via ANSWERD_CONFIG_DIR.
func writeConfig(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ANSWERD_CONFIG_DIR", dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	return path
}

func TestLoadWithFile_Defaults(t *testing.T) {
	path := writeConfig(t, "", 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "fastembed", cfg.Embeddings.Provider)
	assert.Equal(t, "BAAI/bge-small-en-v1.5", cfg.Embeddings.Model)
	assert.Equal(t, 64, cfg.Embeddings.BatchSize)
	assert.Equal(t, "answerd_chunks", cfg.VectorStore.Collection)
	assert.Equal(t, 384, cfg.VectorStore.VectorSize)
	assert.Equal(t, 1000, cfg.Chunking.Size)
	assert.Equal(t, 200, cfg.Chunking.Overlap)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, float32(0.3), cfg.Retrieval.MinScore)
	assert.Equal(t, "~/.config/answerd/documents", cfg.Documents.Root)
}

func TestLoadWithFile_YAMLValues(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 9001
logging:
  level: debug
  format: json
embeddings:
  provider: openai
  api_key: sk-test
retrieval:
  top_k: 3
  min_score: 0.5
`, 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "openai", cfg.Embeddings.Provider)
	assert.Equal(t, "sk-test", cfg.Embeddings.APIKey.Value())
	assert.Equal(t, "text-embedding-3-small", cfg.Embeddings.Model, "provider-specific model default")
	assert.Equal(t, 1536, cfg.VectorStore.VectorSize, "vector size follows the openai model")
	assert.Equal(t, 3, cfg.Retrieval.TopK)
}

func TestLoadWithFile_ExplicitZerosPreserved(t *testing.T) {
	path := writeConfig(t, `
generation:
  temperature: 0
retrieval:
  min_score: 0
chunking:
  overlap: 0
`, 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, float32(0), cfg.Generation.Temperature)
	assert.Equal(t, float32(0), cfg.Retrieval.MinScore)
	assert.Equal(t, 0, cfg.Chunking.Overlap)
}

func TestLoadWithFile_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  http_port: 9001\n", 0600)
	t.Setenv("SERVER_HTTP_PORT", "9002")
	t.Setenv("RETRIEVAL_TOP_K", "7")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9002, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Retrieval.TopK)
}

func TestLoadWithFile_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ANSWERD_CONFIG_DIR", dir)

	cfg, err := LoadWithFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoadWithFile_RejectsWeakPermissions(t *testing.T) {
	path := writeConfig(t, "server:\n  http_port: 9001\n", 0644)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permissions")
}

func TestLoadWithFile_RejectsPathOutsideAllowedDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0600))

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file must be in")
}

func TestLoadWithFile_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{"bad port", "server:\n  http_port: 70000\n", "invalid server port"},
		{"bad level", "logging:\n  level: loud\n", "invalid log level"},
		{"bad provider", "embeddings:\n  provider: tarot\n", "invalid embeddings provider"},
		{"openai without key", "embeddings:\n  provider: openai\n", "api_key is required"},
		{"overlap too large", "chunking:\n  size: 100\n  overlap: 100\n", "chunk overlap"},
		{"min_score out of range", "retrieval:\n  min_score: 2\n", "min_score"},
		{"generation without key", "generation:\n  enabled: true\n", "generation.api_key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml, 0600)
			_, err := LoadWithFile(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("sk-very-secret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%s", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "sk-very-secret", s.Value())
	assert.True(t, s.IsSet())

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `"[REDACTED]"`, string(data))

	var empty Secret
	assert.Equal(t, "", empty.String())
	assert.False(t, empty.IsSet())
}
