package embeddings

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingData struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type embeddingResponse struct {
	Object string          `json:"object"`
	Data   []embeddingData `json:"data"`
	Model  string          `json:"model"`
}

// newEmbeddingServer returns a fake OpenAI embeddings endpoint that serves
// one fixed vector per input text, after failing the first `failures`
// requests with the given status.
func newEmbeddingServer(t *testing.T, failures int, failStatus int, vector []float32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		n := calls.Add(1)
		if int(n) <= failures {
			http.Error(w, `{"error":{"message":"upstream exploded"}}`, failStatus)
			return
		}

		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := embeddingResponse{Object: "list", Model: "text-embedding-3-small"}
		for i := range req.Input {
			resp.Data = append(resp.Data, embeddingData{
				Object:    "embedding",
				Index:     i,
				Embedding: vector,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestOpenAIProvider(t *testing.T, baseURL string, maxRetries int) *OpenAIProvider {
	t.Helper()
	provider, err := NewOpenAIProvider(OpenAIConfig{
		APIKey:         "test-key",
		BaseURL:        baseURL,
		MaxRetries:     maxRetries,
		RetryBaseDelay: time.Millisecond,
	})
	require.NoError(t, err)
	return provider
}

func TestNewOpenAIProvider_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestOpenAIProvider_EmbedDocuments(t *testing.T) {
	srv, calls := newEmbeddingServer(t, 0, 0, []float32{3, 4})
	provider := newTestOpenAIProvider(t, srv.URL, 3)

	vectors, err := provider.EmbedDocuments(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, int32(1), calls.Load(), "a batch is a single API call")

	// Vectors come back L2-normalized: (3,4) -> (0.6, 0.8).
	for _, v := range vectors {
		assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
		assert.InDelta(t, 0.8, float64(v[1]), 1e-6)
	}
}

func TestOpenAIProvider_EmbedQuery(t *testing.T) {
	srv, _ := newEmbeddingServer(t, 0, 0, []float32{0, 2, 0})
	provider := newTestOpenAIProvider(t, srv.URL, 3)

	vector, err := provider.EmbedQuery(context.Background(), "what is answerd")
	require.NoError(t, err)
	require.Len(t, vector, 3)
	assert.InDelta(t, 1.0, float64(vector[1]), 1e-6)
}

func TestOpenAIProvider_RetriesTransientFailures(t *testing.T) {
	srv, calls := newEmbeddingServer(t, 2, http.StatusInternalServerError, []float32{1, 0})
	provider := newTestOpenAIProvider(t, srv.URL, 3)

	vectors, err := provider.EmbedDocuments(context.Background(), []string{"text"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, int32(3), calls.Load(), "two failures then one success")
}

func TestOpenAIProvider_ExhaustedRetries(t *testing.T) {
	srv, calls := newEmbeddingServer(t, 100, http.StatusServiceUnavailable, nil)
	provider := newTestOpenAIProvider(t, srv.URL, 2)

	_, err := provider.EmbedDocuments(context.Background(), []string{"text"})
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.Equal(t, int32(3), calls.Load(), "initial attempt plus two retries")
}

func TestOpenAIProvider_NoRetryOnClientError(t *testing.T) {
	srv, calls := newEmbeddingServer(t, 100, http.StatusUnauthorized, nil)
	provider := newTestOpenAIProvider(t, srv.URL, 3)

	_, err := provider.EmbedDocuments(context.Background(), []string{"text"})
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.Equal(t, int32(1), calls.Load(), "4xx other than 429 must not be retried")
}

func TestOpenAIProvider_RetriesRateLimit(t *testing.T) {
	srv, calls := newEmbeddingServer(t, 1, http.StatusTooManyRequests, []float32{1, 0})
	provider := newTestOpenAIProvider(t, srv.URL, 3)

	_, err := provider.EmbedDocuments(context.Background(), []string{"text"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIProvider_EmptyInput(t *testing.T) {
	provider := newTestOpenAIProvider(t, "http://127.0.0.1:0", 0)

	_, err := provider.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = provider.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestOpenAIProvider_ContextCancelDuringBackoff(t *testing.T) {
	srv, _ := newEmbeddingServer(t, 100, http.StatusInternalServerError, nil)
	provider, err := NewOpenAIProvider(OpenAIConfig{
		APIKey:         "test-key",
		BaseURL:        srv.URL,
		MaxRetries:     5,
		RetryBaseDelay: time.Hour,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err = provider.EmbedDocuments(ctx, []string{"text"})
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestOpenAIProvider_Dimension(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"", 1536},
		{"text-embedding-3-small", 1536},
		{"text-embedding-ada-002", 1536},
		{"text-embedding-3-large", 3072},
	}
	for _, tt := range tests {
		provider, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", Model: tt.model})
		require.NoError(t, err)
		assert.Equal(t, tt.want, provider.Dimension(), "model %q", tt.model)
	}
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	Normalize(v)
	assert.InDelta(t, 1.0, math.Hypot(float64(v[0]), float64(v[1])), 1e-6)

	zero := []float32{0, 0, 0}
	Normalize(zero)
	assert.Equal(t, []float32{0, 0, 0}, zero)
}

func TestNewProvider_UnknownKind(t *testing.T) {
	_, err := NewProvider(ProviderConfig{Provider: "carrier-pigeon"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewProvider_OpenAI(t *testing.T) {
	provider, err := NewProvider(ProviderConfig{Provider: "openai", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, 1536, provider.Dimension())
	assert.NoError(t, provider.Close())
}
