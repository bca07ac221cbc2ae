package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/answerd/internal/answer"
	"github.com/fyrsmithlabs/answerd/internal/config"
	"github.com/fyrsmithlabs/answerd/internal/knowledge"
	"github.com/fyrsmithlabs/answerd/internal/retriever"
	"github.com/fyrsmithlabs/answerd/internal/vectorstore"
)

type axisProvider struct{}

func (axisProvider) vectorFor(text string) []float32 {
	switch {
	case strings.Contains(strings.ToLower(text), "kubernetes"):
		return []float32{1, 0, 0}
	case strings.Contains(strings.ToLower(text), "terraform"):
		return []float32{0, 1, 0}
	default:
		return []float32{0, 0, 1}
	}
}

func (p axisProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vectorFor(t)
	}
	return out, nil
}

func (p axisProvider) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return p.vectorFor(text), nil
}

func (axisProvider) Dimension() int { return 3 }
func (axisProvider) Close() error   { return nil }

type staticFetcher map[string]knowledge.Document

func (f staticFetcher) Fetch(_ context.Context, id string) (knowledge.Document, error) {
	doc, ok := f[id]
	if !ok {
		return knowledge.Document{}, knowledge.ErrNotFound
	}
	return doc, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	provider := axisProvider{}
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:       t.TempDir(),
		VectorSize: 3,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ret, err := retriever.New(provider, store, retriever.Config{TopK: 5, MinScore: 0.5}, nil)
	require.NoError(t, err)

	synth, err := answer.New(nil, answer.Config{}, nil)
	require.NoError(t, err)

	fetcher := staticFetcher{
		"doc-k8s": {ID: "doc-k8s", Name: "Kubernetes Runbook", Text: "kubernetes restart procedures"},
		"doc-tf":  {ID: "doc-tf", Name: "Terraform Guide", Text: "terraform module layout"},
	}

	kb, err := knowledge.New(fetcher, provider, store, ret, synth, knowledge.Config{}, zap.NewNop())
	require.NoError(t, err)

	return NewServer(config.ServerConfig{Port: 8000, ShutdownTimeout: time.Second}, kb, zap.NewNop())
}

func doJSON(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echoHeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

const echoHeaderContentType = "Content-Type"

func TestServer_Health(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "answerd", resp.Service)
}

func TestServer_AddDocuments(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/knowledge-base/add",
		`{"document_ids": ["doc-k8s", "doc-missing"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result knowledge.AddResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Added)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "doc-missing", result.Errors[0].DocumentID)
}

func TestServer_AddDocuments_EmptyRequest(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/knowledge-base/add", `{"document_ids": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_AddDocuments_ClearFirst(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/knowledge-base/add", `{"document_ids": ["doc-k8s"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/knowledge-base/add?clear_first=true",
		`{"document_ids": ["doc-tf"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/knowledge-base/documents", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var docs DocumentsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	require.Equal(t, 1, docs.Count)
	assert.Equal(t, "doc-tf", docs.Documents[0].DocumentID)
}

func TestServer_ListDocumentsEmpty(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/knowledge-base/documents", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var docs DocumentsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	assert.Equal(t, 0, docs.Count)
	assert.NotNil(t, docs.Documents, "documents is an empty array, not null")
}

func TestServer_Clear(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/knowledge-base/add", `{"document_ids": ["doc-k8s"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodDelete, "/api/knowledge-base/clear", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/knowledge-base/documents", "")
	var docs DocumentsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	assert.Equal(t, 0, docs.Count)
}

func TestServer_Chat(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/knowledge-base/add",
		`{"document_ids": ["doc-k8s", "doc-tf"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("matched", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/chat", `{"query": "how do I restart kubernetes?"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp ChatResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.FoundInDocuments)
		require.NotEmpty(t, resp.Sources)
		assert.Equal(t, "doc-k8s", resp.Sources[0].DocumentID)
		assert.NotEmpty(t, resp.ConversationID, "conversation id is minted when absent")
	})

	t.Run("conversation id preserved", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/chat",
			`{"query": "kubernetes again", "conversation_id": "conv-42"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp ChatResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "conv-42", resp.ConversationID)
	})

	t.Run("nothing relevant", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/chat", `{"query": "ancient roman history"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp ChatResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.FoundInDocuments)
		assert.Empty(t, resp.Sources)
		assert.Contains(t, resp.Response, "couldn't find")
	})

	t.Run("empty query", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/chat", `{"query": "  "}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_MetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	// Generate at least one instrumented request first.
	doJSON(t, s, http.MethodGet, "/health", "")

	rec := doJSON(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "answerd_http_requests_total")
}

func TestServer_GracefulShutdown(t *testing.T) {
	s := newTestServer(t)
	s.config.Port = 0 // ephemeral port

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
