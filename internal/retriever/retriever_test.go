package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/answerd/internal/embeddings"
	"github.com/fyrsmithlabs/answerd/internal/vectorstore"
)

type fakeProvider struct {
	vector []float32
	err    error
}

func (f *fakeProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func (f *fakeProvider) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func (f *fakeProvider) Dimension() int { return len(f.vector) }
func (f *fakeProvider) Close() error   { return nil }

type fakeStore struct {
	results    []vectorstore.ScoredChunk
	err        error
	lastK      int
	lastScore  float32
	lastVector []float32
}

func (f *fakeStore) Upsert(context.Context, string, string, []vectorstore.Chunk) error { return nil }
func (f *fakeStore) DeleteDocument(context.Context, string) error                      { return nil }
func (f *fakeStore) Clear(context.Context) error                                       { return nil }

func (f *fakeStore) Query(_ context.Context, vector []float32, k int, minScore float32) ([]vectorstore.ScoredChunk, error) {
	f.lastVector = vector
	f.lastK = k
	f.lastScore = minScore
	return f.results, f.err
}

func (f *fakeStore) ListDocuments(context.Context) ([]vectorstore.DocumentSummary, error) {
	return nil, nil
}
func (f *fakeStore) Close() error { return nil }

func scored(docID string, index int, score float32) vectorstore.ScoredChunk {
	return vectorstore.ScoredChunk{
		Chunk: vectorstore.Chunk{
			ID:         vectorstore.ChunkID(docID, index),
			DocumentID: docID,
			Index:      index,
		},
		Score: score,
	}
}

func TestNew_Validation(t *testing.T) {
	provider := &fakeProvider{vector: []float32{1}}
	store := &fakeStore{}

	t.Run("nil provider", func(t *testing.T) {
		_, err := New(nil, store, Config{}, nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("nil store", func(t *testing.T) {
		_, err := New(provider, nil, Config{}, nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("negative top_k", func(t *testing.T) {
		_, err := New(provider, store, Config{TopK: -1}, nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("min_score out of range", func(t *testing.T) {
		_, err := New(provider, store, Config{MinScore: 1.5}, nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestRetriever_Retrieve(t *testing.T) {
	store := &fakeStore{results: []vectorstore.ScoredChunk{
		scored("doc-a", 0, 0.9),
		scored("doc-b", 2, 0.5),
	}}
	r, err := New(&fakeProvider{vector: []float32{1, 0}}, store, Config{TopK: 7, MinScore: 0.4}, zap.NewNop())
	require.NoError(t, err)

	result, err := r.Retrieve(context.Background(), "what is this about?")
	require.NoError(t, err)

	assert.True(t, result.Found)
	require.Len(t, result.Chunks, 2)
	assert.Equal(t, "doc-a_0", result.Chunks[0].Chunk.ID)

	// Config flows through to the store unchanged.
	assert.Equal(t, 7, store.lastK)
	assert.Equal(t, float32(0.4), store.lastScore)
	assert.Equal(t, []float32{1, 0}, store.lastVector)
}

func TestRetriever_NoMatches(t *testing.T) {
	r, err := New(&fakeProvider{vector: []float32{1}}, &fakeStore{}, Config{}, nil)
	require.NoError(t, err)

	result, err := r.Retrieve(context.Background(), "unanswerable")
	require.NoError(t, err)
	assert.False(t, result.Found)
	assert.Empty(t, result.Chunks)
}

func TestRetriever_EmptyQuery(t *testing.T) {
	r, err := New(&fakeProvider{vector: []float32{1}}, &fakeStore{}, Config{}, nil)
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "   \n\t")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestRetriever_EmbeddingFailure(t *testing.T) {
	provider := &fakeProvider{err: embeddings.ErrEmbeddingUnavailable}
	r, err := New(provider, &fakeStore{}, Config{}, nil)
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "question")
	assert.ErrorIs(t, err, embeddings.ErrEmbeddingUnavailable)
}

func TestRetriever_StoreFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("store corrupted")}
	r, err := New(&fakeProvider{vector: []float32{1}}, store, Config{}, nil)
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "question")
	assert.Error(t, err)
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, float32(0), cfg.MinScore, "zero threshold is a valid setting, not an unset field")
}

func TestRetriever_ZeroThresholdFlowsThrough(t *testing.T) {
	store := &fakeStore{results: []vectorstore.ScoredChunk{scored("doc-a", 0, 0.01)}}
	r, err := New(&fakeProvider{vector: []float32{1}}, store, Config{TopK: 3, MinScore: 0}, nil)
	require.NoError(t, err)

	result, err := r.Retrieve(context.Background(), "anything")
	require.NoError(t, err)

	assert.Equal(t, float32(0), store.lastScore)
	assert.True(t, result.Found)
}
