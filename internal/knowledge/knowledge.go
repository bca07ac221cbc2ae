// Package knowledge orchestrates the knowledge base: fetching documents,
// chunking and embedding them into the vector store, and answering
// questions over what is indexed.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/answerd/internal/answer"
	"github.com/fyrsmithlabs/answerd/internal/chunker"
	"github.com/fyrsmithlabs/answerd/internal/embeddings"
	"github.com/fyrsmithlabs/answerd/internal/retriever"
	"github.com/fyrsmithlabs/answerd/internal/vectorstore"
)

var (
	// ErrNotFound indicates the fetcher has no document with the given id.
	ErrNotFound = errors.New("document not found")

	// ErrAccessDenied indicates the caller may not read the document.
	ErrAccessDenied = errors.New("access to document denied")

	// ErrInvalidConfig indicates invalid manager configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoDocumentIDs indicates an add request without document ids.
	ErrNoDocumentIDs = errors.New("no document ids given")
)

// Document is a fetched document ready for indexing.
type Document struct {
	ID   string
	Name string
	Text string
}

// DocumentFetcher resolves document ids to content. Implementations wrap
// whatever holds the documents (an upstream service, a directory, a test
// fixture) and report ErrNotFound / ErrAccessDenied as appropriate.
type DocumentFetcher interface {
	Fetch(ctx context.Context, documentID string) (Document, error)
}

// DocumentError records why one document failed to index.
type DocumentError struct {
	DocumentID string `json:"document_id"`
	Error      string `json:"error"`
}

// AddResult summarizes one AddDocuments call.
type AddResult struct {
	// Added counts documents fully indexed.
	Added int `json:"added"`

	// ChunksIndexed counts chunks written across all added documents.
	ChunksIndexed int `json:"chunks_indexed"`

	// Errors lists documents that failed, in request order. A failed
	// document leaves no partial chunks behind.
	Errors []DocumentError `json:"errors,omitempty"`
}

// Config holds manager tuning.
type Config struct {
	// ChunkSize is the chunk window in characters. Default: 1000.
	ChunkSize int

	// ChunkOverlap is the overlap between consecutive chunks. Zero overlap
	// is valid and used as given; the daemon-level default of 200 comes
	// from the config layer.
	ChunkOverlap int

	// EmbedBatchSize bounds texts per embedding call. Default: 64.
	EmbedBatchSize int

	// EmbedBatchTimeout bounds each embedding call. Default: 60s.
	EmbedBatchTimeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = 1000
	}
	if c.EmbedBatchSize == 0 {
		c.EmbedBatchSize = 64
	}
	if c.EmbedBatchTimeout == 0 {
		c.EmbedBatchTimeout = 60 * time.Second
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got %d", ErrInvalidConfig, c.ChunkOverlap)
	}
	if c.EmbedBatchSize < 1 {
		return fmt.Errorf("%w: embed_batch_size must be positive, got %d", ErrInvalidConfig, c.EmbedBatchSize)
	}
	return nil
}

// Manager owns the knowledge-base lifecycle. Writes (AddDocuments, Clear)
// are serialized at the store; reads run concurrently against it.
type Manager struct {
	fetcher     DocumentFetcher
	provider    embeddings.Provider
	store       vectorstore.Store
	retriever   *retriever.Retriever
	synthesizer *answer.Synthesizer
	config      Config
	logger      *zap.Logger

	// Serializes whole add/clear operations so clear_first and multi-doc
	// adds do not interleave.
	writeMu sync.Mutex
}

// New creates a Manager. A nil logger falls back to a no-op logger.
func New(fetcher DocumentFetcher, provider embeddings.Provider, store vectorstore.Store, ret *retriever.Retriever, synth *answer.Synthesizer, cfg Config, logger *zap.Logger) (*Manager, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("%w: document fetcher is required", ErrInvalidConfig)
	}
	if provider == nil {
		return nil, fmt.Errorf("%w: embedding provider is required", ErrInvalidConfig)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: vector store is required", ErrInvalidConfig)
	}
	if ret == nil {
		return nil, fmt.Errorf("%w: retriever is required", ErrInvalidConfig)
	}
	if synth == nil {
		return nil, fmt.Errorf("%w: answer synthesizer is required", ErrInvalidConfig)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		fetcher:     fetcher,
		provider:    provider,
		store:       store,
		retriever:   ret,
		synthesizer: synth,
		config:      cfg,
		logger:      logger,
	}, nil
}

// AddDocuments fetches, chunks, embeds, and indexes the given documents.
//
// Each document succeeds or fails as a whole; failures are collected per
// document and the rest of the batch proceeds. With clearFirst the existing
// index is dropped before anything is added.
func (m *Manager) AddDocuments(ctx context.Context, documentIDs []string, clearFirst bool) (AddResult, error) {
	if len(documentIDs) == 0 {
		return AddResult{}, ErrNoDocumentIDs
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if clearFirst {
		if err := m.store.Clear(ctx); err != nil {
			return AddResult{}, fmt.Errorf("clearing knowledge base: %w", err)
		}
	}

	var result AddResult
	for _, id := range documentIDs {
		chunksAdded, err := m.addOne(ctx, id)
		if err != nil {
			m.logger.Warn("document failed to index",
				zap.String("document_id", id),
				zap.Error(err))
			result.Errors = append(result.Errors, DocumentError{DocumentID: id, Error: err.Error()})
			continue
		}
		// Blank documents contribute nothing and are not counted.
		if chunksAdded == 0 {
			continue
		}
		result.Added++
		result.ChunksIndexed += chunksAdded
	}

	m.logger.Info("knowledge base updated",
		zap.Int("added", result.Added),
		zap.Int("chunks", result.ChunksIndexed),
		zap.Int("failed", len(result.Errors)),
		zap.Bool("cleared_first", clearFirst))

	return result, nil
}

// addOne indexes a single document end to end. Upsert at the store is
// atomic, so any failure before it leaves the previous version intact.
func (m *Manager) addOne(ctx context.Context, documentID string) (int, error) {
	doc, err := m.fetcher.Fetch(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("fetching: %w", err)
	}

	segments, err := chunker.Split(doc.Text, m.config.ChunkSize, m.config.ChunkOverlap)
	if err != nil {
		return 0, fmt.Errorf("chunking: %w", err)
	}
	if len(segments) == 0 {
		// Whitespace-only content is a no-op, not an error. An earlier
		// version stays searchable until the document is deleted explicitly.
		m.logger.Info("document has no indexable text, skipping",
			zap.String("document_id", documentID))
		return 0, nil
	}

	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}

	vectors, err := m.embedBatched(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding: %w", err)
	}

	chunks := make([]vectorstore.Chunk, len(segments))
	for i, seg := range segments {
		chunks[i] = vectorstore.Chunk{
			ID:           vectorstore.ChunkID(doc.ID, i),
			DocumentID:   doc.ID,
			DocumentName: doc.Name,
			Index:        i,
			Text:         seg.Text,
			CharStart:    seg.Start,
			CharEnd:      seg.End,
			Embedding:    vectors[i],
		}
	}

	if err := m.store.Upsert(ctx, doc.ID, doc.Name, chunks); err != nil {
		return 0, fmt.Errorf("indexing: %w", err)
	}
	return len(chunks), nil
}

// embedBatched embeds texts in bounded batches, each under its own timeout.
// A failed batch fails the whole document.
func (m *Manager) embedBatched(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += m.config.EmbedBatchSize {
		end := start + m.config.EmbedBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batchCtx, cancel := context.WithTimeout(ctx, m.config.EmbedBatchTimeout)
		batch, err := m.provider.EmbedDocuments(batchCtx, texts[start:end])
		cancel()
		if err != nil {
			return nil, fmt.Errorf("batch [%d:%d]: %w", start, end, err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// DeleteDocument removes one document from the index. Absent documents are
// a no-op.
func (m *Manager) DeleteDocument(ctx context.Context, documentID string) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.store.DeleteDocument(ctx, documentID)
}

// Clear drops the entire knowledge base.
func (m *Manager) Clear(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.store.Clear(ctx)
}

// ListDocuments returns what is currently indexed.
func (m *Manager) ListDocuments(ctx context.Context) ([]vectorstore.DocumentSummary, error) {
	return m.store.ListDocuments(ctx)
}

// Ask answers a question over the indexed documents: retrieval followed by
// synthesis. An empty knowledge base produces a not-found answer, not an
// error.
func (m *Manager) Ask(ctx context.Context, query string) (answer.Answer, error) {
	retrieval, err := m.retriever.Retrieve(ctx, query)
	if err != nil {
		return answer.Answer{}, err
	}
	return m.synthesizer.Synthesize(ctx, query, retrieval)
}
