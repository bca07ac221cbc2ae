package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ChromemConfig holds configuration for the chromem-go embedded vector
// database.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.config/answerd/vectorstore"
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collection is the collection name holding all chunks.
	// Default: "answerd_chunks"
	Collection string

	// VectorSize is the expected embedding dimension. Must match the
	// embedder's output dimension. Default: 384 (bge-small-en-v1.5).
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/answerd/vectorstore"
	}
	if c.Collection == "" {
		c.Collection = "answerd_chunks"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements the Store interface using chromem-go.
//
// chromem-go is an embeddable vector database with zero third-party
// dependencies: pure Go, no external service, automatic persistence to gob
// files. Similarity is exact cosine over normalized vectors, which is the
// reference algorithm at this scale (thousands of chunks).
//
// chromem-go does not expose per-document bookkeeping, so the store keeps a
// JSON manifest alongside the database recording which documents are indexed
// and the insertion sequence of every chunk. The manifest is what makes
// ListDocuments, stable tie-breaking, and restart recovery possible.
type ChromemStore struct {
	db     *chromem.DB
	coll   *chromem.Collection
	config ChromemConfig
	logger *zap.Logger

	// mu serializes writes; reads take the read lock so a query never
	// observes a half-replaced document.
	mu           sync.RWMutex
	man          *manifest
	manifestPath string
}

// NewChromemStore creates a new ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	expandedPath, err := expandChromemPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}

	if err := os.MkdirAll(expandedPath, 0700); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := chromem.NewPersistentDB(expandedPath, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: creating chromem DB: %v", ErrStoreUnavailable, err)
	}

	// Must pass an embedding function, not nil: chromem-go falls back to its
	// OpenAI default embedder when nil is passed for persisted collections.
	// All chunks arrive with precomputed embeddings and queries go through
	// QueryEmbedding, so this function must never run.
	coll, err := db.GetOrCreateCollection(config.Collection, nil, rejectEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("%w: creating collection %s: %v", ErrStoreUnavailable, config.Collection, err)
	}

	manifestPath := filepath.Join(expandedPath, "manifest.json")
	man, err := loadManifest(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	store := &ChromemStore{
		db:           db,
		coll:         coll,
		config:       config,
		logger:       logger,
		man:          man,
		manifestPath: manifestPath,
	}

	if got := coll.Count(); got != store.totalChunks() {
		if len(man.Documents) == 0 && got > 0 {
			// An empty manifest over a populated collection means a clear
			// was interrupted after the manifest was written. The manifest
			// is the source of truth; finish dropping the collection.
			if err := db.DeleteCollection(config.Collection); err != nil {
				return nil, fmt.Errorf("%w: dropping stale collection: %v", ErrStoreUnavailable, err)
			}
			coll, err = db.GetOrCreateCollection(config.Collection, nil, rejectEmbeddingFunc)
			if err != nil {
				return nil, fmt.Errorf("%w: recreating collection %s: %v", ErrStoreUnavailable, config.Collection, err)
			}
			store.coll = coll
			logger.Info("finished interrupted clear", zap.Int("dropped_chunks", got))
		} else {
			logger.Warn("chunk count differs from manifest",
				zap.Int("collection_count", got),
				zap.Int("manifest_count", store.totalChunks()),
			)
		}
	}

	logger.Info("chromem store initialized",
		zap.String("path", expandedPath),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize),
		zap.String("collection", config.Collection),
		zap.Int("documents", len(man.Documents)),
	)

	return store, nil
}

// rejectEmbeddingFunc is installed as the collection's embedding function so
// chromem-go never embeds on our behalf.
func rejectEmbeddingFunc(context.Context, string) ([]float32, error) {
	return nil, errors.New("chunks carry precomputed embeddings")
}

// expandChromemPath expands ~ to home directory.
func expandChromemPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func (s *ChromemStore) totalChunks() int {
	n := 0
	for _, entry := range s.man.Documents {
		n += entry.Count
	}
	return n
}

// Upsert atomically replaces all chunks for docID. The prior chunk set is
// snapshotted first so a failed insert can be rolled back to the
// last-committed state.
func (s *ChromemStore) Upsert(ctx context.Context, docID, docName string, chunks []Chunk) error {
	if docID == "" {
		return fmt.Errorf("%w: document ID required", ErrInvalidConfig)
	}
	if len(chunks) == 0 {
		return ErrEmptyChunks
	}

	docs := make([]chromem.Document, len(chunks))
	for i, chunk := range chunks {
		if chunk.Index != i {
			return fmt.Errorf("chunk at position %d has index %d; chunks must be ordered by index", i, chunk.Index)
		}
		if len(chunk.Embedding) != s.config.VectorSize {
			return fmt.Errorf("%w: chunk %d has dimension %d, want %d",
				ErrDimensionMismatch, i, len(chunk.Embedding), s.config.VectorSize)
		}
		docs[i] = chromem.Document{
			ID:        ChunkID(docID, i),
			Content:   chunk.Text,
			Embedding: chunk.Embedding,
			Metadata: map[string]string{
				"document_id":   docID,
				"document_name": docName,
				"chunk_index":   strconv.Itoa(i),
				"char_start":    strconv.Itoa(chunk.CharStart),
				"char_end":      strconv.Itoa(chunk.CharEnd),
			},
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Snapshot the previous version for rollback.
	var previous []chromem.Document
	for _, id := range s.man.chunkIDs(docID) {
		doc, err := s.coll.GetByID(ctx, id)
		if err != nil {
			s.logger.Warn("indexed chunk missing from collection",
				zap.String("chunk_id", id), zap.Error(err))
			continue
		}
		previous = append(previous, doc)
	}

	if err := s.deleteDocumentChunks(ctx, docID); err != nil {
		return err
	}

	if err := s.coll.AddDocuments(ctx, docs, 1); err != nil {
		s.rollback(ctx, docID, previous)
		return fmt.Errorf("%w: adding chunks for %s: %v", ErrStoreUnavailable, docID, err)
	}

	prevEntry, hadEntry := s.man.Documents[docID]
	s.man.Documents[docID] = &manifestEntry{
		Name:  docName,
		Base:  s.man.NextSeq,
		Count: len(chunks),
	}
	s.man.NextSeq += uint64(len(chunks))

	if err := s.man.save(s.manifestPath); err != nil {
		// Revert both the collection and the in-memory index.
		if hadEntry {
			s.man.Documents[docID] = prevEntry
		} else {
			delete(s.man.Documents, docID)
		}
		s.man.NextSeq -= uint64(len(chunks))
		s.rollback(ctx, docID, previous)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.logger.Debug("upserted document",
		zap.String("document_id", docID),
		zap.String("document_name", docName),
		zap.Int("chunks", len(chunks)),
		zap.Int("replaced_chunks", len(previous)),
	)

	return nil
}

// deleteDocumentChunks removes every chunk of docID from the collection.
func (s *ChromemStore) deleteDocumentChunks(ctx context.Context, docID string) error {
	if s.coll.Count() == 0 {
		return nil
	}
	where := map[string]string{"document_id": docID}
	if err := s.coll.Delete(ctx, where, nil); err != nil {
		return fmt.Errorf("%w: deleting chunks for %s: %v", ErrStoreUnavailable, docID, err)
	}
	return nil
}

// rollback restores the previous chunk set of docID after a failed replace.
func (s *ChromemStore) rollback(ctx context.Context, docID string, previous []chromem.Document) {
	if err := s.deleteDocumentChunks(ctx, docID); err != nil {
		s.logger.Error("rollback: failed to remove partial chunks",
			zap.String("document_id", docID), zap.Error(err))
		return
	}
	if len(previous) == 0 {
		return
	}
	if err := s.coll.AddDocuments(ctx, previous, 1); err != nil {
		s.logger.Error("rollback: failed to restore previous chunks",
			zap.String("document_id", docID), zap.Error(err))
	}
}

// DeleteDocument removes all chunks for docID; no-op if absent.
func (s *ChromemStore) DeleteDocument(ctx context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.man.Documents[docID]
	if !ok {
		return nil
	}

	if err := s.deleteDocumentChunks(ctx, docID); err != nil {
		return err
	}

	delete(s.man.Documents, docID)
	if err := s.man.save(s.manifestPath); err != nil {
		s.man.Documents[docID] = entry
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.logger.Debug("deleted document",
		zap.String("document_id", docID),
		zap.Int("chunks", entry.Count),
	)

	return nil
}

// Clear removes every chunk and resets the manifest, leaving the store as if
// freshly initialized.
//
// The fresh manifest is persisted before the collection is dropped. The
// manifest is the source of truth, so if the process dies in between, startup
// finds an empty manifest and finishes dropping the collection.
func (s *ChromemStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := newManifest()
	if err := fresh.save(s.manifestPath); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := s.db.DeleteCollection(s.config.Collection); err != nil {
		// Put the old manifest back so listing matches the surviving data.
		if saveErr := s.man.save(s.manifestPath); saveErr != nil {
			s.logger.Error("failed to restore manifest after aborted clear", zap.Error(saveErr))
		}
		return fmt.Errorf("%w: deleting collection: %v", ErrStoreUnavailable, err)
	}

	coll, err := s.db.GetOrCreateCollection(s.config.Collection, nil, rejectEmbeddingFunc)
	if err != nil {
		return fmt.Errorf("%w: recreating collection: %v", ErrStoreUnavailable, err)
	}
	s.coll = coll
	s.man = fresh

	s.logger.Info("knowledge base cleared")
	return nil
}

// Query scores every chunk against vector (brute force, exact) and returns
// the top k at or above minScore, descending by score with insertion-order
// tie-breaking.
func (s *ChromemStore) Query(ctx context.Context, vector []float32, k int, minScore float32) ([]ScoredChunk, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(vector) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: query has dimension %d, want %d",
			ErrDimensionMismatch, len(vector), s.config.VectorSize)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := s.coll.Count()
	if count == 0 {
		return []ScoredChunk{}, nil
	}

	// Score the full collection so threshold filtering and tie-breaking
	// happen over the complete ranking, not a pre-truncated one.
	results, err := s.coll.QueryEmbedding(ctx, vector, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: querying collection: %v", ErrStoreUnavailable, err)
	}

	type rankedChunk struct {
		chunk ScoredChunk
		seq   uint64
	}

	ranked := make([]rankedChunk, 0, len(results))
	for _, r := range results {
		if r.Similarity < minScore {
			continue
		}
		chunk, err := chunkFromResult(r)
		if err != nil {
			s.logger.Warn("skipping chunk with malformed metadata",
				zap.String("chunk_id", r.ID), zap.Error(err))
			continue
		}
		ranked = append(ranked, rankedChunk{
			chunk: ScoredChunk{Chunk: chunk, Score: r.Similarity},
			seq:   s.man.seq(chunk.DocumentID, chunk.Index),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].chunk.Score != ranked[j].chunk.Score {
			return ranked[i].chunk.Score > ranked[j].chunk.Score
		}
		return ranked[i].seq < ranked[j].seq
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]ScoredChunk, k)
	for i := range out {
		out[i] = ranked[i].chunk
	}
	return out, nil
}

// chunkFromResult rebuilds a Chunk from a chromem query result.
func chunkFromResult(r chromem.Result) (Chunk, error) {
	index, err := strconv.Atoi(r.Metadata["chunk_index"])
	if err != nil {
		return Chunk{}, fmt.Errorf("chunk_index: %w", err)
	}
	charStart, err := strconv.Atoi(r.Metadata["char_start"])
	if err != nil {
		return Chunk{}, fmt.Errorf("char_start: %w", err)
	}
	charEnd, err := strconv.Atoi(r.Metadata["char_end"])
	if err != nil {
		return Chunk{}, fmt.Errorf("char_end: %w", err)
	}

	return Chunk{
		ID:           r.ID,
		DocumentID:   r.Metadata["document_id"],
		DocumentName: r.Metadata["document_name"],
		Index:        index,
		Text:         r.Content,
		CharStart:    charStart,
		CharEnd:      charEnd,
		Embedding:    r.Embedding,
	}, nil
}

// ListDocuments returns a summary per indexed document, in insertion order.
func (s *ChromemStore) ListDocuments(ctx context.Context) ([]DocumentSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]DocumentSummary, 0, len(s.man.Documents))
	for _, id := range s.man.ordered() {
		entry := s.man.Documents[id]
		summaries = append(summaries, DocumentSummary{
			DocumentID:   id,
			DocumentName: entry.Name,
			ChunkCount:   entry.Count,
		})
	}
	return summaries, nil
}

// Close closes the store. chromem-go persists continuously, so there is
// nothing to flush.
func (s *ChromemStore) Close() error {
	s.logger.Info("chromem store closed")
	return nil
}

// Ensure ChromemStore implements Store.
var _ Store = (*ChromemStore)(nil)
