// Package vectorstore persists chunk vectors and metadata and answers
// nearest-neighbor similarity queries over them.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyChunks indicates an upsert with no chunks.
	ErrEmptyChunks = errors.New("empty or nil chunks")

	// ErrDimensionMismatch indicates a vector whose dimension does not match
	// the configured vector size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrStoreUnavailable indicates a persistence I/O failure. The store is
	// left in its last-committed consistent state.
	ErrStoreUnavailable = errors.New("vector store unavailable")
)

// Store is the interface for chunk storage and similarity search.
//
// A Store holds the full knowledge base: every chunk of every indexed
// document, keyed by chunk ID, with a secondary index from document ID to its
// chunk set. Implementations must keep that secondary index consistent across
// process restarts.
//
// Write operations (Upsert, DeleteDocument, Clear) are serialized internally;
// reads (Query, ListDocuments) may run concurrently and always observe a
// complete prior version, never a half-replaced document.
type Store interface {
	// Upsert atomically replaces all chunks for a document. The previous
	// chunk set is deleted and the new one inserted as one logical
	// operation; concurrent readers see either the old or the new set.
	//
	// Chunks must carry embeddings of the configured dimension.
	Upsert(ctx context.Context, docID, docName string, chunks []Chunk) error

	// DeleteDocument removes all chunks for a document. Deleting a document
	// that is not indexed is a no-op, not an error.
	DeleteDocument(ctx context.Context, docID string) error

	// Clear removes all chunks for all documents, leaving the store in the
	// same state as freshly initialized.
	Clear(ctx context.Context) error

	// Query returns the top-k chunks by cosine similarity to vector with
	// score >= minScore, ordered by descending score. Ties are broken by
	// insertion order (stable). Both k and minScore are caller-supplied;
	// there are no hidden defaults.
	Query(ctx context.Context, vector []float32, k int, minScore float32) ([]ScoredChunk, error)

	// ListDocuments returns a summary per indexed document, in insertion
	// order.
	ListDocuments(ctx context.Context) ([]DocumentSummary, error)

	// Close releases resources held by the store.
	Close() error
}
