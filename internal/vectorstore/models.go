package vectorstore

import "fmt"

// Chunk is the unit of indexing and retrieval: a bounded contiguous slice of
// a document's text together with its embedding vector.
//
// Chunks are immutable once created and are replaced wholesale when their
// document is re-added.
type Chunk struct {
	// ID uniquely identifies the chunk. Derived from the document ID and the
	// chunk index, see ChunkID.
	ID string

	// DocumentID is the opaque identifier of the source document.
	DocumentID string

	// DocumentName is the human-readable name of the source document.
	DocumentName string

	// Index is the 0-based position of the chunk within its document.
	Index int

	// Text is the chunk's text content.
	Text string

	// CharStart and CharEnd are the chunk's rune offsets in the original
	// document text, CharEnd exclusive.
	CharStart int
	CharEnd   int

	// Embedding is the chunk's L2-normalized embedding vector.
	Embedding []float32
}

// ScoredChunk pairs a chunk with its cosine similarity to a query vector.
// Scores are in [-1, 1]; higher means more similar.
type ScoredChunk struct {
	Chunk Chunk
	Score float32
}

// DocumentSummary describes one indexed document.
type DocumentSummary struct {
	DocumentID   string `json:"document_id"`
	DocumentName string `json:"document_name"`
	ChunkCount   int    `json:"chunk_count"`
}

// ChunkID derives the canonical chunk identifier from a document ID and the
// chunk's position within the document.
func ChunkID(docID string, index int) string {
	return fmt.Sprintf("%s_%d", docID, index)
}
