package vectorstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// manifest is the durable secondary index of the store: which documents are
// indexed, how many chunks each contributed, and the insertion sequence used
// for stable tie-breaking in queries. It is persisted as JSON next to the
// chromem data so the index survives a process restart.
type manifest struct {
	// NextSeq is the insertion sequence assigned to the next upserted chunk.
	NextSeq uint64 `json:"next_seq"`

	// Documents maps document ID to its manifest entry.
	Documents map[string]*manifestEntry `json:"documents"`
}

// manifestEntry records one indexed document.
type manifestEntry struct {
	Name string `json:"name"`

	// Base is the insertion sequence of the document's first chunk; chunk i
	// has sequence Base+i.
	Base uint64 `json:"base"`

	Count int `json:"count"`
}

func newManifest() *manifest {
	return &manifest{Documents: make(map[string]*manifestEntry)}
}

// loadManifest reads the manifest from path. A missing file yields a fresh
// manifest, not an error.
func loadManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return newManifest(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest %s: %w", path, err)
	}
	if m.Documents == nil {
		m.Documents = make(map[string]*manifestEntry)
	}
	return &m, nil
}

// save writes the manifest atomically via a temp file and rename, so a crash
// mid-write never leaves a truncated index on disk.
func (m *manifest) save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp manifest: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing manifest: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing manifest: %w", err)
	}
	return nil
}

// chunkIDs returns the chunk IDs recorded for a document, in chunk order.
func (m *manifest) chunkIDs(docID string) []string {
	entry, ok := m.Documents[docID]
	if !ok {
		return nil
	}
	ids := make([]string, entry.Count)
	for i := range ids {
		ids[i] = ChunkID(docID, i)
	}
	return ids
}

// seq returns the insertion sequence of a chunk, used as the stable query
// tie-breaker. Unknown documents sort last.
func (m *manifest) seq(docID string, index int) uint64 {
	entry, ok := m.Documents[docID]
	if !ok {
		return ^uint64(0)
	}
	return entry.Base + uint64(index)
}

// ordered returns document IDs sorted by insertion order.
func (m *manifest) ordered() []string {
	ids := make([]string, 0, len(m.Documents))
	for id := range m.Documents {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return m.Documents[ids[i]].Base < m.Documents[ids[j]].Base
	})
	return ids
}
