package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DirectoryFetcher resolves document ids to files under a root directory.
// The document id is the path relative to the root; the document name is
// the file's base name.
type DirectoryFetcher struct {
	root string
}

// NewDirectoryFetcher creates a fetcher over root, creating the directory
// if it does not exist yet.
func NewDirectoryFetcher(root string) (*DirectoryFetcher, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: documents root is required", ErrInvalidConfig)
	}
	if strings.HasPrefix(root, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		root = filepath.Join(home, root[2:])
	}

	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("documents root %s: %w", root, err)
	}
	return &DirectoryFetcher{root: root}, nil
}

// Fetch reads one document. Paths escaping the root are treated as not
// found rather than leaking what exists outside it.
func (f *DirectoryFetcher) Fetch(ctx context.Context, documentID string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if documentID == "" {
		return Document{}, fmt.Errorf("%w: empty document id", ErrNotFound)
	}

	path := filepath.Join(f.root, filepath.Clean("/"+documentID))
	rel, err := filepath.Rel(f.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, documentID)
	}

	content, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, documentID)
	case errors.Is(err, fs.ErrPermission):
		return Document{}, fmt.Errorf("%w: %s", ErrAccessDenied, documentID)
	case err != nil:
		return Document{}, fmt.Errorf("reading %s: %w", documentID, err)
	}

	return Document{
		ID:   documentID,
		Name: filepath.Base(path),
		Text: string(content),
	}, nil
}

var _ DocumentFetcher = (*DirectoryFetcher)(nil)
