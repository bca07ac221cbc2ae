// Package chunker splits document text into fixed-size overlapping windows
// for embedding. Offsets are rune positions, so multibyte text chunks the
// same as ASCII.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidWindow indicates a chunk window that cannot produce forward
// progress: non-positive size, negative overlap, or overlap >= size.
var ErrInvalidWindow = errors.New("invalid chunk window")

// Segment is one chunk of a document. Start and End are rune offsets into
// the original text, with End exclusive.
type Segment struct {
	Text  string
	Start int
	End   int
}

// Split cuts text into segments of at most chunkSize runes, consecutive
// segments overlapping by overlap runes. The final segment is truncated to
// the text end, never padded and never empty. Whitespace-only input yields
// no segments.
func Split(text string, chunkSize, overlap int) ([]Segment, error) {
	if chunkSize < 1 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidWindow, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap must be in [0, chunk size), got %d", ErrInvalidWindow, overlap)
	}

	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []Segment{{Text: text, Start: 0, End: len(runes)}}, nil
	}

	stride := chunkSize - overlap
	segments := make([]Segment, 0, (len(runes)+stride-1)/stride)

	for start := 0; start < len(runes); start += stride {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		segments = append(segments, Segment{
			Text:  string(runes[start:end]),
			Start: start,
			End:   end,
		})
		if end == len(runes) {
			break
		}
	}
	return segments, nil
}
