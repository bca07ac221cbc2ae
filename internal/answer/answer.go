// Package answer turns retrieval results into a user-facing answer.
//
// Synthesis is best-effort by construction: when a language-model generator
// is configured it writes the answer from the retrieved passages, and when
// it is absent or failing the synthesizer stitches an extractive answer from
// the passages directly. Generation failures never surface to the caller.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/answerd/internal/retriever"
	"github.com/fyrsmithlabs/answerd/internal/vectorstore"
)

var (
	// ErrGenerationUnavailable indicates the generation backend failed. It is
	// handled inside the synthesizer and never escapes Synthesize.
	ErrGenerationUnavailable = errors.New("generation backend unavailable")

	// ErrInvalidConfig indicates invalid synthesizer configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Generator produces free text for a prompt. Implementations wrap a chat
// model; the synthesizer owns prompt construction.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Source identifies a document an answer drew from.
type Source struct {
	DocumentID   string `json:"document_id"`
	DocumentName string `json:"document_name"`
}

// Answer is the synthesized response to a question.
type Answer struct {
	// Text is the answer body. Never empty.
	Text string `json:"text"`

	// FoundInDocuments reports whether the answer is grounded in retrieved
	// passages. It tracks retrieval, not generation: a general-knowledge
	// answer produced when nothing matched keeps it false.
	FoundInDocuments bool `json:"found_in_documents"`

	// Sources lists the distinct documents behind the answer, ordered by
	// each document's best-scoring passage. Empty when nothing matched.
	Sources []Source `json:"sources"`
}

// Config holds synthesis tuning.
type Config struct {
	// MaxContextChars bounds the passage text handed to the generator and
	// the extractive fallback. Default: 4000.
	MaxContextChars int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxContextChars == 0 {
		c.MaxContextChars = 4000
	}
}

// Synthesizer composes answers from retrieval results.
type Synthesizer struct {
	generator Generator
	config    Config
	logger    *zap.Logger
}

// New creates a Synthesizer. The generator may be nil, in which case every
// answer is extractive. A nil logger falls back to a no-op logger.
func New(generator Generator, cfg Config, logger *zap.Logger) (*Synthesizer, error) {
	cfg.ApplyDefaults()
	if cfg.MaxContextChars < 1 {
		return nil, fmt.Errorf("%w: max_context_chars must be positive, got %d", ErrInvalidConfig, cfg.MaxContextChars)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{generator: generator, config: cfg, logger: logger}, nil
}

// Synthesize produces an answer for query from a retrieval result.
//
// The two retrieval outcomes are handled separately: matched passages yield
// a grounded answer with sources, an empty result yields an explicit
// not-found answer with no sources. Generator failures downgrade to the
// extractive or not-found text; they are logged, never returned.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, retrieval retriever.Result) (Answer, error) {
	if strings.TrimSpace(query) == "" {
		return Answer{}, retriever.ErrEmptyQuery
	}

	if !retrieval.Found {
		return s.notFoundAnswer(ctx, query), nil
	}
	return s.groundedAnswer(ctx, query, retrieval.Chunks), nil
}

func (s *Synthesizer) groundedAnswer(ctx context.Context, query string, chunks []vectorstore.ScoredChunk) Answer {
	sources := collectSources(chunks)
	contextText := s.assembleContext(chunks)

	if s.generator != nil {
		prompt := groundedPrompt(query, contextText)
		text, err := s.generator.Generate(ctx, prompt)
		if err == nil && strings.TrimSpace(text) != "" {
			return Answer{Text: strings.TrimSpace(text), FoundInDocuments: true, Sources: sources}
		}
		if err != nil {
			s.logger.Warn("generation failed, using extractive answer", zap.Error(err))
		}
	}

	return Answer{
		Text:             s.extractiveText(chunks),
		FoundInDocuments: true,
		Sources:          sources,
	}
}

func (s *Synthesizer) notFoundAnswer(ctx context.Context, query string) Answer {
	text := fmt.Sprintf("I couldn't find specific information about %q in your documents.", query)

	// Best effort only: the answer stays marked as not grounded either way.
	if s.generator != nil {
		generated, err := s.generator.Generate(ctx, generalKnowledgePrompt(query))
		if err == nil && strings.TrimSpace(generated) != "" {
			text = text + "\n\n" + strings.TrimSpace(generated)
		} else if err != nil {
			s.logger.Warn("general-knowledge generation failed", zap.Error(err))
		}
	}

	return Answer{Text: text, FoundInDocuments: false, Sources: []Source{}}
}

// collectSources returns the distinct documents behind chunks, in rank order
// of each document's best-scoring chunk. Chunks arrive best first, so first
// appearance decides the order.
func collectSources(chunks []vectorstore.ScoredChunk) []Source {
	seen := make(map[string]bool, len(chunks))
	sources := make([]Source, 0, len(chunks))
	for _, sc := range chunks {
		if seen[sc.Chunk.DocumentID] {
			continue
		}
		seen[sc.Chunk.DocumentID] = true
		sources = append(sources, Source{
			DocumentID:   sc.Chunk.DocumentID,
			DocumentName: sc.Chunk.DocumentName,
		})
	}
	return sources
}

// assembleContext concatenates passage texts in rank order under the char
// budget, labeling each with its document name.
func (s *Synthesizer) assembleContext(chunks []vectorstore.ScoredChunk) string {
	var b strings.Builder
	for _, sc := range chunks {
		text := strings.TrimSpace(sc.Chunk.Text)
		if text == "" {
			continue
		}
		part := fmt.Sprintf("[%s]\n%s", sc.Chunk.DocumentName, text)
		if b.Len() > 0 {
			if b.Len()+len(part)+2 > s.config.MaxContextChars {
				break
			}
			b.WriteString("\n\n")
		} else if len(part) > s.config.MaxContextChars {
			part = truncate(part, s.config.MaxContextChars)
		}
		b.WriteString(part)
	}
	return b.String()
}

// extractiveText stitches an answer directly from the passages: one excerpt
// per document, rank order, under the char budget.
func (s *Synthesizer) extractiveText(chunks []vectorstore.ScoredChunk) string {
	var b strings.Builder
	b.WriteString("Based on your documents:")

	seen := make(map[string]bool, len(chunks))
	for _, sc := range chunks {
		if seen[sc.Chunk.DocumentID] {
			continue
		}
		seen[sc.Chunk.DocumentID] = true

		text := strings.TrimSpace(sc.Chunk.Text)
		if text == "" {
			continue
		}
		remaining := s.config.MaxContextChars - b.Len()
		if remaining <= 0 {
			break
		}
		if len(text) > remaining {
			text = strings.TrimSpace(truncate(text, remaining)) + "..."
		}
		fmt.Fprintf(&b, "\n\nFrom %s: %s", sc.Chunk.DocumentName, text)
	}
	return b.String()
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func groundedPrompt(query, contextText string) string {
	return fmt.Sprintf(`You are a helpful assistant that answers questions based on the provided documents.

Context from user's documents:
%s

Question: %s

Answer the question based on the context provided. If the context doesn't fully answer the question, say so but provide the best answer you can from the context.`, contextText, query)
}

func generalKnowledgePrompt(query string) string {
	return fmt.Sprintf(`The user asked: %s

Note: The answer was not found in the user's documents. Please provide a helpful answer from your general knowledge.`, query)
}
