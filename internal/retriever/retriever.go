// Package retriever composes the embedding client and the vector
// index into the query-time retrieval step: embed the query, search,
// and format the matches into a grounding context string.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"docchat/internal/vectorindex"
)

// NoResultsMessage is returned when a search yields zero matches.
// Callers must treat it as "no grounding available", never as an
// answer.
const NoResultsMessage = "No relevant information found."

// Embedder is the single embedding operation retrieval needs.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the vector index operation retrieval needs.
type Searcher interface {
	Search(ctx context.Context, queryVec []float32, topK int32, filter map[string]string) ([]vectorindex.Match, error)
}

// Option configures a retrieval using the functional options pattern.
type Option func(*config)

type config struct {
	topK   int32
	filter map[string]string
	scores bool
}

// WithTopK overrides the number of matches requested.
func WithTopK(k int32) Option {
	return func(c *config) {
		c.topK = k
	}
}

// WithFilter adds a metadata equality filter. Multiple calls combine
// with AND logic.
func WithFilter(key, value string) Option {
	return func(c *config) {
		if c.filter == nil {
			c.filter = make(map[string]string)
		}
		c.filter[key] = value
	}
}

// WithScores annotates each context block with its relevance score.
func WithScores() Option {
	return func(c *config) {
		c.scores = true
	}
}

// Retriever performs semantic retrieval and context assembly.
type Retriever struct {
	embedder Embedder
	index    Searcher
	logger   *slog.Logger
}

// New creates a Retriever.
func New(embedder Embedder, index Searcher, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		logger:   logger,
	}
}

// Retrieve embeds the query, searches the index, and returns the
// formatted context. Zero matches yield NoResultsMessage.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...Option) (string, error) {
	matches, cfg, err := r.search(ctx, query, opts)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		r.logger.Debug("no matching documents", "query", query)
		return NoResultsMessage, nil
	}
	return FormatContext(matches, cfg.scores), nil
}

// Matches embeds the query and returns the raw matches with full
// metadata.
func (r *Retriever) Matches(ctx context.Context, query string, opts ...Option) ([]vectorindex.Match, error) {
	matches, _, err := r.search(ctx, query, opts)
	return matches, err
}

func (r *Retriever) search(ctx context.Context, query string, opts []Option) ([]vectorindex.Match, *config, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	vec, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("embedding query: %w", err)
	}

	matches, err := r.index.Search(ctx, vec, cfg.topK, cfg.filter)
	if err != nil {
		return nil, nil, fmt.Errorf("searching index: %w", err)
	}

	r.logger.Debug("retrieved matches", "query", query, "count", len(matches))
	return matches, cfg, nil
}

// RelevantSources returns the source paths across the ranked matches,
// de-duplicated with first-occurrence order preserved. Useful for
// citations.
func (r *Retriever) RelevantSources(ctx context.Context, query string, opts ...Option) ([]string, error) {
	matches, err := r.Matches(ctx, query, opts...)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(matches))
	var sources []string
	for _, m := range matches {
		source := m.Metadata.Source
		if source == "" {
			continue
		}
		if _, ok := seen[source]; ok {
			continue
		}
		seen[source] = struct{}{}
		sources = append(sources, source)
	}
	return sources, nil
}

// SearchByCategory retrieves context restricted to one category
// (blog/help).
func (r *Retriever) SearchByCategory(ctx context.Context, query, category string, opts ...Option) (string, error) {
	opts = append(opts, WithFilter("category", category))
	return r.Retrieve(ctx, query, opts...)
}

// SearchByDocType retrieves context restricted to one document type
// (markdown/pdf/json).
func (r *Retriever) SearchByDocType(ctx context.Context, query, docType string, opts ...Option) (string, error) {
	opts = append(opts, WithFilter("doc_type", docType))
	return r.Retrieve(ctx, query, opts...)
}

// FormatContext renders matches as ordered context blocks: a 1-based
// rank label, optionally the relevance score, the chunk text, and a
// source attribution line.
func FormatContext(matches []vectorindex.Match, includeScores bool) string {
	if len(matches) == 0 {
		return NoResultsMessage
	}

	blocks := make([]string, 0, len(matches))
	for i, m := range matches {
		var b strings.Builder
		fmt.Fprintf(&b, "--- Context %d", i+1)
		if includeScores {
			fmt.Fprintf(&b, " (Relevance: %.2f)", m.Score)
		}
		b.WriteString(" ---\n")
		b.WriteString(m.Text)
		b.WriteString("\n")
		fmt.Fprintf(&b, "[Source: %s/%s (%s)]\n", metaCategory(m), metaName(m), metaDocType(m))
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n")
}

func metaCategory(m vectorindex.Match) string {
	if m.Metadata.Category != "" {
		return string(m.Metadata.Category)
	}
	return "other"
}

func metaDocType(m vectorindex.Match) string {
	if m.Metadata.DocType != "" {
		return string(m.Metadata.DocType)
	}
	return "document"
}

func metaName(m vectorindex.Match) string {
	if m.Metadata.Filename != "" {
		return m.Metadata.Filename
	}
	source := m.Metadata.Source
	if source == "" {
		return "Unknown"
	}
	if i := strings.LastIndex(source, "/"); i >= 0 {
		return source[i+1:]
	}
	return source
}
