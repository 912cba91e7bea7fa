// Package ingest runs the offline indexing pipeline: load documents,
// chunk them, embed the chunks, and upsert the vectors.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"docchat/internal/document"
)

// Loader supplies the raw documents.
type Loader interface {
	LoadAll(ctx context.Context) ([]document.Document, error)
}

// Chunker splits documents into chunks.
type Chunker interface {
	ChunkDocuments(docs []document.Document) []document.Document
}

// Embedder turns chunk texts into vectors.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string, batchSize int) ([][]float32, error)
}

// Indexer receives the embedded chunks.
type Indexer interface {
	EnsureReady(ctx context.Context) error
	Upsert(ctx context.Context, texts []string, embeddings [][]float32, metas []document.Metadata, batchSize int) (int, error)
	DeleteAll(ctx context.Context) error
}

// Result summarizes one pipeline run.
type Result struct {
	Documents int
	Chunks    int
	Vectors   int
	Duration  time.Duration
}

// Pipeline wires the ingestion stages. Stages run sequentially; the
// first failing stage aborts the run.
type Pipeline struct {
	loader    Loader
	chunker   Chunker
	embedder  Embedder
	index     Indexer
	batchSize int
	logger    *slog.Logger
}

// New creates a Pipeline. batchSize <= 0 lets each stage pick its own
// default.
func New(loader Loader, chunker Chunker, embedder Embedder, index Indexer, batchSize int, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		loader:    loader,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run executes load, chunk, embed, and upsert. reset drops all
// existing vectors first, for a clean re-ingest.
func (p *Pipeline) Run(ctx context.Context, reset bool) (Result, error) {
	start := time.Now()

	if err := p.index.EnsureReady(ctx); err != nil {
		return Result{}, fmt.Errorf("preparing index: %w", err)
	}
	if reset {
		if err := p.index.DeleteAll(ctx); err != nil {
			return Result{}, fmt.Errorf("resetting index: %w", err)
		}
		p.logger.Info("cleared existing vectors")
	}

	docs, err := p.loader.LoadAll(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("loading documents: %w", err)
	}
	p.logger.Info("loaded documents", "count", len(docs))

	chunks := p.chunker.ChunkDocuments(docs)
	p.logger.Info("chunked documents", "documents", len(docs), "chunks", len(chunks))

	if len(chunks) == 0 {
		return Result{Documents: len(docs), Duration: time.Since(start)}, nil
	}

	texts := make([]string, len(chunks))
	metas := make([]document.Metadata, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
		metas[i] = c.Metadata
	}

	embeddings, err := p.embedder.EmbedTexts(ctx, texts, p.batchSize)
	if err != nil {
		return Result{}, fmt.Errorf("embedding chunks: %w", err)
	}

	upserted, err := p.index.Upsert(ctx, texts, embeddings, metas, p.batchSize)
	if err != nil {
		return Result{}, fmt.Errorf("indexing chunks: %w", err)
	}

	result := Result{
		Documents: len(docs),
		Chunks:    len(chunks),
		Vectors:   upserted,
		Duration:  time.Since(start),
	}
	p.logger.Info("ingestion complete",
		"documents", result.Documents,
		"chunks", result.Chunks,
		"vectors", result.Vectors,
		"duration", result.Duration)
	return result, nil
}
