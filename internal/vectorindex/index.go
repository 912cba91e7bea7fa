// Package vectorindex stores chunk embeddings in PostgreSQL with the
// pgvector extension and answers nearest-neighbor queries against
// them. Similarity ranking is delegated entirely to the database; this
// package only shapes requests and results.
package vectorindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pgvector/pgvector-go"

	"docchat/internal/document"
)

// DefaultBatchSize is the number of records sent per upsert round
// trip.
const DefaultBatchSize = 200

// readyPollInterval is how often EnsureReady re-checks an unreachable
// database. The poll has no attempt cap; cancellation comes from the
// caller's context.
const readyPollInterval = time.Second

// Sentinel errors for precondition failures. These are raised before
// any network I/O.
var (
	// ErrNotReady indicates EnsureReady has not succeeded yet.
	ErrNotReady = errors.New("vector index not ready: call EnsureReady first")

	// ErrLengthMismatch indicates the texts, embeddings, and metadata
	// slices passed to Upsert differ in length.
	ErrLengthMismatch = errors.New("texts, embeddings, and metadata must have the same length")
)

// Metric selects the distance function used for similarity search.
type Metric string

// Supported distance metrics.
const (
	MetricCosine       Metric = "cosine"
	MetricL2           Metric = "l2"
	MetricInnerProduct Metric = "ip"
)

// Valid reports whether the metric is one of the supported values.
func (m Metric) Valid() bool {
	switch m {
	case MetricCosine, MetricL2, MetricInnerProduct:
		return true
	}
	return false
}

// Match is a single similarity-search result. Score is a similarity:
// higher means more relevant.
type Match struct {
	ID       string
	Score    float32
	Text     string
	Metadata document.Metadata
}

// Stats describes the current state of the index.
type Stats struct {
	TotalVectors int64
	Dimension    int
	Fullness     float64 // always 0 for a self-hosted index
}

// Row is a raw search result produced by the Querier.
type Row struct {
	ID         string
	Similarity float32
	Content    string
	Metadata   []byte
}

// Querier defines the database operations the index needs. The
// interface is defined here, by the consumer, so tests can substitute
// a stub for the pgx-backed implementation.
type Querier interface {
	Ping(ctx context.Context) error
	EnsureSchema(ctx context.Context, dimension int, metric Metric) error
	UpsertVector(ctx context.Context, id, content string, vec pgvector.Vector, metadata []byte) error
	QueryNearest(ctx context.Context, vec pgvector.Vector, metric Metric, topK int32, filter []byte) ([]Row, error)
	CountVectors(ctx context.Context) (int64, error)
	DeleteAllVectors(ctx context.Context) error
	DropSchema(ctx context.Context) error
}

// Index is the vector index client. Every method except EnsureReady
// fails with ErrNotReady until EnsureReady has completed once.
type Index struct {
	querier   Querier
	dimension int
	metric    Metric
	topK      int32
	ready     bool
	logger    *slog.Logger
}

// New creates an Index with the given dimension, metric, and default
// top-k for searches that do not specify one.
func New(querier Querier, dimension int, metric Metric, topK int32, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	if !metric.Valid() {
		metric = MetricCosine
	}
	if topK <= 0 {
		topK = 5
	}
	return &Index{
		querier:   querier,
		dimension: dimension,
		metric:    metric,
		topK:      topK,
		logger:    logger,
	}
}

// EnsureReady connects to the index, creating the schema if it does
// not exist, and blocks until the database reports ready. Idempotent:
// an existing schema is reused as-is. The readiness poll runs at
// 1-second intervals until the context is canceled.
func (idx *Index) EnsureReady(ctx context.Context) error {
	if idx.ready {
		return nil
	}

	for {
		err := idx.querier.Ping(ctx)
		if err == nil {
			break
		}
		idx.logger.Info("waiting for vector store", "error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for vector store: %w", ctx.Err())
		case <-time.After(readyPollInterval):
		}
	}

	if err := idx.querier.EnsureSchema(ctx, idx.dimension, idx.metric); err != nil {
		return fmt.Errorf("ensuring index schema: %w", err)
	}

	idx.ready = true
	idx.logger.Info("vector index ready", "dimension", idx.dimension, "metric", idx.metric)
	return nil
}

// vectorPayload is the stored metadata shape: the chunk metadata with
// the raw text merged in so matches are self-describing.
type vectorPayload struct {
	document.Metadata
	Text string `json:"text"`
}

// Upsert uploads (id, vector, metadata) records in sequential batches.
// The record ID comes from the chunk ID when present, otherwise a
// positional doc_<i> fallback. A failing batch aborts the call;
// batches already written stay written.
func (idx *Index) Upsert(ctx context.Context, texts []string, embeddings [][]float32, metas []document.Metadata, batchSize int) (int, error) {
	if !idx.ready {
		return 0, ErrNotReady
	}
	if len(texts) != len(embeddings) || len(texts) != len(metas) {
		return 0, fmt.Errorf("%w: texts=%d embeddings=%d metadata=%d",
			ErrLengthMismatch, len(texts), len(embeddings), len(metas))
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	upserted := 0
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))

		for i := start; i < end; i++ {
			id := metas[i].ChunkID
			if id == "" {
				id = fmt.Sprintf("doc_%d", i)
			}

			payload, err := json.Marshal(vectorPayload{Metadata: metas[i], Text: texts[i]})
			if err != nil {
				return upserted, fmt.Errorf("marshaling metadata for %q: %w", id, err)
			}

			if err := idx.querier.UpsertVector(ctx, id, texts[i], pgvector.NewVector(embeddings[i]), payload); err != nil {
				return upserted, fmt.Errorf("upserting batch %d-%d: %w", start, end, err)
			}
			upserted++
		}

		idx.logger.Debug("upserted batch", "done", end, "total", len(texts))
	}

	idx.logger.Info("upserted vectors", "count", upserted)
	return upserted, nil
}

// Search returns the topK nearest records to queryVec, optionally
// restricted by an equality filter over metadata fields. topK <= 0
// uses the configured default.
func (idx *Index) Search(ctx context.Context, queryVec []float32, topK int32, filter map[string]string) ([]Match, error) {
	if !idx.ready {
		return nil, ErrNotReady
	}
	if topK <= 0 {
		topK = idx.topK
	}

	var filterJSON []byte
	if len(filter) > 0 {
		var err error
		filterJSON, err = json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("marshaling filter: %w", err)
		}
	}

	rows, err := idx.querier.QueryNearest(ctx, pgvector.NewVector(queryVec), idx.metric, topK, filterJSON)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	matches := make([]Match, 0, len(rows))
	for _, row := range rows {
		var payload vectorPayload
		if err := json.Unmarshal(row.Metadata, &payload); err != nil {
			idx.logger.Warn("skipping match with malformed metadata", "id", row.ID, "error", err)
			continue
		}
		text := payload.Text
		if text == "" {
			text = row.Content
		}
		matches = append(matches, Match{
			ID:       row.ID,
			Score:    row.Similarity,
			Text:     text,
			Metadata: payload.Metadata,
		})
	}
	return matches, nil
}

// DeleteAll removes every vector while keeping the index structure.
func (idx *Index) DeleteAll(ctx context.Context) error {
	if !idx.ready {
		return ErrNotReady
	}
	if err := idx.querier.DeleteAllVectors(ctx); err != nil {
		return fmt.Errorf("deleting all vectors: %w", err)
	}
	idx.logger.Info("deleted all vectors")
	return nil
}

// DropIndex removes the index structure entirely. A later EnsureReady
// recreates it.
func (idx *Index) DropIndex(ctx context.Context) error {
	if !idx.ready {
		return ErrNotReady
	}
	if err := idx.querier.DropSchema(ctx); err != nil {
		return fmt.Errorf("dropping index: %w", err)
	}
	idx.ready = false
	idx.logger.Info("dropped vector index")
	return nil
}

// Stats returns the vector count and index configuration.
func (idx *Index) Stats(ctx context.Context) (Stats, error) {
	if !idx.ready {
		return Stats{}, ErrNotReady
	}
	count, err := idx.querier.CountVectors(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("counting vectors: %w", err)
	}
	return Stats{
		TotalVectors: count,
		Dimension:    idx.dimension,
	}, nil
}
