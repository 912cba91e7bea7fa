// Package embedding wraps a Genkit embedder behind the batch-oriented
// client the ingestion pipeline and retriever need.
package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"
)

// DefaultBatchSize is the number of texts sent per embedding request,
// matching the hosted API request-size limit.
const DefaultBatchSize = 200

// DefaultDimension is used for models missing from the dimension
// table.
const DefaultDimension = 1536

// modelDimensions maps embedding model names to their output vector
// dimension.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"text-embedding-004":     768,
	"gemini-embedding-001":   3072,
}

// Client converts text into embedding vectors via an ai.Embedder.
//
// Batches are issued strictly sequentially; any batch failure aborts
// the whole call and surfaces the underlying error. There is no
// partial result and no retry.
type Client struct {
	embedder ai.Embedder
	model    string
	limiter  *rate.Limiter // optional, nil = unlimited
	logger   *slog.Logger
}

// New creates a Client for the given embedder and model name.
// limiter may be nil to disable proactive rate limiting.
func New(embedder ai.Embedder, model string, limiter *rate.Limiter, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		embedder: embedder,
		model:    model,
		limiter:  limiter,
		logger:   logger,
	}
}

// EmbedText embeds a single string.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedTexts(ctx, []string{text}, 1)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts embeds texts in order, batchSize per request. The result
// always has one vector per input in input order.
func (c *Client) EmbedTexts(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		batch := texts[start:end]

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		docs := make([]*ai.Document, len(batch))
		for i, text := range batch {
			docs[i] = ai.DocumentFromText(text, nil)
		}

		resp, err := c.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
		if err != nil {
			return nil, fmt.Errorf("embedding batch %d-%d: %w", start, end, err)
		}
		if len(resp.Embeddings) != len(batch) {
			return nil, fmt.Errorf("embedding batch %d-%d: got %d vectors for %d inputs",
				start, end, len(resp.Embeddings), len(batch))
		}

		for i, emb := range resp.Embeddings {
			if len(emb.Embedding) == 0 {
				return nil, fmt.Errorf("empty embedding returned for input %d", start+i)
			}
			vectors = append(vectors, emb.Embedding)
		}

		c.logger.Debug("embedded batch", "done", end, "total", len(texts))
	}

	c.logger.Info("created embeddings", "count", len(vectors), "model", c.model)
	return vectors, nil
}

// Dimension returns the output vector dimension for the configured
// model, defaulting to DefaultDimension for unknown models.
func (c *Client) Dimension() int {
	if d, ok := modelDimensions[c.model]; ok {
		return d
	}
	return DefaultDimension
}

// Model returns the configured embedding model name.
func (c *Client) Model() string {
	return c.model
}
