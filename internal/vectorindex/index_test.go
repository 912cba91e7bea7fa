package vectorindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/pgvector/pgvector-go"

	"docchat/internal/document"
	"docchat/internal/log"
)

// stubQuerier implements Querier in memory.
type stubQuerier struct {
	pingErr    error
	pingCalls  int
	schemaDim  int
	upserts    map[string][]byte
	upsertErr  error
	rows       []Row
	lastFilter []byte
	lastTopK   int32
	deleted    bool
	dropped    bool
	count      int64
}

func newStubQuerier() *stubQuerier {
	return &stubQuerier{upserts: make(map[string][]byte)}
}

func (s *stubQuerier) Ping(context.Context) error {
	s.pingCalls++
	return s.pingErr
}

func (s *stubQuerier) EnsureSchema(_ context.Context, dimension int, _ Metric) error {
	s.schemaDim = dimension
	return nil
}

func (s *stubQuerier) UpsertVector(_ context.Context, id, _ string, _ pgvector.Vector, metadata []byte) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserts[id] = metadata
	return nil
}

func (s *stubQuerier) QueryNearest(_ context.Context, _ pgvector.Vector, _ Metric, topK int32, filter []byte) ([]Row, error) {
	s.lastTopK = topK
	s.lastFilter = filter
	return s.rows, nil
}

func (s *stubQuerier) CountVectors(context.Context) (int64, error) { return s.count, nil }

func (s *stubQuerier) DeleteAllVectors(context.Context) error {
	s.deleted = true
	return nil
}

func (s *stubQuerier) DropSchema(context.Context) error {
	s.dropped = true
	return nil
}

func readyIndex(t *testing.T, q Querier) *Index {
	t.Helper()
	idx := New(q, 4, MetricCosine, 5, log.NewNop())
	if err := idx.EnsureReady(context.Background()); err != nil {
		t.Fatalf("EnsureReady() error = %v", err)
	}
	return idx
}

func meta(source, chunkID string) document.Metadata {
	return document.Metadata{Source: source, DocType: document.TypeMarkdown, ChunkID: chunkID}
}

func TestIndex_NotReadyPrecondition(t *testing.T) {
	idx := New(newStubQuerier(), 4, MetricCosine, 5, log.NewNop())
	ctx := context.Background()

	if _, err := idx.Search(ctx, []float32{1}, 5, nil); !errors.Is(err, ErrNotReady) {
		t.Errorf("Search error = %v, want ErrNotReady", err)
	}
	if _, err := idx.Upsert(ctx, nil, nil, nil, 0); !errors.Is(err, ErrNotReady) {
		t.Errorf("Upsert error = %v, want ErrNotReady", err)
	}
	if err := idx.DeleteAll(ctx); !errors.Is(err, ErrNotReady) {
		t.Errorf("DeleteAll error = %v, want ErrNotReady", err)
	}
	if _, err := idx.Stats(ctx); !errors.Is(err, ErrNotReady) {
		t.Errorf("Stats error = %v, want ErrNotReady", err)
	}
}

func TestEnsureReady_Idempotent(t *testing.T) {
	q := newStubQuerier()
	idx := readyIndex(t, q)

	if q.schemaDim != 4 {
		t.Errorf("schema dimension = %d, want 4", q.schemaDim)
	}
	pings := q.pingCalls
	if err := idx.EnsureReady(context.Background()); err != nil {
		t.Fatalf("second EnsureReady() error = %v", err)
	}
	if q.pingCalls != pings {
		t.Error("second EnsureReady should be a no-op")
	}
}

func TestEnsureReady_CanceledWhileWaiting(t *testing.T) {
	q := newStubQuerier()
	q.pingErr = errors.New("connection refused")
	idx := New(q, 4, MetricCosine, 5, log.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := idx.EnsureReady(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("EnsureReady error = %v, want context.Canceled", err)
	}
}

func TestUpsert_LengthMismatch(t *testing.T) {
	idx := readyIndex(t, newStubQuerier())

	_, err := idx.Upsert(context.Background(),
		[]string{"a", "b"},
		[][]float32{{1}},
		[]document.Metadata{{}, {}},
		0)
	if !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("error = %v, want ErrLengthMismatch", err)
	}
}

func TestUpsert_IDsAndPayload(t *testing.T) {
	q := newStubQuerier()
	idx := readyIndex(t, q)

	texts := []string{"first chunk", "second chunk"}
	embeddings := [][]float32{{1, 0}, {0, 1}}
	metas := []document.Metadata{
		meta("data/a.md", "chunk_ab_0_0"),
		meta("data/b.md", ""), // no chunk ID, positional fallback
	}

	n, err := idx.Upsert(context.Background(), texts, embeddings, metas, 0)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if n != 2 {
		t.Errorf("upserted = %d, want 2", n)
	}

	payload, ok := q.upserts["chunk_ab_0_0"]
	if !ok {
		t.Fatalf("chunk ID record missing, got keys %v", q.upserts)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("stored metadata not JSON: %v", err)
	}
	if decoded["text"] != "first chunk" {
		t.Errorf("stored text = %v", decoded["text"])
	}
	if decoded["source"] != "data/a.md" {
		t.Errorf("stored source = %v", decoded["source"])
	}

	if _, ok := q.upserts["doc_1"]; !ok {
		t.Errorf("positional fallback ID missing, got keys %v", q.upserts)
	}
}

func TestUpsert_FailureKeepsCommitted(t *testing.T) {
	q := newStubQuerier()
	idx := readyIndex(t, q)

	q.upsertErr = errors.New("write failed")
	n, err := idx.Upsert(context.Background(),
		[]string{"a"}, [][]float32{{1}}, []document.Metadata{{}}, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if n != 0 {
		t.Errorf("upserted = %d, want 0", n)
	}
}

func TestSearch_FilterAndResults(t *testing.T) {
	q := newStubQuerier()
	payload, _ := json.Marshal(map[string]any{
		"source": "data/a.md", "doc_type": "markdown", "category": "help", "text": "chunk text",
	})
	q.rows = []Row{
		{ID: "chunk_1", Similarity: 0.9, Content: "chunk text", Metadata: payload},
		{ID: "bad", Similarity: 0.5, Content: "x", Metadata: []byte("{not json")},
	}
	idx := readyIndex(t, q)

	matches, err := idx.Search(context.Background(), []float32{1, 0}, 3, map[string]string{"doc_type": "markdown"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	// Malformed metadata rows are skipped, not fatal.
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
	m := matches[0]
	if m.ID != "chunk_1" || m.Score != 0.9 || m.Text != "chunk text" {
		t.Errorf("match = %+v", m)
	}
	if m.Metadata.DocType != document.TypeMarkdown {
		t.Errorf("metadata doc type = %q", m.Metadata.DocType)
	}

	if q.lastTopK != 3 {
		t.Errorf("topK = %d, want 3", q.lastTopK)
	}
	var filter map[string]string
	if err := json.Unmarshal(q.lastFilter, &filter); err != nil {
		t.Fatalf("filter not JSON: %v", err)
	}
	if filter["doc_type"] != "markdown" {
		t.Errorf("filter = %v", filter)
	}
}

func TestSearch_DefaultTopK(t *testing.T) {
	q := newStubQuerier()
	idx := readyIndex(t, q)

	if _, err := idx.Search(context.Background(), []float32{1}, 0, nil); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if q.lastTopK != 5 {
		t.Errorf("topK = %d, want configured default 5", q.lastTopK)
	}
	if q.lastFilter != nil {
		t.Errorf("filter = %q, want nil for unfiltered search", q.lastFilter)
	}
}

func TestDropIndex_ResetsReadiness(t *testing.T) {
	q := newStubQuerier()
	idx := readyIndex(t, q)

	if err := idx.DropIndex(context.Background()); err != nil {
		t.Fatalf("DropIndex() error = %v", err)
	}
	if !q.dropped {
		t.Error("schema not dropped")
	}
	if _, err := idx.Search(context.Background(), []float32{1}, 1, nil); !errors.Is(err, ErrNotReady) {
		t.Errorf("Search after drop = %v, want ErrNotReady", err)
	}
}

func TestStats(t *testing.T) {
	q := newStubQuerier()
	q.count = 42
	idx := readyIndex(t, q)

	stats, err := idx.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalVectors != 42 || stats.Dimension != 4 || stats.Fullness != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestDeleteAll(t *testing.T) {
	q := newStubQuerier()
	idx := readyIndex(t, q)

	if err := idx.DeleteAll(context.Background()); err != nil {
		t.Fatalf("DeleteAll() error = %v", err)
	}
	if !q.deleted {
		t.Error("vectors not deleted")
	}
}

func TestMetricValid(t *testing.T) {
	for _, m := range []Metric{MetricCosine, MetricL2, MetricInnerProduct} {
		if !m.Valid() {
			t.Errorf("%q should be valid", m)
		}
	}
	if Metric("euclidean").Valid() {
		t.Error("unknown metric should be invalid")
	}
}

func TestUpsert_Batches(t *testing.T) {
	q := newStubQuerier()
	idx := readyIndex(t, q)

	const n = 5
	texts := make([]string, n)
	embeddings := make([][]float32, n)
	metas := make([]document.Metadata, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk %d", i)
		embeddings[i] = []float32{float32(i)}
	}

	count, err := idx.Upsert(context.Background(), texts, embeddings, metas, 2)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if count != n {
		t.Errorf("upserted = %d, want %d", count, n)
	}
	if len(q.upserts) != n {
		t.Errorf("stored = %d, want %d", len(q.upserts), n)
	}
}
