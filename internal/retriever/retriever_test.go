package retriever

import (
	"context"
	"errors"
	"strings"
	"testing"

	"docchat/internal/document"
	"docchat/internal/log"
	"docchat/internal/vectorindex"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) EmbedText(context.Context, string) ([]float32, error) {
	return s.vec, s.err
}

type stubSearcher struct {
	matches    []vectorindex.Match
	err        error
	lastTopK   int32
	lastFilter map[string]string
}

func (s *stubSearcher) Search(_ context.Context, _ []float32, topK int32, filter map[string]string) ([]vectorindex.Match, error) {
	s.lastTopK = topK
	s.lastFilter = filter
	return s.matches, s.err
}

func match(source, filename, text string, score float32) vectorindex.Match {
	return vectorindex.Match{
		ID:    "id-" + filename,
		Score: score,
		Text:  text,
		Metadata: document.Metadata{
			Source:   source,
			DocType:  document.TypeMarkdown,
			Category: document.CategoryHelp,
			Filename: filename,
		},
	}
}

func TestRetrieve_EmptyIndexSentinel(t *testing.T) {
	r := New(&stubEmbedder{vec: []float32{1}}, &stubSearcher{}, log.NewNop())

	got, err := r.Retrieve(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if got != NoResultsMessage {
		t.Errorf("Retrieve() = %q, want sentinel %q", got, NoResultsMessage)
	}
}

func TestRetrieve_FormatsContextBlocks(t *testing.T) {
	idx := &stubSearcher{matches: []vectorindex.Match{
		match("data/help/export.md", "export.md", "How to export data.", 0.91),
		match("data/help/import.md", "import.md", "How to import data.", 0.74),
	}}
	r := New(&stubEmbedder{vec: []float32{1}}, idx, log.NewNop())

	got, err := r.Retrieve(context.Background(), "export")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	if !strings.Contains(got, "--- Context 1 ---") {
		t.Errorf("missing first block header:\n%s", got)
	}
	if !strings.Contains(got, "--- Context 2 ---") {
		t.Errorf("missing second block header:\n%s", got)
	}
	if !strings.Contains(got, "How to export data.") {
		t.Errorf("missing chunk text:\n%s", got)
	}
	if !strings.Contains(got, "[Source: help/export.md (markdown)]") {
		t.Errorf("missing source attribution:\n%s", got)
	}
	if strings.Contains(got, "Relevance") {
		t.Errorf("scores shown without WithScores():\n%s", got)
	}
}

func TestRetrieve_WithScores(t *testing.T) {
	idx := &stubSearcher{matches: []vectorindex.Match{
		match("data/a.md", "a.md", "text", 0.876),
	}}
	r := New(&stubEmbedder{vec: []float32{1}}, idx, log.NewNop())

	got, err := r.Retrieve(context.Background(), "q", WithScores())
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !strings.Contains(got, "--- Context 1 (Relevance: 0.88) ---") {
		t.Errorf("score not formatted to two decimals:\n%s", got)
	}
}

func TestRetrieve_OptionsPassedThrough(t *testing.T) {
	idx := &stubSearcher{}
	r := New(&stubEmbedder{vec: []float32{1}}, idx, log.NewNop())

	_, err := r.Retrieve(context.Background(), "q",
		WithTopK(7),
		WithFilter("category", "help"),
		WithFilter("doc_type", "markdown"))
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if idx.lastTopK != 7 {
		t.Errorf("topK = %d, want 7", idx.lastTopK)
	}
	if idx.lastFilter["category"] != "help" || idx.lastFilter["doc_type"] != "markdown" {
		t.Errorf("filters combined wrong: %v", idx.lastFilter)
	}
}

func TestSearchByDocType_FilterForwarded(t *testing.T) {
	idx := &stubSearcher{}
	r := New(&stubEmbedder{vec: []float32{1}}, idx, log.NewNop())

	if _, err := r.SearchByDocType(context.Background(), "q", "pdf"); err != nil {
		t.Fatalf("SearchByDocType() error = %v", err)
	}
	if idx.lastFilter["doc_type"] != "pdf" {
		t.Errorf("filter = %v, want doc_type=pdf", idx.lastFilter)
	}
}

func TestSearchByCategory_FilterForwarded(t *testing.T) {
	idx := &stubSearcher{}
	r := New(&stubEmbedder{vec: []float32{1}}, idx, log.NewNop())

	if _, err := r.SearchByCategory(context.Background(), "q", "blog"); err != nil {
		t.Fatalf("SearchByCategory() error = %v", err)
	}
	if idx.lastFilter["category"] != "blog" {
		t.Errorf("filter = %v, want category=blog", idx.lastFilter)
	}
}

func TestRelevantSources_DedupPreservesOrder(t *testing.T) {
	idx := &stubSearcher{matches: []vectorindex.Match{
		match("data/b.md", "b.md", "t1", 0.9),
		match("data/a.md", "a.md", "t2", 0.8),
		match("data/b.md", "b.md", "t3", 0.7),
		match("data/c.md", "c.md", "t4", 0.6),
	}}
	r := New(&stubEmbedder{vec: []float32{1}}, idx, log.NewNop())

	sources, err := r.RelevantSources(context.Background(), "q")
	if err != nil {
		t.Fatalf("RelevantSources() error = %v", err)
	}
	want := []string{"data/b.md", "data/a.md", "data/c.md"}
	if len(sources) != len(want) {
		t.Fatalf("sources = %v, want %v", sources, want)
	}
	for i := range want {
		if sources[i] != want[i] {
			t.Errorf("sources[%d] = %q, want %q", i, sources[i], want[i])
		}
	}
}

func TestRetrieve_EmbedErrorPropagates(t *testing.T) {
	r := New(&stubEmbedder{err: errors.New("quota exceeded")}, &stubSearcher{}, log.NewNop())

	if _, err := r.Retrieve(context.Background(), "q"); err == nil {
		t.Fatal("expected embed error")
	}
}

func TestRetrieve_SearchErrorPropagates(t *testing.T) {
	r := New(&stubEmbedder{vec: []float32{1}}, &stubSearcher{err: errors.New("index down")}, log.NewNop())

	if _, err := r.Retrieve(context.Background(), "q"); err == nil {
		t.Fatal("expected search error")
	}
}

func TestFormatContext_UnknownMetadata(t *testing.T) {
	matches := []vectorindex.Match{{ID: "x", Score: 0.5, Text: "orphan chunk"}}

	got := FormatContext(matches, false)
	if !strings.Contains(got, "[Source: other/Unknown (document)]") {
		t.Errorf("fallback attribution wrong:\n%s", got)
	}
}
