package splitter

import (
	"fmt"
	"strings"
	"testing"

	"docchat/internal/document"
	"docchat/internal/log"
)

func doc(content string, docType document.DocType, source string) document.Document {
	return document.Document{
		Content: content,
		Metadata: document.Metadata{
			Source:  source,
			DocType: docType,
		},
	}
}

func TestChunkDocuments_SmallDocSingleChunk(t *testing.T) {
	s := New(1000, 200, log.NewNop())

	input := strings.Repeat("a", 50)
	chunks := s.ChunkDocuments([]document.Document{doc(input, document.TypeOther, "data/a.txt")})

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Content != input {
		t.Errorf("content altered: %q", chunks[0].Content)
	}
	if chunks[0].Metadata.ChunkIndex != 0 {
		t.Errorf("ChunkIndex = %d, want 0", chunks[0].Metadata.ChunkIndex)
	}
	if chunks[0].Metadata.TotalChunks != 1 {
		t.Errorf("TotalChunks = %d, want 1", chunks[0].Metadata.TotalChunks)
	}
}

func TestChunkDocuments_DeterministicChunkCount(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		wantLen int
	}{
		{"under budget", 50, 1},
		{"exactly budget", 1000, 1},
		{"two windows plus remainder", 2000, 3},
	}

	s := New(1000, 200, log.NewNop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := strings.Repeat("a", tt.length)
			chunks := s.ChunkDocuments([]document.Document{doc(input, document.TypeOther, "data/a.txt")})
			if len(chunks) != tt.wantLen {
				t.Errorf("got %d chunks, want %d", len(chunks), tt.wantLen)
			}
		})
	}
}

func TestChunkDocuments_OverlapWindows(t *testing.T) {
	s := New(1000, 200, log.NewNop())

	// Distinct characters so window boundaries are checkable.
	var b strings.Builder
	for i := 0; i < 2000; i++ {
		b.WriteByte(byte('a' + i%26))
	}
	input := b.String()

	chunks := s.ChunkDocuments([]document.Document{doc(input, document.TypeOther, "data/a.txt")})
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0].Content != input[0:1000] {
		t.Error("first window wrong")
	}
	if chunks[1].Content != input[800:1800] {
		t.Error("second window does not start at size-overlap")
	}
	if chunks[2].Content != input[1600:] {
		t.Error("final window should keep the remainder")
	}
}

func TestChunkDocuments_IDsUniqueAcrossDocuments(t *testing.T) {
	s := New(100, 20, log.NewNop())

	docs := []document.Document{
		doc(strings.Repeat("x", 500), document.TypeOther, "data/one.txt"),
		doc(strings.Repeat("y", 500), document.TypeOther, "data/two.txt"),
		doc(strings.Repeat("z", 500), document.TypeOther, "data/one.txt"), // same source as first
	}
	chunks := s.ChunkDocuments(docs)
	if len(chunks) < 6 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}

	seen := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		id := c.Metadata.ChunkID
		if id == "" {
			t.Fatal("chunk with empty ID")
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate chunk ID %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestChunkDocuments_IDFormat(t *testing.T) {
	s := New(1000, 200, log.NewNop())

	chunks := s.ChunkDocuments([]document.Document{
		doc("hello", document.TypeOther, "data/a.txt"),
		doc("world", document.TypeOther, "data/b.txt"),
	})
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}

	want0 := fmt.Sprintf("chunk_%s_0_0", hash8("data/a.txt"))
	if chunks[0].Metadata.ChunkID != want0 {
		t.Errorf("first ID = %q, want %q", chunks[0].Metadata.ChunkID, want0)
	}
	// The trailing counter keeps incrementing across documents.
	want1 := fmt.Sprintf("chunk_%s_0_1", hash8("data/b.txt"))
	if chunks[1].Metadata.ChunkID != want1 {
		t.Errorf("second ID = %q, want %q", chunks[1].Metadata.ChunkID, want1)
	}
}

func TestChunkDocuments_ChunkIndexInvariants(t *testing.T) {
	s := New(100, 20, log.NewNop())

	chunks := s.ChunkDocuments([]document.Document{
		doc(strings.Repeat("m", 450), document.TypeOther, "data/a.txt"),
	})
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Metadata.ChunkIndex != i {
			t.Errorf("chunk %d: ChunkIndex = %d", i, c.Metadata.ChunkIndex)
		}
		if c.Metadata.TotalChunks != len(chunks) {
			t.Errorf("chunk %d: TotalChunks = %d, want %d", i, c.Metadata.TotalChunks, len(chunks))
		}
	}
}

func TestSplitMarkdown_HeaderSections(t *testing.T) {
	s := New(1000, 200, log.NewNop())

	text := "# Intro\nwelcome\n\n## Usage\nrun the tool\n\n### Details\nfine print"
	chunks := s.ChunkDocuments([]document.Document{doc(text, document.TypeMarkdown, "docs/guide.md")})

	if len(chunks) != 3 {
		t.Fatalf("expected 3 header sections, got %d: %#v", len(chunks), chunks)
	}
	if !strings.HasPrefix(chunks[0].Content, "# Intro") {
		t.Errorf("first section = %q", chunks[0].Content)
	}
	if !strings.HasPrefix(chunks[1].Content, "## Usage") {
		t.Errorf("second section = %q", chunks[1].Content)
	}
	if !strings.HasPrefix(chunks[2].Content, "### Details") {
		t.Errorf("third section = %q", chunks[2].Content)
	}
}

func TestSplitMarkdown_HeadersInsideCodeFence(t *testing.T) {
	s := New(1000, 200, log.NewNop())

	text := "# Doc\nbefore\n```\n# not a header\n```\nafter"
	chunks := s.ChunkDocuments([]document.Document{doc(text, document.TypeMarkdown, "docs/fence.md")})

	if len(chunks) != 1 {
		t.Fatalf("fenced header must not split: got %d chunks", len(chunks))
	}
}

func TestSplitMarkdown_NoHeadersFallsBack(t *testing.T) {
	s := New(100, 20, log.NewNop())

	text := strings.Repeat("plain paragraph text. ", 20)
	chunks := s.ChunkDocuments([]document.Document{doc(text, document.TypeMarkdown, "docs/plain.md")})

	if len(chunks) < 2 {
		t.Fatalf("expected recursive split, got %d chunks", len(chunks))
	}
	for _, c := range chunks {
		if len(c.Content) > 100 {
			t.Errorf("chunk exceeds budget: %d chars", len(c.Content))
		}
	}
}

func TestMergeFragments_LargeOverlapStaysWithinBudget(t *testing.T) {
	// An overlap close to the chunk size must not let the retained
	// tail plus the next fragment overflow the budget.
	s := New(10, 9, log.NewNop())

	chunks := s.ChunkDocuments([]document.Document{
		doc("aaaa bbbb cccc dddd", document.TypeOther, "data/tight.txt"),
	})
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c.Content) > 10 {
			t.Errorf("chunk %d exceeds budget: %q (%d chars)", i, c.Content, len(c.Content))
		}
	}
}

func TestChunkDocuments_WhitespaceDocKept(t *testing.T) {
	s := New(1000, 200, log.NewNop())

	chunks := s.ChunkDocuments([]document.Document{doc("   \n  ", document.TypeOther, "data/blank.txt")})
	if len(chunks) != 1 {
		t.Fatalf("document must never vanish: got %d chunks", len(chunks))
	}
	if chunks[0].Content != "   \n  " {
		t.Errorf("fallback chunk altered: %q", chunks[0].Content)
	}
}

func TestChunkDocuments_JSONSeparators(t *testing.T) {
	s := New(120, 20, log.NewNop())

	var b strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "{\n  \"id\": %d,\n  \"name\": \"record number %d\"\n},\n", i, i)
	}
	chunks := s.ChunkDocuments([]document.Document{doc(b.String(), document.TypeJSON, "data/records.json")})

	if len(chunks) < 2 {
		t.Fatalf("expected object-boundary split, got %d chunks", len(chunks))
	}
}

func TestNew_ClampsParameters(t *testing.T) {
	s := New(0, -1, nil)
	if s.chunkSize != DefaultChunkSize {
		t.Errorf("chunkSize = %d, want default", s.chunkSize)
	}
	if s.chunkOverlap != DefaultChunkOverlap {
		t.Errorf("chunkOverlap = %d, want default", s.chunkOverlap)
	}

	s = New(100, 150, nil)
	if s.chunkOverlap >= s.chunkSize {
		t.Errorf("overlap %d not clamped below size %d", s.chunkOverlap, s.chunkSize)
	}
}
