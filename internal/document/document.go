// Package document defines the document model shared by the ingestion
// pipeline and provides the filesystem loader for the supported source
// formats (markdown, PDF, JSON).
package document

import "fmt"

// DocType identifies the source format of a document.
type DocType string

// Supported document types.
const (
	TypeMarkdown DocType = "markdown"
	TypePDF      DocType = "pdf"
	TypeJSON     DocType = "json"
	TypeOther    DocType = "other"
)

// Category identifies the content corpus a document belongs to.
type Category string

// Supported categories.
const (
	CategoryBlog  Category = "blog"
	CategoryHelp  Category = "help"
	CategoryOther Category = "other"
)

// Metadata carries the structured attributes of a document or chunk.
// Fields that may legitimately be absent use their zero value as the
// absent marker: Filename is empty for markdown sources, Page is zero
// for non-PDF sources, and the chunk fields are populated only by the
// splitter.
type Metadata struct {
	Source   string   `json:"source"`
	DocType  DocType  `json:"doc_type"`
	Category Category `json:"category"`
	Filename string   `json:"filename,omitempty"`
	Page     int      `json:"page,omitempty"`

	// Chunk provenance, set by splitter.ChunkDocuments.
	ChunkID     string `json:"chunk_id,omitempty"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks,omitempty"`
}

// Document is a unit of ingested text. After splitting, a Document is a
// chunk: a bounded substring of its parent carrying chunk provenance in
// its metadata.
type Document struct {
	Content  string
	Metadata Metadata
}

// SourceLabel returns a short human-readable attribution for the
// document, e.g. "help/export.md (markdown)".
func (d Document) SourceLabel() string {
	name := d.Metadata.Filename
	if name == "" {
		name = baseName(d.Metadata.Source)
	}
	category := d.Metadata.Category
	if category == "" {
		category = CategoryOther
	}
	docType := d.Metadata.DocType
	if docType == "" {
		docType = TypeOther
	}
	return fmt.Sprintf("%s/%s (%s)", category, name, docType)
}

func baseName(path string) string {
	if path == "" {
		return "unknown"
	}
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
