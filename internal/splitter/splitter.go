// Package splitter turns loaded documents into bounded, overlapping
// text chunks ready for embedding.
//
// Markdown documents are split at header boundaries first so that
// sections stay intact; oversized sections and all other document
// types go through a recursive separator cascade (paragraph, line,
// sentence, word, character). Every chunk receives a corpus-unique ID
// derived from its source path, its position within the parent
// document, and a counter that spans the whole run.
package splitter

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"docchat/internal/document"
)

// Default chunking parameters, matching the retrieval context budget.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// textSeparators is the generic separator cascade: paragraph, line,
// sentence, word, then character.
var textSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// jsonSeparators favors object boundaries before whitespace.
var jsonSeparators = []string{"},\n", "\n", ", ", " ", ""}

// Splitter splits documents into chunks of at most chunkSize
// characters with chunkOverlap characters shared between consecutive
// chunks.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	logger       *slog.Logger
}

// New creates a Splitter. Non-positive size or overlap fall back to
// the defaults; overlap is clamped below chunk size.
func New(chunkSize, chunkOverlap int, logger *slog.Logger) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		logger:       logger,
	}
}

// ChunkDocuments splits each document with a strategy chosen by its
// type and stamps every chunk with provenance metadata. Chunk IDs are
// unique across the whole call: the trailing counter increments once
// per chunk regardless of which document it came from.
func (s *Splitter) ChunkDocuments(docs []document.Document) []document.Document {
	var all []document.Document
	globalCounter := 0

	for i, doc := range docs {
		var pieces []string
		switch doc.Metadata.DocType {
		case document.TypeMarkdown:
			pieces = s.splitMarkdown(doc.Content)
		case document.TypeJSON:
			pieces = s.splitRecursive(doc.Content, jsonSeparators)
		default:
			pieces = s.splitRecursive(doc.Content, textSeparators)
		}

		// A document must never vanish: if splitting produced
		// nothing, keep the original content as a single chunk.
		if len(pieces) == 0 {
			pieces = []string{doc.Content}
		}

		source := doc.Metadata.Source
		if source == "" {
			source = fmt.Sprintf("unknown_%d", i)
		}
		prefix := hash8(source)

		for j, piece := range pieces {
			meta := doc.Metadata
			meta.ChunkIndex = j
			meta.TotalChunks = len(pieces)
			meta.ChunkID = fmt.Sprintf("chunk_%s_%d_%d", prefix, j, globalCounter)
			globalCounter++

			all = append(all, document.Document{
				Content:  piece,
				Metadata: meta,
			})
		}
	}

	s.logger.Info("split documents into chunks",
		"documents", len(docs),
		"chunks", len(all))
	return all
}

// splitMarkdown splits at header boundaries (levels 1-3) first and
// pushes oversized sections through the recursive splitter. When no
// headers are found the whole document falls back to the recursive
// splitter.
func (s *Splitter) splitMarkdown(text string) []string {
	sections := splitByHeaders(text)
	if len(sections) <= 1 {
		return s.splitRecursive(text, textSeparators)
	}

	var chunks []string
	for _, section := range sections {
		if len(section) > s.chunkSize {
			chunks = append(chunks, s.splitRecursive(section, textSeparators)...)
		} else if strings.TrimSpace(section) != "" {
			chunks = append(chunks, section)
		}
	}
	return chunks
}

// splitByHeaders splits markdown at lines starting with 1-3 '#'
// characters. Headers inside fenced code blocks are ignored.
func splitByHeaders(text string) []string {
	lines := strings.Split(text, "\n")

	var sections []string
	var current []string
	inFence := false

	flush := func() {
		if len(current) > 0 {
			sections = append(sections, strings.Join(current, "\n"))
			current = nil
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
		}
		if !inFence && isHeader(trimmed) {
			flush()
		}
		current = append(current, line)
	}
	flush()

	return sections
}

// isHeader reports whether the line is a level 1-3 markdown header.
func isHeader(line string) bool {
	for _, prefix := range []string{"# ", "## ", "### "} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// splitRecursive splits text using the first separator from the
// cascade that appears in it, recursing into longer fragments with
// the remaining separators, then merges fragments back into chunks of
// at most chunkSize with chunkOverlap carried between neighbors.
func (s *Splitter) splitRecursive(text string, separators []string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if len(text) <= s.chunkSize {
		return []string{text}
	}

	sep, rest := pickSeparator(text, separators)
	if sep == "" {
		return s.slideWindow(text)
	}

	parts := strings.Split(text, sep)

	// Fragments still over budget recurse with the remaining cascade.
	var fragments []string
	for _, part := range parts {
		if len(part) > s.chunkSize {
			fragments = append(fragments, s.splitRecursive(part, rest)...)
		} else {
			fragments = append(fragments, part)
		}
	}

	return s.mergeFragments(fragments, sep)
}

// pickSeparator returns the first separator present in text and the
// cascade remaining after it. The empty separator always matches.
func pickSeparator(text string, separators []string) (string, []string) {
	for i, sep := range separators {
		if sep == "" {
			return "", nil
		}
		if strings.Contains(text, sep) {
			return sep, separators[i+1:]
		}
	}
	return "", nil
}

// slideWindow is the character-level base case: fixed-size windows
// advancing by chunkSize-chunkOverlap.
func (s *Splitter) slideWindow(text string) []string {
	step := s.chunkSize - s.chunkOverlap
	var chunks []string
	for start := 0; start < len(text); start += step {
		end := start + s.chunkSize
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}
		chunks = append(chunks, text[start:end])
	}
	return chunks
}

// mergeFragments greedily packs fragments (re-joined with sep) into
// chunks of at most chunkSize, keeping a tail of up to chunkOverlap
// characters as the start of the next chunk.
func (s *Splitter) mergeFragments(fragments []string, sep string) []string {
	var chunks []string
	var window []string
	windowLen := 0

	joinLen := func(n int, addition int) int {
		total := windowLen + addition
		if n > 0 {
			total += len(sep) * n
		}
		return total
	}

	emit := func() {
		if len(window) == 0 {
			return
		}
		chunk := strings.Join(window, sep)
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
	}

	for _, frag := range fragments {
		if len(window) > 0 && joinLen(len(window), len(frag)) > s.chunkSize {
			emit()
			// Retain the overlap tail for the next chunk, shrinking it
			// further if the tail plus the fragment would overflow.
			for len(window) > 0 && (windowLen > s.chunkOverlap || joinLen(len(window), len(frag)) > s.chunkSize) {
				windowLen -= len(window[0])
				window = window[1:]
			}
		}
		window = append(window, frag)
		windowLen += len(frag)
	}
	emit()

	return chunks
}

// hash8 is a short deterministic hash of the source path used as the
// chunk ID prefix. Collisions are tolerable: the trailing global
// counter keeps IDs unique regardless.
func hash8(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:4])
}
