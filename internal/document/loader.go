package document

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Loader reads documents from the configured source directories.
// A missing directory is treated the same as an empty one: zero
// documents for that source, not an error.
type Loader struct {
	blogDir string
	helpDir string
	pdfDir  string
	jsonDir string
	logger  *slog.Logger
}

// NewLoader creates a Loader for the four document roots.
func NewLoader(blogDir, helpDir, pdfDir, jsonDir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		blogDir: blogDir,
		helpDir: helpDir,
		pdfDir:  pdfDir,
		jsonDir: jsonDir,
		logger:  logger,
	}
}

// LoadAll loads every supported document from all configured roots.
// Markdown files are tagged with their category, PDFs produce one
// document per page, and each JSON file becomes a single document
// containing its pretty-printed content.
func (l *Loader) LoadAll(ctx context.Context) ([]Document, error) {
	blogDocs, err := l.loadMarkdown(ctx, l.blogDir, CategoryBlog)
	if err != nil {
		return nil, fmt.Errorf("loading blog markdown: %w", err)
	}

	helpDocs, err := l.loadMarkdown(ctx, l.helpDir, CategoryHelp)
	if err != nil {
		return nil, fmt.Errorf("loading help markdown: %w", err)
	}

	pdfDocs, err := l.loadPDF(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading pdf: %w", err)
	}

	jsonDocs, err := l.loadJSON(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading json: %w", err)
	}

	docs := make([]Document, 0, len(blogDocs)+len(helpDocs)+len(pdfDocs)+len(jsonDocs))
	docs = append(docs, blogDocs...)
	docs = append(docs, helpDocs...)
	docs = append(docs, pdfDocs...)
	docs = append(docs, jsonDocs...)

	l.logger.Info("loaded documents",
		"blog", len(blogDocs),
		"help", len(helpDocs),
		"pdf_pages", len(pdfDocs),
		"json", len(jsonDocs),
		"total", len(docs))

	return docs, nil
}

// loadMarkdown recursively reads all *.md files under root.
func (l *Loader) loadMarkdown(ctx context.Context, root string, category Category) ([]Document, error) {
	if _, err := os.Stat(root); err != nil {
		l.logger.Debug("markdown directory not available", "dir", root, "category", category)
		return nil, nil
	}

	var docs []Document
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		docs = append(docs, Document{
			Content: string(content),
			Metadata: Metadata{
				Source:   path,
				DocType:  TypeMarkdown,
				Category: category,
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// loadPDF reads every *.pdf in the PDF directory, producing one
// document per page.
func (l *Loader) loadPDF(ctx context.Context) ([]Document, error) {
	entries, err := os.ReadDir(l.pdfDir)
	if err != nil {
		l.logger.Debug("pdf directory not available", "dir", l.pdfDir)
		return nil, nil
	}

	var docs []Document
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}

		path := filepath.Join(l.pdfDir, entry.Name())
		pages, err := extractPDFPages(path)
		if err != nil {
			return nil, fmt.Errorf("extracting %s: %w", path, err)
		}

		for i, text := range pages {
			docs = append(docs, Document{
				Content: text,
				Metadata: Metadata{
					Source:   path,
					DocType:  TypePDF,
					Filename: entry.Name(),
					Page:     i + 1,
				},
			})
		}
	}
	return docs, nil
}

// loadJSON reads every *.json in the JSON directory. A file that fails
// to parse is skipped with a warning; loading continues.
func (l *Loader) loadJSON(ctx context.Context) ([]Document, error) {
	entries, err := os.ReadDir(l.jsonDir)
	if err != nil {
		l.logger.Debug("json directory not available", "dir", l.jsonDir)
		return nil, nil
	}

	var docs []Document
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
			continue
		}

		path := filepath.Join(l.jsonDir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			l.logger.Warn("skipping unreadable json file", "file", path, "error", err)
			continue
		}

		var data any
		if err := json.Unmarshal(raw, &data); err != nil {
			l.logger.Warn("skipping malformed json file", "file", path, "error", err)
			continue
		}

		pretty, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			l.logger.Warn("skipping json file", "file", path, "error", err)
			continue
		}

		docs = append(docs, Document{
			Content: string(pretty),
			Metadata: Metadata{
				Source:   path,
				DocType:  TypeJSON,
				Filename: entry.Name(),
			},
		})
	}
	return docs, nil
}

// extractPDFPages returns the plain text of each page in order.
func extractPDFPages(path string) ([]string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}
