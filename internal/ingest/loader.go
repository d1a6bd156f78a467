package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

const headerDisplayLength = 100

// Page is one unit of source text before chunking. Non-paginated formats
// produce a single page numbered 1.
type Page struct {
	Number int
	Header string
	Text   string
}

// Document is a loaded source ready for chunking.
type Document struct {
	Filename string
	Pages    []Page
}

var textExtensions = map[string]bool{
	".txt": true,
	".md":  true,
	".csv": true,
}

// Eligible reports whether the file can be ingested, by extension first and
// by content sniffing for files without a known one.
func Eligible(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".pdf" || textExtensions[ext] {
		return true
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return false
	}
	return mt.Is("text/plain") || mt.Is("application/pdf")
}

// LoadFile reads a source file into pages.
func LoadFile(path string) (*Document, error) {
	name := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(path))

	if ext == ".pdf" {
		return loadPDF(path, name)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return &Document{
		Filename: name,
		Pages:    []Page{{Number: 1, Header: headerFor(string(data), stem), Text: string(data)}},
	}, nil
}

// loadPDF extracts text page by page. Pages that cannot be read are skipped
// rather than failing the document.
func loadPDF(path, name string) (*Document, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf %s: %w", name, err)
	}
	defer f.Close()

	doc := &Document{Filename: name}
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		doc.Pages = append(doc.Pages, Page{
			Number: i,
			Header: headerFor(text, fmt.Sprintf("Page %d", i)),
			Text:   text,
		})
	}
	return doc, nil
}

// headerFor derives a section label from the first non-empty line,
// truncated for display, falling back to the given label.
func headerFor(text, fallback string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		runes := []rune(line)
		if len(runes) > headerDisplayLength {
			return string(runes[:headerDisplayLength]) + "..."
		}
		return line
	}
	return fallback
}
