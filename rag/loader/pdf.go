package loader

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFLoader extracts the plain text layer of PDF files. Scanned PDFs without
// a text layer yield an empty document.
type PDFLoader struct{}

// NewPDFLoader creates a PDFLoader.
func NewPDFLoader() *PDFLoader {
	return &PDFLoader{}
}

// Load extracts the text of every page.
func (l *PDFLoader) Load(ctx context.Context, path string) (doc Document, err error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	// 损坏的 PDF 可能让解析器 panic
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf loader: %s: malformed pdf: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("pdf loader: %w", err)
	}
	defer f.Close()

	text, err := r.GetPlainText()
	if err != nil {
		return Document{}, fmt.Errorf("pdf loader: %s: %w", path, err)
	}
	var b strings.Builder
	if _, err := io.Copy(&b, text); err != nil {
		return Document{}, fmt.Errorf("pdf loader: %s: %w", path, err)
	}
	return Document{Path: path, Type: fileType(path), Text: b.String()}, nil
}

// SupportedTypes returns the extensions handled by PDFLoader.
func (l *PDFLoader) SupportedTypes() []string {
	return []string{".pdf"}
}
