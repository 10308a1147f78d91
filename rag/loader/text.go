package loader

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// TextLoader loads plain text files.
type TextLoader struct{}

// NewTextLoader creates a TextLoader.
func NewTextLoader() *TextLoader {
	return &TextLoader{}
}

// Load reads a text file.
func (l *TextLoader) Load(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("text loader: %w", err)
	}
	return Document{Path: path, Type: fileType(path), Text: string(data)}, nil
}

// SupportedTypes returns the extensions handled by TextLoader.
func (l *TextLoader) SupportedTypes() []string {
	return []string{".txt"}
}

// MarkdownLoader loads Markdown files verbatim. Markup is stripped later by
// rag.Preprocess so the stored main record keeps the original text.
type MarkdownLoader struct{}

// NewMarkdownLoader creates a MarkdownLoader.
func NewMarkdownLoader() *MarkdownLoader {
	return &MarkdownLoader{}
}

// Load reads a Markdown file, dropping a leading YAML front matter block.
func (l *MarkdownLoader) Load(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("markdown loader: %w", err)
	}
	return Document{Path: path, Type: fileType(path), Text: stripFrontMatter(string(data))}, nil
}

// SupportedTypes returns the extensions handled by MarkdownLoader.
func (l *MarkdownLoader) SupportedTypes() []string {
	return []string{".md", ".markdown"}
}

func stripFrontMatter(s string) string {
	if !strings.HasPrefix(s, "---\n") {
		return s
	}
	end := strings.Index(s[4:], "\n---")
	if end < 0 {
		return s
	}
	rest := s[4+end+len("\n---"):]
	return strings.TrimLeft(rest, "\r\n")
}
