package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrUnsupportedType is returned for files whose extension has no loader.
var ErrUnsupportedType = errors.New("loader: unsupported file type")

// Document is the text extracted from one knowledge file.
type Document struct {
	// Path is the source path as given to Load.
	Path string
	// Type is the extension without the dot ("md", "txt", "pdf").
	Type string
	Text string
}

// DocumentLoader reads one file format.
type DocumentLoader interface {
	Load(ctx context.Context, path string) (Document, error)

	// SupportedTypes returns the file extensions this loader handles (e.g. ".txt", ".md").
	SupportedTypes() []string
}

// Registry routes Load calls to the appropriate DocumentLoader based on file extension.
type Registry struct {
	mu      sync.RWMutex
	loaders map[string]DocumentLoader // extension (lowercase, with dot) -> loader
}

// NewRegistry creates a registry pre-populated with the text, markdown and PDF loaders.
func NewRegistry() *Registry {
	r := &Registry{
		loaders: make(map[string]DocumentLoader),
	}
	for _, l := range []DocumentLoader{NewTextLoader(), NewMarkdownLoader(), NewPDFLoader()} {
		for _, ext := range l.SupportedTypes() {
			r.loaders[strings.ToLower(ext)] = l
		}
	}
	return r
}

// Register adds or replaces a loader for the given file extension.
// ext should include the leading dot (e.g. ".html").
func (r *Registry) Register(ext string, loader DocumentLoader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[strings.ToLower(ext)] = loader
}

// Supports reports whether path has a registered extension.
func (r *Registry) Supports(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.loaders[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Load determines the loader from the file extension and delegates to it.
func (r *Registry) Load(ctx context.Context, path string) (Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return Document{}, fmt.Errorf("%w: %q has no extension", ErrUnsupportedType, path)
	}

	r.mu.RLock()
	l, ok := r.loaders[ext]
	r.mu.RUnlock()
	if !ok {
		return Document{}, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	return l.Load(ctx, path)
}

// SupportedTypes returns all registered extensions, sorted.
func (r *Registry) SupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func fileType(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}
