package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Registry Tests
// ============================================================

func TestNewRegistry_HasBuiltinLoaders(t *testing.T) {
	t.Parallel()

	types := NewRegistry().SupportedTypes()
	assert.Equal(t, []string{".markdown", ".md", ".pdf", ".txt"}, types)
}

func TestRegistry_Register_CustomLoader(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(".XML", NewTextLoader())

	assert.Contains(t, r.SupportedTypes(), ".xml")
	assert.True(t, r.Supports("data/feed.xml"))
}

func TestRegistry_Load_Errors(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, err := r.Load(context.Background(), "noextension")
	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.Contains(t, err.Error(), "no extension")

	_, err = r.Load(context.Background(), "file.xyz")
	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.False(t, r.Supports("file.xyz"))
}

func TestRegistry_Load_CaseInsensitive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "NOTES.TXT")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	doc, err := NewRegistry().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.Text)
	assert.Equal(t, "txt", doc.Type)
	assert.Equal(t, path, doc.Path)
}

// ============================================================
// Loader Tests
// ============================================================

func TestMarkdownLoader_StripsFrontMatter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "guide.md")
	content := "---\ntitle: Guide\n---\n# Heading\n\nBody text."
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	doc, err := NewMarkdownLoader().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "# Heading\n\nBody text.", doc.Text)
	assert.Equal(t, "md", doc.Type)
}

func TestStripFrontMatter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, in, want string
	}{
		{"none", "# Title", "# Title"},
		{"unterminated", "---\ntitle: x\n", "---\ntitle: x\n"},
		{"terminated", "---\na: 1\n---\nbody", "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFrontMatter(tt.in))
		})
	}
}

func TestTextLoader_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewTextLoader().Load(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestPDFLoader_InvalidFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("not a pdf"), 0o644))

	_, err := NewPDFLoader().Load(context.Background(), path)
	assert.Error(t, err)
}

func TestLoaders_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, l := range []DocumentLoader{NewTextLoader(), NewMarkdownLoader(), NewPDFLoader()} {
		_, err := l.Load(ctx, "whatever")
		assert.ErrorIs(t, err, context.Canceled)
	}
}
