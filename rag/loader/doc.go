// Package loader extracts text from knowledge files for the RAG pipeline.
//
// Supported formats out of the box:
//   - Plain text (.txt)
//   - Markdown (.md, .markdown)
//   - PDF (.pdf, text layer only)
//
// Use Registry to route loading by file extension:
//
//	registry := loader.NewRegistry()
//	doc, err := registry.Load(ctx, "knowledge/faq.md")
//
// Custom loaders can be registered for any extension:
//
//	registry.Register(".html", myHTMLLoader)
package loader
