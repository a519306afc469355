package driven

import (
	"context"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
)

// Converter turns a source file into text and images.
// Each converter handles specific file extensions (e.g., .pdf, .md).
type Converter interface {
	// SupportedExtensions returns lower-case extensions including the dot.
	SupportedExtensions() []string

	// Priority returns the selection priority (higher = preferred).
	Priority() int

	// Convert produces the text and images of a file.
	// Failures are returned as *domain.ConversionError.
	Convert(ctx context.Context, path string, content []byte) (*domain.ConvertedDocument, error)
}

// DocumentConverter converts a file by path, choosing a Converter by extension.
type DocumentConverter interface {
	Convert(ctx context.Context, path string) (*domain.ConvertedDocument, error)

	// Supports reports whether any converter handles the path's extension.
	Supports(path string) bool
}
