// Package plaintext converts plain text and other text-like files.
package plaintext

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
)

// Ensure Converter implements the interface.
var _ driven.Converter = (*Converter)(nil)

// Converter handles plain text documents.
type Converter struct{}

// New creates a new plain text converter.
func New() *Converter {
	return &Converter{}
}

// SupportedExtensions returns the extensions this converter handles.
func (c *Converter) SupportedExtensions() []string {
	return []string{".txt", ".text", ".csv", ".tsv", ".json", ".yaml", ".yml", ".xml", ".geojson", ".kml"}
}

// Priority returns the selection priority.
func (c *Converter) Priority() int {
	return 5 // Fallback converter
}

// Convert returns the file content as text. Binary content is rejected.
func (c *Converter) Convert(_ context.Context, path string, content []byte) (*domain.ConvertedDocument, error) {
	if content == nil {
		return nil, &domain.ConversionError{Path: path, Err: domain.ErrInvalidInput}
	}
	if !utf8.Valid(content) {
		return nil, &domain.ConversionError{Path: path, Err: domain.ErrUnsupportedType}
	}

	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	return &domain.ConvertedDocument{
		Text:      strings.TrimSpace(text),
		PageCount: strings.Count(text, "\f") + 1,
		Format:    "text",
	}, nil
}
