// Package image passes standalone image files (maps, scanned deeds) through
// as a single image with no text, for multimodal extraction.
package image

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
)

// maxImageBytes bounds a single image; larger files are rejected.
const maxImageBytes = 5 << 20

// Ensure Converter implements the interface.
var _ driven.Converter = (*Converter)(nil)

// Converter handles raster image files.
type Converter struct{}

// New creates a new image converter.
func New() *Converter {
	return &Converter{}
}

// SupportedExtensions returns the extensions this converter handles.
func (c *Converter) SupportedExtensions() []string {
	return []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}
}

// Priority returns the selection priority.
func (c *Converter) Priority() int {
	return 50
}

// Convert returns the file as one image on page 1. The media type is sniffed
// from the content, not taken from the extension.
func (c *Converter) Convert(_ context.Context, path string, content []byte) (*domain.ConvertedDocument, error) {
	if len(content) == 0 {
		return nil, &domain.ConversionError{Path: path, Err: domain.ErrInvalidInput}
	}
	if len(content) > maxImageBytes {
		return nil, &domain.ConversionError{Path: path, Err: fmt.Errorf("%w: image larger than %d bytes", domain.ErrInvalidInput, maxImageBytes)}
	}

	sniffed := http.DetectContentType(content)
	if !strings.HasPrefix(sniffed, "image/") {
		return nil, &domain.ConversionError{Path: path, Err: fmt.Errorf("%w: content is %s", domain.ErrUnsupportedType, sniffed)}
	}

	return &domain.ConvertedDocument{
		Images:    []domain.Image{{MediaType: sniffed, Data: content, Page: 1}},
		PageCount: 1,
		Format:    "text",
	}, nil
}
