// Package markdown converts Markdown files, keeping headings so chunks can be
// attributed to sections.
package markdown

import (
	"context"
	"regexp"
	"strings"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
)

// Ensure Converter implements the interface.
var _ driven.Converter = (*Converter)(nil)

// Converter handles Markdown documents.
type Converter struct{}

// New creates a new Markdown converter.
func New() *Converter {
	return &Converter{}
}

// SupportedExtensions returns the extensions this converter handles.
func (c *Converter) SupportedExtensions() []string {
	return []string{".md", ".markdown"}
}

// Priority returns the selection priority.
func (c *Converter) Priority() int {
	return 50 // Generic converter, higher than plaintext
}

// Convert returns the document as cleaned-up Markdown.
// Page breaks exported by PDF-to-Markdown tools (form feeds or
// <!-- pagebreak --> markers) are normalised to form feeds.
func (c *Converter) Convert(_ context.Context, path string, content []byte) (*domain.ConvertedDocument, error) {
	if content == nil {
		return nil, &domain.ConversionError{Path: path, Err: domain.ErrInvalidInput}
	}

	text := Clean(string(content))
	return &domain.ConvertedDocument{
		Text:      text,
		PageCount: strings.Count(text, "\f") + 1,
		Format:    "markdown",
	}, nil
}

// Pre-compiled regular expressions for Markdown clean-up.
var (
	pageBreaks    = regexp.MustCompile(`(?i)<!--\s*page\s*-?break\s*-->`)
	htmlComments  = regexp.MustCompile(`(?s)<!--.*?-->`)
	images        = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	links         = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	trailingSpace = regexp.MustCompile(`(?m)[ \t]+$`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// Clean simplifies Markdown for extraction. Headings, tables and emphasis are
// kept since they carry meaning for the model; links and image references
// are reduced to their text.
func Clean(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = pageBreaks.ReplaceAllString(content, "\f")
	content = htmlComments.ReplaceAllString(content, "")
	content = images.ReplaceAllString(content, "$1")
	content = links.ReplaceAllString(content, "$1")
	content = trailingSpace.ReplaceAllString(content, "")
	content = multiNewlines.ReplaceAllString(content, "\n\n")
	return strings.Trim(content, " \n")
}
