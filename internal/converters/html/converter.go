// Package html converts HTML documents (such as saved registry pages) into
// Markdown-flavoured text. Scripts, styles and tags are stripped; headings
// become Markdown headings so sections survive.
package html

import (
	"context"
	"html"
	"regexp"
	"strings"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
)

// Ensure Converter implements the interface.
var _ driven.Converter = (*Converter)(nil)

// Converter handles HTML documents.
type Converter struct{}

// New creates a new HTML converter.
func New() *Converter {
	return &Converter{}
}

// SupportedExtensions returns the extensions this converter handles.
func (c *Converter) SupportedExtensions() []string {
	return []string{".html", ".htm"}
}

// Priority returns the selection priority.
func (c *Converter) Priority() int {
	return 50 // Generic converter, higher than plaintext
}

// Convert strips markup and returns readable text.
func (c *Converter) Convert(_ context.Context, path string, content []byte) (*domain.ConvertedDocument, error) {
	if content == nil {
		return nil, &domain.ConversionError{Path: path, Err: domain.ErrInvalidInput}
	}

	raw := string(content)
	text := stripHTML(raw)
	if title := extractTitle(raw); title != "" && !strings.HasPrefix(text, "# ") {
		text = "# " + title + "\n\n" + text
	}

	return &domain.ConvertedDocument{
		Text:      text,
		PageCount: 1,
		Format:    "markdown",
	}, nil
}

// Pre-compiled regular expressions for HTML parsing performance.
var (
	titleTag          = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	scriptTag         = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag          = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptTag       = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	headTag           = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	svgTag            = regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`)
	htmlComments      = regexp.MustCompile(`(?s)<!--.*?-->`)
	headingTags       = regexp.MustCompile(`(?is)<h([1-6])[^>]*>(.*?)</h[1-6]>`)
	blockElements     = regexp.MustCompile(`(?i)</(p|div|br|hr|li|tr|blockquote|pre|table|section|article)>`)
	openBlockElements = regexp.MustCompile(`(?i)<(p|div|li|tr|blockquote|pre|table|section|article)[^>]*>`)
	cellTags          = regexp.MustCompile(`(?i)</t[dh]>`)
	brTags            = regexp.MustCompile(`(?i)<br\s*/?>`)
	hrTags            = regexp.MustCompile(`(?i)<hr\s*/?>`)
	allTags           = regexp.MustCompile(`<[^>]+>`)
	multiSpaces       = regexp.MustCompile(`[ \t]+`)
)

func extractTitle(content string) string {
	matches := titleTag.FindStringSubmatch(content)
	if len(matches) > 1 {
		return strings.TrimSpace(html.UnescapeString(matches[1]))
	}
	return ""
}

// stripHTML removes HTML tags and extracts readable text content.
func stripHTML(content string) string {
	// Remove script, style, noscript, head, and svg tags entirely
	content = scriptTag.ReplaceAllString(content, "")
	content = styleTag.ReplaceAllString(content, "")
	content = noscriptTag.ReplaceAllString(content, "")
	content = headTag.ReplaceAllString(content, "")
	content = svgTag.ReplaceAllString(content, "")
	content = htmlComments.ReplaceAllString(content, "")

	content = headingTags.ReplaceAllStringFunc(content, func(m string) string {
		parts := headingTags.FindStringSubmatch(m)
		level := int(parts[1][0] - '0')
		inner := strings.TrimSpace(allTags.ReplaceAllString(parts[2], ""))
		return "\n" + strings.Repeat("#", level) + " " + inner + "\n"
	})

	content = openBlockElements.ReplaceAllString(content, "\n")
	content = blockElements.ReplaceAllString(content, "\n")
	content = cellTags.ReplaceAllString(content, " | ")
	content = brTags.ReplaceAllString(content, "\n")
	content = hrTags.ReplaceAllString(content, "\n")
	content = allTags.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = multiSpaces.ReplaceAllString(content, " ")

	// Trim each line and remove empty lines
	lines := strings.Split(content, "\n")
	var result []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimSuffix(line, " |")
		if line != "" {
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}
