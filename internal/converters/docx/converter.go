// Package docx converts Word documents into Markdown, mapping heading styles
// to Markdown headings and explicit page breaks to form feeds.
package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
)

// Ensure Converter implements the interface.
var _ driven.Converter = (*Converter)(nil)

// Converter handles DOCX documents.
type Converter struct{}

// New creates a new DOCX converter.
func New() *Converter {
	return &Converter{}
}

// SupportedExtensions returns the extensions this converter handles.
func (c *Converter) SupportedExtensions() []string {
	return []string{".docx"}
}

// Priority returns the selection priority.
func (c *Converter) Priority() int {
	return 50
}

// Convert extracts the body text, images from word/media, and a title from
// docProps/core.xml when present.
func (c *Converter) Convert(_ context.Context, path string, content []byte) (*domain.ConvertedDocument, error) {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, &domain.ConversionError{Path: path, Err: fmt.Errorf("%w: not a zip archive", domain.ErrUnsupportedType)}
	}

	body, err := readZipFile(reader, "word/document.xml")
	if err != nil {
		return nil, &domain.ConversionError{Path: path, Err: err}
	}
	if body == nil {
		return nil, &domain.ConversionError{Path: path, Err: fmt.Errorf("%w: missing word/document.xml", domain.ErrUnsupportedType)}
	}

	text, pages, err := parseDocumentXML(body)
	if err != nil {
		return nil, &domain.ConversionError{Path: path, Err: err}
	}
	if title := extractTitle(reader); title != "" && !strings.HasPrefix(text, "# ") {
		text = "# " + title + "\n\n" + text
	}

	return &domain.ConvertedDocument{
		Text:      text,
		Images:    extractImages(reader),
		PageCount: pages,
		Format:    "markdown",
	}, nil
}

func readZipFile(reader *zip.Reader, name string) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, nil
}

// documentXML represents the structure of word/document.xml.
type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Properties struct {
		Style struct {
			Val string `xml:"val,attr"`
		} `xml:"pStyle"`
	} `xml:"pPr"`
	Runs []run `xml:"r"`
}

type run struct {
	Text   []textElement `xml:"t"`
	Breaks []struct {
		Type string `xml:"type,attr"`
	} `xml:"br"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

// parseDocumentXML renders paragraphs as Markdown and counts pages.
func parseDocumentXML(content []byte) (string, int, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", 0, fmt.Errorf("parse document.xml: %w", err)
	}

	pages := 1
	var result strings.Builder
	for _, para := range doc.Body.Paragraphs {
		var line strings.Builder
		for _, r := range para.Runs {
			for _, b := range r.Breaks {
				if b.Type == "page" {
					line.WriteString("\f")
					pages++
				}
			}
			for _, t := range r.Text {
				line.WriteString(t.Content)
			}
		}
		text := strings.Trim(line.String(), " \t\r\n")
		if text == "" {
			continue
		}
		if level := headingLevel(para.Properties.Style.Val); level > 0 && !strings.Contains(text, "\f") {
			text = strings.Repeat("#", level) + " " + text
		}
		if result.Len() > 0 {
			result.WriteString("\n\n")
		}
		result.WriteString(text)
	}

	return result.String(), pages, nil
}

// headingLevel maps Word styles such as "Heading2" or "Title" to a level.
func headingLevel(style string) int {
	s := strings.ToLower(style)
	switch {
	case s == "title":
		return 1
	case strings.HasPrefix(s, "heading") && len(s) == len("heading")+1:
		if d := s[len(s)-1]; d >= '1' && d <= '6' {
			return int(d - '0')
		}
	}
	return 0
}

// coreXML represents the structure of docProps/core.xml.
type coreXML struct {
	Title string `xml:"title"`
}

func extractTitle(reader *zip.Reader) string {
	content, err := readZipFile(reader, "docProps/core.xml")
	if err != nil || content == nil {
		return ""
	}
	var core coreXML
	if err := xml.Unmarshal(content, &core); err != nil {
		return ""
	}
	return strings.TrimSpace(core.Title)
}

var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
}

// extractImages returns embedded raster images in archive order.
func extractImages(reader *zip.Reader) []domain.Image {
	var images []domain.Image
	for _, file := range reader.File {
		if !strings.HasPrefix(file.Name, "word/media/") {
			continue
		}
		dot := strings.LastIndexByte(file.Name, '.')
		if dot < 0 {
			continue
		}
		mediaType, ok := imageTypes[strings.ToLower(file.Name[dot:])]
		if !ok {
			continue
		}
		data, err := readZipFile(reader, file.Name)
		if err != nil {
			continue
		}
		images = append(images, domain.Image{MediaType: mediaType, Data: data})
	}
	return images
}
