// Package chunker splits converted documents into bounded, section-aware
// chunks for extraction.
//
// Text is first broken into blocks (paragraphs and headings). Blocks are
// packed into chunks of at most the configured size; a block larger than a
// chunk is split on whitespace. Each chunk after the first repeats the tail
// of its predecessor so facts spanning a boundary are seen whole at least
// once. Pages are delimited by form feeds in the converted text.
package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
)

// DefaultChunkSize is the default number of bytes per chunk.
const DefaultChunkSize = 6000

// DefaultChunkOverlap is the default number of overlapping bytes.
const DefaultChunkOverlap = 500

// Chunker splits documents into chunks.
type Chunker struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithChunkSize sets the chunk size in bytes.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in bytes.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a new chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(c)
	}

	// Ensure overlap doesn't exceed chunk size
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}

	return c
}

// FromSettings creates a chunker from the extraction settings.
func FromSettings(cfg domain.ExtractionSettings) *Chunker {
	return New(WithChunkSize(cfg.ChunkSize), WithOverlap(cfg.ChunkOverlap))
}

// block is a paragraph or heading with its location.
type block struct {
	text    string
	section string
	page    int
}

// Chunk splits the document. A document with images but no text yields one
// chunk carrying the images; an empty document yields no chunks.
func (c *Chunker) Chunk(doc *domain.ConvertedDocument) []domain.Chunk {
	if doc == nil {
		return nil
	}

	// bodies are packed to leave room for the overlap prefix
	budget := c.chunkSize - c.overlap
	var chunks []domain.Chunk
	var body strings.Builder
	var section string
	page := 0

	flush := func() {
		if body.Len() == 0 {
			return
		}
		chunks = append(chunks, domain.Chunk{
			Index:   len(chunks),
			Content: body.String(),
			Section: section,
			Page:    page,
		})
		body.Reset()
		page = 0
	}

	for _, b := range splitBlocks(doc.Text) {
		for _, piece := range splitOversized(b.text, budget) {
			if body.Len() > 0 && body.Len()+2+len(piece) > budget {
				flush()
			}
			if body.Len() == 0 {
				section, page = b.section, b.page
			} else {
				body.WriteString("\n\n")
			}
			body.WriteString(piece)
		}
	}
	flush()

	for i := len(chunks) - 1; i > 0; i-- {
		if tail := overlapTail(chunks[i-1].Content, c.overlap); tail != "" {
			chunks[i].Content = tail + "\n\n" + chunks[i].Content
		}
	}

	if len(chunks) == 0 {
		if len(doc.Images) == 0 {
			return nil
		}
		chunks = append(chunks, domain.Chunk{Index: 0, Page: 1})
	}

	attachImages(chunks, doc.Images)
	return chunks
}

// splitBlocks breaks text into paragraphs, tracking headings and pages.
func splitBlocks(text string) []block {
	var blocks []block
	section := ""

	for pageIdx, page := range strings.Split(text, "\f") {
		pageNum := pageIdx + 1
		var para []string
		emit := func() {
			if len(para) == 0 {
				return
			}
			blocks = append(blocks, block{text: strings.Join(para, "\n"), section: section, page: pageNum})
			para = nil
		}

		for _, line := range strings.Split(page, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				emit()
				continue
			}
			if heading, ok := parseHeading(trimmed); ok {
				emit()
				section = heading
				blocks = append(blocks, block{text: trimmed, section: section, page: pageNum})
				continue
			}
			para = append(para, strings.TrimRight(line, " \t"))
		}
		emit()
	}
	return blocks
}

// parseHeading recognises Markdown ATX headings.
func parseHeading(line string) (string, bool) {
	if !strings.HasPrefix(line, "#") {
		return "", false
	}
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level > 6 || level >= len(line) || line[level] != ' ' {
		return "", false
	}
	title := strings.TrimSpace(strings.TrimRight(line[level:], "#"))
	return title, title != ""
}

// splitOversized cuts text longer than limit on whitespace.
func splitOversized(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var pieces []string
	for len(text) > limit {
		cut := strings.LastIndexAny(text[:limit], " \n\t")
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		pieces = append(pieces, strings.TrimSpace(text[:cut]))
		text = strings.TrimLeft(text[cut:], " \n\t")
	}
	if text != "" {
		pieces = append(pieces, text)
	}
	return pieces
}

// overlapTail returns roughly the last n bytes of s, starting on a word boundary.
func overlapTail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	start := len(s) - n
	tail := s[start:]
	if !isSpace(s[start-1]) {
		if i := strings.IndexAny(tail, " \n\t"); i >= 0 {
			tail = tail[i:]
		}
	}
	for len(tail) > 0 && !utf8.RuneStart(tail[0]) {
		tail = tail[1:]
	}
	return strings.TrimSpace(tail)
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t'
}

// attachImages gives each image to the last chunk starting on or before its
// page. Images without a page go to the first chunk.
func attachImages(chunks []domain.Chunk, images []domain.Image) {
	for _, img := range images {
		target := 0
		if img.Page > 0 {
			for i := range chunks {
				if chunks[i].Page > 0 && chunks[i].Page <= img.Page {
					target = i
				}
			}
		}
		chunks[target].Images = append(chunks[target].Images, img)
	}
}
