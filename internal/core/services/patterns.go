package services

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/logger"
)

// maxExcerpt bounds the excerpt taken around a pattern match.
const maxExcerpt = 240

// PatternExtractor is the deterministic fallback used when the model path is
// disabled or unavailable. It runs the regular expressions of each field spec
// over chunk text.
type PatternExtractor struct {
	once     sync.Once
	compiled map[domain.FieldType][]*regexp.Regexp
	now      func() time.Time
}

// NewPatternExtractor creates a pattern extractor.
func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{now: time.Now}
}

func (p *PatternExtractor) compile() {
	p.once.Do(func() {
		p.compiled = make(map[domain.FieldType][]*regexp.Regexp)
		for _, spec := range domain.FieldSpecs() {
			for _, pattern := range spec.Patterns {
				re, err := regexp.Compile(pattern)
				if err != nil {
					logger.Warn("skipping invalid pattern for %s: %v", spec.Type, err)
					continue
				}
				p.compiled[spec.Type] = append(p.compiled[spec.Type], re)
			}
		}
	})
}

// Extract returns candidate fields for the requested types found in chunk.
// Candidates are unverified; the caller runs them through the verifier.
func (p *PatternExtractor) Extract(doc domain.DocumentRecord, chunk domain.Chunk, fieldTypes []domain.FieldType) []domain.ExtractedField {
	p.compile()

	var out []domain.ExtractedField
	for _, ft := range fieldTypes {
		spec, ok := domain.LookupFieldSpec(ft)
		if !ok {
			continue
		}
		for _, re := range p.compiled[ft] {
			for _, m := range re.FindAllStringSubmatchIndex(chunk.Content, -1) {
				start, end := m[0], m[1]
				if len(m) >= 4 && m[2] >= 0 {
					start, end = m[2], m[3]
				}
				value := strings.TrimSpace(strings.Trim(chunk.Content[start:end], ".,;:"))
				if value == "" {
					continue
				}
				out = append(out, domain.ExtractedField{
					FieldType:      ft,
					Value:          value,
					Confidence:     spec.PatternConfidence,
					SourceDocument: doc.Filename,
					DocumentID:     doc.ID,
					Citation: domain.Citation{
						Page:       chunk.Page,
						Section:    chunk.Section,
						ChunkIndex: chunk.Index,
						Excerpt:    excerptAround(chunk.Content, m[0], m[1]),
					},
					Backend:     domain.BackendPattern,
					ExtractedAt: p.now().UTC(),
				})
			}
		}
	}
	return out
}

// excerptAround returns the line holding [start, end), trimmed to maxExcerpt.
func excerptAround(text string, start, end int) string {
	lineStart := strings.LastIndexByte(text[:start], '\n') + 1
	lineEnd := strings.IndexByte(text[end:], '\n')
	if lineEnd < 0 {
		lineEnd = len(text)
	} else {
		lineEnd += end
	}
	line := text[lineStart:lineEnd]
	if len(line) > maxExcerpt {
		from := max(start-lineStart-maxExcerpt/2, 0)
		to := min(from+maxExcerpt, len(line))
		line = line[from:to]
	}
	return strings.TrimSpace(line)
}
