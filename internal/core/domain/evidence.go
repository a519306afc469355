package domain

import (
	"sort"
	"strings"
	"time"
	"unicode"
)

// VerificationOutcome is the result of grounding a claim in its source text.
type VerificationOutcome string

// Verification outcomes.
const (
	VerificationVerified   VerificationOutcome = "verified"
	VerificationUnverified VerificationOutcome = "unverified"
	VerificationRejected   VerificationOutcome = "rejected"
)

// ExtractionBackend identifies what produced an extracted field.
type ExtractionBackend string

// Extraction backends.
const (
	BackendLLM     ExtractionBackend = "llm"
	BackendPattern ExtractionBackend = "pattern"
)

// Citation locates the source text that grounds a claim.
type Citation struct {
	// Page is the 1-based page number, 0 if unknown.
	Page int `json:"page,omitempty"`

	// Section is the heading the excerpt falls under.
	Section string `json:"section,omitempty"`

	// ChunkIndex is the chunk the claim was extracted from.
	ChunkIndex int `json:"chunk_index"`

	// Excerpt is the text quoted as support for the claim.
	Excerpt string `json:"excerpt"`
}

// ExtractedField is one unit of evidence.
type ExtractedField struct {
	FieldType      FieldType           `json:"field_type"`
	Value          string              `json:"value"`
	Confidence     float64             `json:"confidence"`
	SourceDocument string              `json:"source_document"`
	DocumentID     string              `json:"document_id"`
	Citation       Citation            `json:"citation"`
	Verification   VerificationOutcome `json:"verification"`
	MatchScore     float64             `json:"match_score"`
	Backend        ExtractionBackend   `json:"backend"`
	ExtractedAt    time.Time           `json:"extracted_at"`
}

// DedupKey returns the (field type, normalized value) identity of the field.
func (f ExtractedField) DedupKey() string {
	return string(f.FieldType) + "\x00" + NormalizeValue(f.Value)
}

// NormalizeValue lowercases a value and collapses punctuation and whitespace
// so "Smith  Ranch, LLC" and "smith ranch llc" compare equal.
func NormalizeValue(v string) string {
	var b strings.Builder
	b.Grow(len(v))
	space := false
	for _, r := range strings.ToLower(v) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		if (r == '.' || r == '-' || r == '/') && !space && b.Len() > 0 {
			// keep separators inside numbers and dates
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return strings.Trim(b.String(), ".-/ ")
}

// DedupFields merges fields by DedupKey, keeping the highest-confidence instance.
// Rejected fields are dropped. Ties keep the earliest field. The result is
// ordered by field type then normalized value.
func DedupFields(fields []ExtractedField) []ExtractedField {
	best := make(map[string]ExtractedField, len(fields))
	for _, f := range fields {
		if f.Verification == VerificationRejected {
			continue
		}
		key := f.DedupKey()
		if cur, ok := best[key]; !ok || f.Confidence > cur.Confidence {
			best[key] = f
		}
	}

	out := make([]ExtractedField, 0, len(best))
	for _, f := range best {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FieldType != out[j].FieldType {
			return out[i].FieldType < out[j].FieldType
		}
		return NormalizeValue(out[i].Value) < NormalizeValue(out[j].Value)
	})
	return out
}

// DocumentExtraction is the per-document result of the extraction engine.
type DocumentExtraction struct {
	Document        DocumentRecord    `json:"document"`
	Fields          []ExtractedField  `json:"fields"`
	Backend         ExtractionBackend `json:"backend"`
	ChunksProcessed int               `json:"chunks_processed"`
	ChunksFailed    int               `json:"chunks_failed"`
	CacheHits       int               `json:"cache_hits"`
	ModelCalls      int               `json:"model_calls"`
	Rejected        int               `json:"rejected"`
	FromCache       bool              `json:"from_cache"`
}
