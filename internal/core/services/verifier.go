package services

import (
	"strings"
	"time"
	"unicode"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
)

// Claim is a field value and the excerpt the model quoted for it.
type Claim struct {
	Value   string
	Excerpt string
	Kind    domain.ValueKind
	Rule    domain.VerificationRule
}

// Verdict is the verifier's decision about one claim.
type Verdict struct {
	Outcome    domain.VerificationOutcome
	Score      float64
	Penalty    float64
	Confidence float64
}

// CitationVerifier decides whether claims are grounded in their source text.
// It is stateless and deterministic: the same claim and source always give
// the same verdict.
type CitationVerifier struct {
	exact   float64
	weak    float64
	penalty float64
}

// NewCitationVerifier creates a verifier from the verification settings.
func NewCitationVerifier(cfg domain.VerificationSettings) *CitationVerifier {
	exact, weak := cfg.ExactThreshold, cfg.WeakThreshold
	if exact <= 0 || exact > 1 {
		exact = 0.9
	}
	if weak <= 0 || weak >= exact {
		weak = exact * 2 / 3
	}
	return &CitationVerifier{exact: exact, weak: weak, penalty: cfg.WeakPenalty}
}

// Verify scores the claim against source and applies the threshold policy to
// the incoming confidence. Confidence is never raised.
func (v *CitationVerifier) Verify(claim Claim, source string, confidence float64) Verdict {
	normSource := normalizeForMatch(source)
	score := v.Score(claim, normSource)

	switch {
	case score >= v.exact:
		return Verdict{Outcome: domain.VerificationVerified, Score: score, Confidence: confidence}
	case score >= v.weak:
		p := v.penalty * (v.exact - score) / (v.exact - v.weak)
		if p < 0.01 {
			p = 0.01
		}
		c := confidence - p
		if c < 0 {
			c = 0
		}
		return Verdict{Outcome: domain.VerificationVerified, Score: score, Penalty: p, Confidence: c}
	default:
		return Verdict{Outcome: domain.VerificationRejected, Score: score, Penalty: confidence, Confidence: 0}
	}
}

// Score returns the grounding similarity in [0,1] of a claim against an
// already-normalized source.
func (v *CitationVerifier) Score(claim Claim, normSource string) float64 {
	valueScore := matchValue(claim.Value, claim.Kind, normSource)
	if claim.Rule != domain.VerifyExcerpt || strings.TrimSpace(claim.Excerpt) == "" {
		return valueScore
	}
	excerptScore := matchText(normalizeForMatch(claim.Excerpt), normSource)
	if excerptScore < valueScore {
		return excerptScore
	}
	return valueScore
}

// normalizeForMatch lowercases, turns punctuation into spaces and collapses
// whitespace, so OCR and layout noise do not affect matching.
func normalizeForMatch(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

func matchValue(value string, kind domain.ValueKind, normSource string) float64 {
	var best float64
	for _, rendering := range valueRenderings(value, kind) {
		norm := normalizeForMatch(rendering)
		if norm == "" {
			continue
		}
		var score float64
		if kind == domain.ValueText {
			score = matchText(norm, normSource)
		} else {
			score = matchStructured(norm, normSource)
		}
		if score > best {
			best = score
		}
		if best == 1.0 {
			break
		}
	}
	return best
}

// matchText finds the best similarity of a normalized snippet in a normalized source.
func matchText(snippet, source string) float64 {
	if snippet == "" || source == "" {
		return 0
	}
	if containsToken(source, snippet) {
		return 1.0
	}
	if len(source) < len(snippet)/2 {
		return 0
	}
	return slidingWindowSimilarity(snippet, source, nil)
}

// matchStructured is matchText for dates, numbers and identifiers: a window
// only scores if its digits equal the snippet's digits.
func matchStructured(snippet, source string) float64 {
	if snippet == "" || source == "" {
		return 0
	}
	if containsToken(source, snippet) {
		return 1.0
	}
	want := digitsOf(snippet)
	return slidingWindowSimilarity(snippet, source, func(window string) bool {
		return digitsOf(window) == want
	})
}

// containsToken reports whether snippet occurs in source on token boundaries.
func containsToken(source, snippet string) bool {
	from := 0
	for {
		i := strings.Index(source[from:], snippet)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(snippet)
		if (start == 0 || source[start-1] == ' ') && (end == len(source) || source[end] == ' ') {
			return true
		}
		from = start + 1
	}
}

// slidingWindowSimilarity compares the snippet with every snippet-sized window
// starting at a token boundary and returns the best ratio.
func slidingWindowSimilarity(snippet, source string, accept func(string) bool) float64 {
	size := len(snippet)
	var best float64
	for start := 0; start < len(source); start++ {
		if start > 0 && source[start-1] != ' ' {
			continue
		}
		end := start + size
		if end > len(source) {
			end = len(source)
		}
		// extend to the end of the token so windows do not cut words
		for end < len(source) && source[end] != ' ' {
			end++
		}
		window := source[start:end]
		if accept != nil && !accept(window) {
			continue
		}
		if sim := lcsRatio(snippet, window); sim > best {
			best = sim
			if best >= 0.999 {
				break
			}
		}
		if end == len(source) {
			break
		}
	}
	return best
}

// lcsRatio is 2*LCS / (len(a)+len(b)).
func lcsRatio(a, b string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	return 2 * float64(longestCommonSubsequence(a, b)) / float64(len(a)+len(b))
}

// longestCommonSubsequence computes the LCS length in O(min(m, n)) space.
func longestCommonSubsequence(a, b string) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	m, n := len(a), len(b)
	if m == 0 {
		return 0
	}

	prev := make([]int, m+1)
	curr := make([]int, m+1)
	for j := 1; j <= n; j++ {
		for i := 1; i <= m; i++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[i] = prev[i-1] + 1
			case prev[i] > curr[i-1]:
				curr[i] = prev[i]
			default:
				curr[i] = curr[i-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[m]
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var dateLayouts = []string{
	"2006-01-02",
	"January 2, 2006",
	"January 2 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
}

// valueRenderings returns the value plus alternate spellings of dates.
func valueRenderings(value string, kind domain.ValueKind) []string {
	value = strings.TrimSpace(value)
	if kind != domain.ValueDate {
		return []string{value}
	}

	var parsed time.Time
	ok := false
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			parsed, ok = t, true
			break
		}
	}
	if !ok {
		return []string{value}
	}

	out := []string{value}
	seen := map[string]bool{value: true}
	for _, layout := range dateLayouts {
		r := parsed.Format(layout)
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}
