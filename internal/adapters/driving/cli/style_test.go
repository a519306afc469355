package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
)

func TestStyles_Bar(t *testing.T) {
	st := newStyles(new(bytes.Buffer))
	assert.Equal(t, defaultWidth, st.width)

	tests := []struct {
		name    string
		ratio   float64
		percent string
		full    int
	}{
		{"empty", 0, "  0%", 0},
		{"half", 0.5, " 50%", 13},
		{"full", 1, "100%", 26},
		{"clamped high", 1.7, "100%", 26},
		{"clamped low", -0.2, "  0%", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := st.bar(tt.ratio)
			assert.True(t, strings.HasSuffix(bar, tt.percent), bar)
			assert.Equal(t, tt.full, strings.Count(bar, "█"))
			assert.Equal(t, 26-tt.full, strings.Count(bar, "░"))
		})
	}
}

func TestStyles_Stage(t *testing.T) {
	st := newStyles(new(bytes.Buffer))
	assert.Contains(t, st.stage(domain.StatusCompleted), "✓ completed")
	assert.Contains(t, st.stage(domain.StatusInProgress), "● in_progress")
	assert.Contains(t, st.stage(domain.StatusPending), "○ pending")
	assert.Contains(t, st.stage(""), "○")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "Project...", truncate("ProjectPlanFinal.pdf", 10))
	assert.Equal(t, "Pro", truncate("ProjectPlan", 3))
	assert.Equal(t, "Säm...", truncate("Sämtliche Unterlagen", 6))
}
