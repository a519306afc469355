package markdown

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
)

func TestNew(t *testing.T) {
	converter := New()
	require.NotNil(t, converter)
	assert.Equal(t, []string{".md", ".markdown"}, converter.SupportedExtensions())
	assert.Equal(t, 50, converter.Priority())
}

func TestInterfaceCompliance(t *testing.T) {
	var _ driven.Converter = (*Converter)(nil)
}

func TestConvert_NilContent(t *testing.T) {
	_, err := New().Convert(context.Background(), "/docs/plan.md", nil)
	assert.ErrorIs(t, err, domain.ErrConversionFailed)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestConvert_KeepsHeadings(t *testing.T) {
	content := "# Project Plan\r\n\r\n## 1.2 Project Start Date\r\n\r\nThe project started on **March 15, 2022**.\r\n"

	doc, err := New().Convert(context.Background(), "/docs/plan.md", []byte(content))
	require.NoError(t, err)

	assert.Equal(t, "markdown", doc.Format)
	assert.Equal(t, 1, doc.PageCount)
	assert.Contains(t, doc.Text, "## 1.2 Project Start Date")
	assert.Contains(t, doc.Text, "**March 15, 2022**")
	assert.NotContains(t, doc.Text, "\r")
}

func TestConvert_PageBreaks(t *testing.T) {
	content := "page one\n<!-- pagebreak -->\npage two\n\fpage three"

	doc, err := New().Convert(context.Background(), "/docs/plan.md", []byte(content))
	require.NoError(t, err)
	assert.Equal(t, 3, doc.PageCount)
}

func TestClean(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "links reduced to text",
			input:    "See [the registry](https://example.org) entry.",
			expected: "See the registry entry.",
		},
		{
			name:     "images reduced to alt text",
			input:    "![Parcel map](map.png)",
			expected: "Parcel map",
		},
		{
			name:     "comments removed",
			input:    "before<!-- hidden -->after",
			expected: "beforeafter",
		},
		{
			name:     "blank lines collapsed",
			input:    "a\n\n\n\n\nb",
			expected: "a\n\nb",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Clean(tc.input))
		})
	}
}
