package image

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestConvert_PNG(t *testing.T) {
	doc, err := New().Convert(context.Background(), "/docs/map.png", pngHeader)
	require.NoError(t, err)

	assert.Empty(t, doc.Text)
	assert.Equal(t, 1, doc.PageCount)
	require.Len(t, doc.Images, 1)
	assert.Equal(t, "image/png", doc.Images[0].MediaType)
	assert.Equal(t, 1, doc.Images[0].Page)
}

func TestConvert_SniffOverridesExtension(t *testing.T) {
	doc, err := New().Convert(context.Background(), "/docs/map.jpg", pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "image/png", doc.Images[0].MediaType)
}

func TestConvert_Rejects(t *testing.T) {
	_, err := New().Convert(context.Background(), "/docs/map.png", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = New().Convert(context.Background(), "/docs/map.png", []byte("just text"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
	assert.ErrorIs(t, err, domain.ErrConversionFailed)
}
