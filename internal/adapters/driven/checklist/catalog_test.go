package checklist

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
)

func TestCatalog_LoadBuiltin(t *testing.T) {
	c := NewCatalog("")

	checklist, err := c.Load(context.Background(), "soil-carbon-v1")
	require.NoError(t, err)

	assert.Equal(t, "soil-carbon-v1", checklist.MethodologyID)
	assert.Len(t, checklist.Requirements, 7)
	assert.Contains(t, checklist.FieldTypes(), domain.FieldLandOwner)
	assert.Len(t, checklist.FieldTypes(), 10)

	again, err := c.Load(context.Background(), "soil-carbon-v1")
	require.NoError(t, err)
	assert.Same(t, checklist, again)
}

func TestCatalog_Missing(t *testing.T) {
	c := NewCatalog(t.TempDir())

	for _, id := range []string{"unknown-v9", "", "../soil-carbon-v1", ".hidden"} {
		_, err := c.Load(context.Background(), id)
		assert.True(t, domain.IsMissingChecklist(err), id)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	}
}

func TestCatalog_DirectoryOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "soil-carbon-v1.yaml"), []byte(`
version: "2.0"
requirements:
  - id: R1
    title: Owner only
    category: land_tenure
    field_types: [land_owner]
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "grazing-v1.yml"), []byte(`
methodology_id: grazing-v1
requirements:
  - id: G1
    title: Start
    field_types: [project_start_date]
`), 0o600))

	c := NewCatalog(dir)
	ctx := context.Background()

	checklist, err := c.Load(ctx, "soil-carbon-v1")
	require.NoError(t, err)
	assert.Equal(t, "2.0", checklist.Version)
	assert.Equal(t, "soil-carbon-v1", checklist.MethodologyID)
	assert.Equal(t, []domain.FieldType{domain.FieldLandOwner}, checklist.FieldTypes())

	_, err = c.Load(ctx, "grazing-v1")
	require.NoError(t, err)

	ids, err := c.Methodologies(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"grazing-v1", "soil-carbon-v1"}, ids)
}

func TestCatalog_EmptyChecklistIsMissing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty-v1.yaml"), []byte("methodology_id: empty-v1\nrequirements: []\n"), 0o600))

	_, err := NewCatalog(dir).Load(context.Background(), "empty-v1")
	assert.True(t, domain.IsMissingChecklist(err))
}

func TestCatalog_InvalidFiles(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed yaml", "requirements: [\n"},
		{"unknown field type", "requirements:\n  - id: R1\n    field_types: [soil_colour]\n"},
		{"missing id", "requirements:\n  - title: x\n    field_types: [land_owner]\n"},
		{"duplicate id", "requirements:\n  - id: R1\n  - id: R1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "bad-v1.yaml"), []byte(tt.content), 0o600))

			_, err := NewCatalog(dir).Load(context.Background(), "bad-v1")
			require.Error(t, err)
			assert.False(t, domain.IsMissingChecklist(err))
		})
	}
}

func TestCatalog_MethodologiesBuiltinOnly(t *testing.T) {
	ids, err := NewCatalog(filepath.Join(t.TempDir(), "absent")).Methodologies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"soil-carbon-v1"}, ids)
}
