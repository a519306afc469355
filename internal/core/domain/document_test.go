package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocumentClass_IsValid(t *testing.T) {
	valid := []DocumentClass{
		ClassProjectPlan, ClassBaselineReport, ClassMonitoringReport, ClassLandTenure,
		ClassRegistryRecord, ClassGHGEmissions, ClassMapOrSpatial, ClassUnknown,
	}
	for _, c := range valid {
		assert.True(t, c.IsValid(), c)
	}
	assert.False(t, DocumentClass("invoice").IsValid())
	assert.False(t, DocumentClass("").IsValid())
}

func TestDocumentRecord_HasAlias(t *testing.T) {
	rec := DocumentRecord{
		Filename: "plan.pdf",
		Path:     "/p/plan.pdf",
		Aliases: []DocumentAlias{
			{Filename: "plan (1).pdf", Path: "/p/plan (1).pdf"},
		},
	}

	assert.True(t, rec.HasAlias("/p/plan (1).pdf"))
	assert.False(t, rec.HasAlias("/p/plan.pdf"))
}
