package domain

import "time"

// DocumentClass is the classification label of a source document.
type DocumentClass string

// Document classification set.
const (
	ClassProjectPlan      DocumentClass = "project_plan"
	ClassBaselineReport   DocumentClass = "baseline_report"
	ClassMonitoringReport DocumentClass = "monitoring_report"
	ClassLandTenure       DocumentClass = "land_tenure"
	ClassRegistryRecord   DocumentClass = "registry_record"
	ClassGHGEmissions     DocumentClass = "ghg_emissions"
	ClassMapOrSpatial     DocumentClass = "map_or_spatial"
	ClassUnknown          DocumentClass = "unknown"
)

// IsValid returns true if the class is part of the classification set.
func (c DocumentClass) IsValid() bool {
	switch c {
	case ClassProjectPlan, ClassBaselineReport, ClassMonitoringReport, ClassLandTenure,
		ClassRegistryRecord, ClassGHGEmissions, ClassMapOrSpatial, ClassUnknown:
		return true
	default:
		return false
	}
}

// DocumentAlias records a file whose bytes duplicate an existing record.
type DocumentAlias struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

// DocumentRecord is one discovered source file.
// Fingerprints are unique within a session.
type DocumentRecord struct {
	// ID is a stable identifier derived from the fingerprint.
	ID string `json:"id"`

	// Filename is the first-seen filename for these bytes.
	Filename string `json:"filename"`

	// Path is the absolute path of the first-seen file.
	Path string `json:"path"`

	// Fingerprint is the hex SHA-256 of the raw bytes.
	Fingerprint string `json:"fingerprint"`

	// Class is the classification label.
	Class DocumentClass `json:"class"`

	// SizeBytes is the raw file size.
	SizeBytes int64 `json:"size_bytes"`

	// PageCount is filled in after conversion; zero until then.
	PageCount int `json:"page_count"`

	// ChunkCount is filled in after extraction; zero until then.
	ChunkCount int `json:"chunk_count"`

	// Extracted is set once evidence extraction has run on this content.
	Extracted bool `json:"extracted,omitempty"`

	// Aliases lists other files with identical bytes.
	Aliases []DocumentAlias `json:"aliases,omitempty"`

	// DiscoveredAt is when the record was first written.
	DiscoveredAt time.Time `json:"discovered_at"`
}

// HasAlias reports whether path is already recorded as an alias.
func (d *DocumentRecord) HasAlias(path string) bool {
	for _, a := range d.Aliases {
		if a.Path == path {
			return true
		}
	}
	return false
}

// Image is an image extracted from a document, passed to the model with its chunk.
type Image struct {
	// MediaType is the MIME type (image/png, image/jpeg).
	MediaType string `json:"media_type"`

	// Data is the raw image bytes.
	Data []byte `json:"data"`

	// Page is the 1-based page the image came from, 0 if unknown.
	Page int `json:"page,omitempty"`
}

// ConvertedDocument is the output of a document converter.
type ConvertedDocument struct {
	// Text is the plain text or markdown content.
	Text string `json:"text"`

	// Images are images extracted from the document.
	Images []Image `json:"images,omitempty"`

	// PageCount is the number of pages, 1 for formats without pages.
	PageCount int `json:"page_count"`

	// Format is "markdown" or "text".
	Format string `json:"format"`
}

// Chunk is a bounded slice of a document's text plus its images.
type Chunk struct {
	// Index is the ordinal position within the document.
	Index int

	// Content is the chunk text.
	Content string

	// Section is the nearest heading above the chunk, if any.
	Section string

	// Page is the 1-based page where the chunk starts, 0 if unknown.
	Page int

	// Images attached to this chunk.
	Images []Image
}
