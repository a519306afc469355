package domain

import "sort"

// FieldType identifies a kind of extractable evidence.
type FieldType string

// Extractable field types.
const (
	FieldProjectStartDate     FieldType = "project_start_date"
	FieldCreditingPeriodStart FieldType = "crediting_period_start"
	FieldCreditingPeriodEnd   FieldType = "crediting_period_end"
	FieldMonitoringDate       FieldType = "monitoring_date"
	FieldLandOwner            FieldType = "land_owner"
	FieldLandAreaHectares     FieldType = "land_area_hectares"
	FieldTenureType           FieldType = "tenure_type"
	FieldProjectID            FieldType = "project_id"
	FieldRegistryID           FieldType = "registry_id"
	FieldMethodologyID        FieldType = "methodology_id"
)

// ValueKind is the shape of a field's value.
type ValueKind string

// Value kinds.
const (
	ValueDate       ValueKind = "date"
	ValueText       ValueKind = "text"
	ValueNumber     ValueKind = "number"
	ValueIdentifier ValueKind = "identifier"
)

// VerificationRule says which part of a claim is matched against the source.
type VerificationRule string

// Verification rules.
const (
	// VerifyExcerpt matches the quoted excerpt, falling back to the value.
	VerifyExcerpt VerificationRule = "verify_excerpt"

	// VerifyValue matches the value itself. Used for short identifiers and
	// dates where the model's excerpt is often paraphrased.
	VerifyValue VerificationRule = "verify_value"
)

// FieldSpec is the declarative description of one field type. The extraction
// engine is parameterised by these specs rather than per-type code.
type FieldSpec struct {
	Type        FieldType
	Description string
	Guidance    string
	Kind        ValueKind
	Rule        VerificationRule

	// Patterns are regular expressions for the deterministic fallback.
	// The first capture group, or the whole match, is the value.
	Patterns []string

	// PatternConfidence is the confidence assigned to fallback matches.
	PatternConfidence float64
}

const datePattern = `(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4}|(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4}|\d{1,2}\s+(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{4})`

var fieldSpecs = map[FieldType]FieldSpec{
	FieldProjectStartDate: {
		Type:              FieldProjectStartDate,
		Description:       "Date the project activities started",
		Guidance:          "Look for 'project start date' or the date the first project activity began.",
		Kind:              ValueDate,
		Rule:              VerifyValue,
		Patterns:          []string{`(?i)project\s+start(?:\s+date)?\s*[:\-]?\s*` + datePattern},
		PatternConfidence: 0.6,
	},
	FieldCreditingPeriodStart: {
		Type:              FieldCreditingPeriodStart,
		Description:       "First day of the crediting period",
		Guidance:          "The crediting period is usually stated as a date range; return the start.",
		Kind:              ValueDate,
		Rule:              VerifyValue,
		Patterns:          []string{`(?i)crediting\s+period[^.\n]{0,40}?(?:from|start(?:s|ing)?|begins?)\s*[:\-]?\s*` + datePattern},
		PatternConfidence: 0.55,
	},
	FieldCreditingPeriodEnd: {
		Type:              FieldCreditingPeriodEnd,
		Description:       "Last day of the crediting period",
		Guidance:          "Return the end date of the crediting period range.",
		Kind:              ValueDate,
		Rule:              VerifyValue,
		Patterns:          []string{`(?i)crediting\s+period[^.\n]{0,80}?(?:to|until|through|end(?:s|ing)?)\s*[:\-]?\s*` + datePattern},
		PatternConfidence: 0.5,
	},
	FieldMonitoringDate: {
		Type:              FieldMonitoringDate,
		Description:       "Date of a monitoring event or monitoring period boundary",
		Guidance:          "Include sampling dates and monitoring period start and end dates.",
		Kind:              ValueDate,
		Rule:              VerifyValue,
		Patterns:          []string{`(?i)monitoring\s+(?:date|period|event)[^.\n]{0,40}?` + datePattern},
		PatternConfidence: 0.5,
	},
	FieldLandOwner: {
		Type:              FieldLandOwner,
		Description:       "Legal owner of the project land",
		Guidance:          "Name the person or entity holding title to the land, not the project proponent unless they are the same.",
		Kind:              ValueText,
		Rule:              VerifyExcerpt,
		Patterns:          []string{`(?i)(?:land\s*owner|owned\s+by|title\s+holder)\s*[:\-]?\s*([A-Z][A-Za-z&.,' ]{2,80}?)(?:\.|\n|$)`},
		PatternConfidence: 0.45,
	},
	FieldLandAreaHectares: {
		Type:              FieldLandAreaHectares,
		Description:       "Project area in hectares",
		Guidance:          "Convert acres to hectares only if the document states both; otherwise report the stated hectares.",
		Kind:              ValueNumber,
		Rule:              VerifyValue,
		Patterns:          []string{`(?i)(\d{1,3}(?:,\d{3})*(?:\.\d+)?)\s*(?:ha\b|hectares)`},
		PatternConfidence: 0.5,
	},
	FieldTenureType: {
		Type:              FieldTenureType,
		Description:       "Form of land tenure (freehold, lease, easement, customary)",
		Guidance:          "Report the tenure arrangement under which the proponent controls the land.",
		Kind:              ValueText,
		Rule:              VerifyExcerpt,
		Patterns:          []string{`(?i)\b(freehold|leasehold|lease agreement|conservation easement|customary tenure|fee simple)\b`},
		PatternConfidence: 0.5,
	},
	FieldProjectID: {
		Type:              FieldProjectID,
		Description:       "Registry project identifier",
		Guidance:          "Identifiers look like C06-4997 or a similar class prefix and number.",
		Kind:              ValueIdentifier,
		Rule:              VerifyValue,
		Patterns:          []string{`\b(C\d{2}-\d{3,6})\b`},
		PatternConfidence: 0.7,
	},
	FieldRegistryID: {
		Type:              FieldRegistryID,
		Description:       "Credit batch or registry record identifier",
		Guidance:          "Batch denominations look like C06-001-20150101-20151231-001.",
		Kind:              ValueIdentifier,
		Rule:              VerifyValue,
		Patterns:          []string{`\b(C\d{2}-\d{3}-\d{8}-\d{8}-\d{3})\b`},
		PatternConfidence: 0.7,
	},
	FieldMethodologyID: {
		Type:              FieldMethodologyID,
		Description:       "Methodology or protocol the project applies",
		Guidance:          "Report the methodology code and version if given.",
		Kind:              ValueIdentifier,
		Rule:              VerifyValue,
		Patterns:          []string{`(?i)\bmethodology\s*(?:id|code)?\s*[:\-]?\s*([A-Z]{2,10}[\-\s]?\d{1,4}(?:\s*v\d+(?:\.\d+)?)?)`},
		PatternConfidence: 0.6,
	},
}

// LookupFieldSpec returns the spec for a field type.
func LookupFieldSpec(t FieldType) (FieldSpec, bool) {
	spec, ok := fieldSpecs[t]
	return spec, ok
}

// FieldSpecs returns every known spec ordered by type.
func FieldSpecs() []FieldSpec {
	out := make([]FieldSpec, 0, len(fieldSpecs))
	for _, spec := range fieldSpecs {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// IsValid returns true if the field type has a spec.
func (t FieldType) IsValid() bool {
	_, ok := fieldSpecs[t]
	return ok
}
