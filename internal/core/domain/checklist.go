package domain

// Requirement is one checklist entry. Evidence of any of its field types covers it.
type Requirement struct {
	ID          string      `yaml:"id" json:"id"`
	Title       string      `yaml:"title" json:"title"`
	Category    string      `yaml:"category" json:"category"`
	FieldTypes  []FieldType `yaml:"field_types" json:"field_types"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
}

// Checklist is the requirement catalog for one methodology version.
type Checklist struct {
	MethodologyID string        `yaml:"methodology_id" json:"methodology_id"`
	Version       string        `yaml:"version" json:"version"`
	Requirements  []Requirement `yaml:"requirements" json:"requirements"`
}

// FieldTypes returns the distinct known field types the checklist asks for,
// in first-seen order.
func (c *Checklist) FieldTypes() []FieldType {
	seen := make(map[FieldType]bool)
	var out []FieldType
	for _, req := range c.Requirements {
		for _, ft := range req.FieldTypes {
			if seen[ft] || !ft.IsValid() {
				continue
			}
			seen[ft] = true
			out = append(out, ft)
		}
	}
	return out
}

// Coverage counts requirements with at least one verified or unverified field
// of a matching type.
func (c *Checklist) Coverage(evidence []ExtractedField) (covered, total int) {
	have := make(map[FieldType]bool)
	for _, f := range evidence {
		if f.Verification != VerificationRejected {
			have[f.FieldType] = true
		}
	}
	for _, req := range c.Requirements {
		for _, ft := range req.FieldTypes {
			if have[ft] {
				covered++
				break
			}
		}
	}
	return covered, len(c.Requirements)
}
