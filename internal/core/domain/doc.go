// Package domain defines the core business entities for registry review.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Session: A review session and its workflow-stage progress
//   - DocumentRecord: A discovered source file, keyed by content fingerprint
//   - ExtractedField: One unit of evidence with its citation and verification outcome
//   - FieldSpec: The declarative description of an extractable field type
//   - Requirement: A checklist entry that evidence attaches to
//   - CostEntry: A single paid (or cached) backend operation
//   - Settings: The explicit process configuration
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
