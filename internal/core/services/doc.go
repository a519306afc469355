// Package services implements the driving port interfaces.
// Services hold the review workflow: session lifecycle, document
// discovery, evidence extraction with citation verification, and cost
// accounting. They orchestrate calls to driven ports (adapters).
//
// Services are pure Go with no CGO.
package services
