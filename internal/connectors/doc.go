// Package connectors holds adapters that observe document sources outside
// the review workflow. The filesystem connector watches a project's
// documents directory so discovery can re-run when files change.
package connectors
