// Package memory provides in-memory implementations of driven ports.
//
// They back tests and ephemeral runs (--ephemeral) where nothing should be
// written to disk. Each store is safe for concurrent use.
package memory
