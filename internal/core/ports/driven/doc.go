// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - SessionStore: One durable document per review session
//   - SessionIndex: Enumeration and duplicate-path lookup over sessions
//   - Cache: Namespaced, TTL-bounded artifact cache
//   - Converter: Turns a source file into text and images
//   - ChecklistCatalog: Read-only requirement catalog per methodology
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - ExtractionBackend: Language model completion. Without it, extraction
//     falls back to deterministic pattern matching.
//   - CostLedger: Spend accounting. Without it, nothing is recorded.
//   - PromptStore: Custom prompt templates. Without it, built-in prompts are used.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or normaliser package
package driven
