// Package converters provides implementations of the Converter interface for
// the document formats found in project submissions. Each converter knows how
// to turn one family of file extensions into text and images.
//
// Converters are registered with a Registry at startup; the Registry picks the
// highest-priority converter for a file's extension and caches the result.
//
// Multi-page output separates pages with a form feed (\f) so chunking can
// attribute text to pages.
package converters
