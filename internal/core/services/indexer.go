package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/logger"
)

// sniffBytes is how much of a text file is read for classification.
const sniffBytes = 4096

// IndexResult is the outcome of one discovery pass.
type IndexResult struct {
	// Documents is the full record set after the pass.
	Documents []domain.DocumentRecord

	New        int
	Changed    int
	Duplicates int
	Removed    int
	Skipped    int

	// ChangedIDs lists records whose previous content is gone.
	ChangedIDs []string
}

// DocumentIndexer walks a project tree and maintains document records keyed
// by content fingerprint.
type DocumentIndexer struct {
	converter driven.DocumentConverter
	skipDirs  []string
	now       func() time.Time
}

// IndexerOption configures a DocumentIndexer.
type IndexerOption func(*DocumentIndexer)

// WithSkipDirs excludes directories, such as the data directory, from the walk.
func WithSkipDirs(dirs ...string) IndexerOption {
	return func(ix *DocumentIndexer) {
		for _, dir := range dirs {
			if dir == "" {
				continue
			}
			if abs, err := filepath.Abs(dir); err == nil {
				ix.skipDirs = append(ix.skipDirs, filepath.Clean(abs))
			}
		}
	}
}

// WithIndexerClock overrides the clock used for discovery timestamps.
func WithIndexerClock(now func() time.Time) IndexerOption {
	return func(ix *DocumentIndexer) {
		if now != nil {
			ix.now = now
		}
	}
}

// NewDocumentIndexer creates an indexer. Files are indexed when converter
// supports their extension.
func NewDocumentIndexer(converter driven.DocumentConverter, opts ...IndexerOption) *DocumentIndexer {
	ix := &DocumentIndexer{converter: converter, now: time.Now}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Discover indexes root against the existing records. Files already known by
// fingerprint keep their record untouched; identical bytes under a new name
// become an alias; a known path whose bytes changed gets a fresh record.
func (ix *DocumentIndexer) Discover(ctx context.Context, root string, existing []domain.DocumentRecord) (*IndexResult, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("documents path %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: documents path %s is not a directory", domain.ErrInvalidInput, root)
	}

	files, skipped, err := ix.walk(ctx, root)
	if err != nil {
		return nil, err
	}

	state := newIndexState(existing)
	result := &IndexResult{Skipped: skipped}
	seen := make(map[string]bool, len(files))

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("skipping unreadable file %s: %v", path, err)
			result.Skipped++
			continue
		}
		seen[path] = true
		ix.place(state, result, path, content)
	}

	result.Removed = state.prune(seen, result)
	result.Documents = state.records
	return result, nil
}

// place records one file in the state.
func (ix *DocumentIndexer) place(state *indexState, result *IndexResult, path string, content []byte) {
	fingerprint := Fingerprint(content)
	filename := filepath.Base(path)

	if i, ok := state.byFingerprint(fingerprint); ok {
		if rec := &state.records[i]; rec.Path == path || rec.HasAlias(path) {
			return
		}
		// identical bytes under a different name; if this path held other
		// content before, that content is gone
		state.detach(path, result)
		i, _ = state.byFingerprint(fingerprint)
		rec := &state.records[i]
		rec.Aliases = append(rec.Aliases, domain.DocumentAlias{Filename: filename, Path: path})
		result.Duplicates++
		logger.Debug("%s duplicates %s", filename, rec.Filename)
		return
	}

	changed := state.detach(path, result)
	state.records = append(state.records, domain.DocumentRecord{
		ID:           documentID(fingerprint),
		Filename:     filename,
		Path:         path,
		Fingerprint:  fingerprint,
		Class:        Classify(filename, content),
		SizeBytes:    int64(len(content)),
		DiscoveredAt: ix.now().UTC(),
	})
	if changed {
		result.Changed++
		logger.Debug("content of %s changed", filename)
	} else {
		result.New++
	}
}

// walk lists supported files under root in lexical order. Hidden entries and
// skipped directories are not descended into.
func (ix *DocumentIndexer) walk(ctx context.Context, root string) ([]string, int, error) {
	var files []string
	skipped := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("walking %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && ix.skipped(path) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if ix.converter == nil || !ix.converter.Supports(path) {
			skipped++
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		files = append(files, abs)
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, skipped, nil
}

func (ix *DocumentIndexer) skipped(dir string) bool {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	for _, skip := range ix.skipDirs {
		if abs == skip {
			return true
		}
	}
	return false
}

// indexState is the record set being rebuilt by one pass.
type indexState struct {
	records []domain.DocumentRecord
}

func newIndexState(existing []domain.DocumentRecord) *indexState {
	records := make([]domain.DocumentRecord, len(existing))
	for i, rec := range existing {
		rec.Aliases = append([]domain.DocumentAlias(nil), rec.Aliases...)
		records[i] = rec
	}
	return &indexState{records: records}
}

func (s *indexState) byFingerprint(fingerprint string) (int, bool) {
	for i := range s.records {
		if s.records[i].Fingerprint == fingerprint {
			return i, true
		}
	}
	return -1, false
}

// detach removes path from whichever record holds it. A record whose primary
// path is detached is promoted to its first alias, or dropped if it has none.
// It reports whether path was known.
func (s *indexState) detach(path string, result *IndexResult) bool {
	for i := range s.records {
		rec := &s.records[i]
		if rec.Path == path {
			if len(rec.Aliases) > 0 {
				rec.Path, rec.Filename = rec.Aliases[0].Path, rec.Aliases[0].Filename
				rec.Aliases = rec.Aliases[1:]
			} else {
				result.ChangedIDs = append(result.ChangedIDs, rec.ID)
				s.records = append(s.records[:i], s.records[i+1:]...)
			}
			return true
		}
		for j, alias := range rec.Aliases {
			if alias.Path == path {
				rec.Aliases = append(rec.Aliases[:j], rec.Aliases[j+1:]...)
				return true
			}
		}
	}
	return false
}

// prune drops paths that were not seen in this pass and returns how many
// records disappeared entirely.
func (s *indexState) prune(seen map[string]bool, result *IndexResult) int {
	removed := 0
	kept := s.records[:0]
	for _, rec := range s.records {
		aliases := rec.Aliases[:0]
		for _, alias := range rec.Aliases {
			if seen[alias.Path] {
				aliases = append(aliases, alias)
			}
		}
		rec.Aliases = aliases

		if !seen[rec.Path] {
			if len(rec.Aliases) == 0 {
				removed++
				result.ChangedIDs = append(result.ChangedIDs, rec.ID)
				continue
			}
			rec.Path, rec.Filename = rec.Aliases[0].Path, rec.Aliases[0].Filename
			rec.Aliases = rec.Aliases[1:]
		}
		if len(rec.Aliases) == 0 {
			rec.Aliases = nil
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return removed
}

// Fingerprint returns the hex SHA-256 of content.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func documentID(fingerprint string) string {
	if len(fingerprint) > 16 {
		fingerprint = fingerprint[:16]
	}
	return "doc-" + fingerprint
}

// classRule maps keywords to a class. Keywords match whole words or phrases.
type classRule struct {
	class    domain.DocumentClass
	keywords []string
}

// filenameRules are checked in order; the first match wins.
var filenameRules = []classRule{
	{domain.ClassMonitoringReport, []string{"monitoring", "verification report"}},
	{domain.ClassBaselineReport, []string{"baseline", "soil sampling", "sampling plan"}},
	{domain.ClassGHGEmissions, []string{"ghg", "emissions", "emission", "greenhouse gas", "carbon accounting"}},
	{domain.ClassLandTenure, []string{"tenure", "deed", "title", "lease", "easement", "land ownership"}},
	{domain.ClassRegistryRecord, []string{"registry", "registration", "credit batch", "issuance", "credit class"}},
	{domain.ClassMapOrSpatial, []string{"map", "maps", "spatial", "boundary", "boundaries", "gis", "kml", "shapefile"}},
	{domain.ClassProjectPlan, []string{"project plan", "project design", "pdd", "plan", "project description"}},
}

// contentRules are checked against the first bytes of text files.
var contentRules = []classRule{
	{domain.ClassMonitoringReport, []string{"monitoring report", "monitoring period"}},
	{domain.ClassBaselineReport, []string{"baseline report", "baseline sampling", "baseline scenario"}},
	{domain.ClassGHGEmissions, []string{"greenhouse gas", "ghg emissions", "emission reductions"}},
	{domain.ClassLandTenure, []string{"land tenure", "title deed", "lease agreement", "conservation easement"}},
	{domain.ClassRegistryRecord, []string{"credit batch", "registry record", "credit issuance"}},
	{domain.ClassMapOrSpatial, []string{"project boundary map", "coordinates", "spatial data"}},
	{domain.ClassProjectPlan, []string{"project plan", "project design document", "project description"}},
}

var spatialExtensions = map[string]bool{".kml": true, ".kmz": true, ".geojson": true, ".shp": true}

// Classify labels a document by filename, then by sniffing the start of
// text content.
func Classify(filename string, content []byte) domain.DocumentClass {
	if spatialExtensions[strings.ToLower(filepath.Ext(filename))] {
		return domain.ClassMapOrSpatial
	}

	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	if class, ok := matchRules(filenameRules, name); ok {
		return class
	}

	head := content
	if len(head) > sniffBytes {
		head = head[:sniffBytes]
		// the cut may split a rune
		for i := 0; i < utf8.UTFMax && !utf8.Valid(head); i++ {
			head = head[:len(head)-1]
		}
	}
	if len(head) == 0 || !utf8.Valid(head) || strings.HasPrefix(string(head), "%PDF") {
		return domain.ClassUnknown
	}
	if class, ok := matchRules(contentRules, string(head)); ok {
		return class
	}
	return domain.ClassUnknown
}

func matchRules(rules []classRule, text string) (domain.DocumentClass, bool) {
	normalized := " " + wordsOf(text) + " "
	for _, rule := range rules {
		for _, kw := range rule.keywords {
			if strings.Contains(normalized, " "+kw+" ") {
				return rule.class, true
			}
		}
	}
	return "", false
}

// wordsOf lowercases text and splits camel case, digits and punctuation into
// space-separated words.
func wordsOf(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 8)
	var prev rune
	space := true
	for _, r := range text {
		switch {
		case unicode.IsLetter(r):
			if unicode.IsUpper(r) && unicode.IsLower(prev) && !space {
				b.WriteByte(' ')
			}
			b.WriteRune(unicode.ToLower(r))
			space = false
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
		prev = r
	}
	return strings.TrimSpace(b.String())
}
