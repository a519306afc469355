package converters

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/converters/docx"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/converters/html"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/converters/image"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/converters/markdown"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/converters/pdf"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/converters/plaintext"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/logger"
)

// Ensure Registry implements the interface.
var _ driven.DocumentConverter = (*Registry)(nil)

// Registry selects a converter by file extension and caches conversions by
// content hash.
type Registry struct {
	mu         sync.RWMutex
	converters map[string][]driven.Converter

	cache driven.Cache
	ttl   time.Duration
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithCache stores conversions in the conversion namespace of cache.
func WithCache(cache driven.Cache, ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		r.cache = cache
		r.ttl = ttl
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{converters: make(map[string][]driven.Converter)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewDefaultRegistry creates a registry with every built-in converter.
// pdfPageImages is the number of leading PDF pages rendered as images.
func NewDefaultRegistry(pdfPageImages int, opts ...RegistryOption) *Registry {
	r := NewRegistry(opts...)
	r.Register(markdown.New())
	r.Register(plaintext.New())
	r.Register(pdf.New(pdf.WithPageImages(pdfPageImages)))
	r.Register(docx.New())
	r.Register(html.New())
	r.Register(image.New())
	return r
}

// Register adds a converter for each of its extensions.
func (r *Registry) Register(c driven.Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range c.SupportedExtensions() {
		ext = strings.ToLower(ext)
		list := append(r.converters[ext], c)
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Priority() > list[j].Priority()
		})
		r.converters[ext] = list
	}
}

// SupportedExtensions returns every registered extension, sorted.
func (r *Registry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.converters))
	for ext := range r.converters {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Supports reports whether any converter handles the path's extension.
func (r *Registry) Supports(path string) bool {
	return r.lookup(path) != nil
}

func (r *Registry) lookup(path string) driven.Converter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.converters[strings.ToLower(filepath.Ext(path))]
	if len(list) == 0 {
		return nil
	}
	return list[0]
}

// Convert reads path and converts it with the highest-priority converter.
// Results are served from and written to the cache when one is configured.
func (r *Registry) Convert(ctx context.Context, path string) (*domain.ConvertedDocument, error) {
	c := r.lookup(path)
	if c == nil {
		return nil, &domain.ConversionError{Path: path, Err: fmt.Errorf("%w: %s", domain.ErrUnsupportedType, filepath.Ext(path))}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ConversionError{Path: path, Err: err}
	}

	key := cacheKey(content, filepath.Ext(path))
	if r.cache != nil {
		if payload, ok := r.cache.Get(ctx, driven.CacheNamespaceConversion, key); ok {
			var doc domain.ConvertedDocument
			if err := json.Unmarshal(payload, &doc); err == nil {
				logger.Debug("conversion cache hit for %s", path)
				return &doc, nil
			}
			logger.Warn("discarding unreadable conversion cache entry for %s", path)
		}
	}

	doc, err := c.Convert(ctx, path, content)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		payload, err := json.Marshal(doc)
		if err == nil {
			err = r.cache.Set(ctx, driven.CacheNamespaceConversion, key, payload, r.ttl)
		}
		if err != nil {
			logger.Warn("caching conversion of %s: %v", path, err)
		}
	}
	return doc, nil
}

func cacheKey(content []byte, ext string) string {
	sum := sha256.Sum256(content)
	return strings.ToLower(ext) + ":" + hex.EncodeToString(sum[:])
}
