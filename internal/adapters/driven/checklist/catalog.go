// Package checklist provides the requirement catalog read from YAML files.
//
// Built-in methodologies are embedded in the binary. A catalog directory, if
// given, is searched first, so a file named <methodology_id>.yaml there
// replaces the built-in checklist of the same id.
package checklist

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
)

//go:embed methodologies/*.yaml
var builtin embed.FS

// Ensure Catalog implements the interface.
var _ driven.ChecklistCatalog = (*Catalog)(nil)

// Catalog loads checklists from an optional directory and the built-in set.
type Catalog struct {
	dir string

	mu    sync.RWMutex
	cache map[string]*domain.Checklist
}

// NewCatalog creates a catalog. dir may be empty for built-ins only.
func NewCatalog(dir string) *Catalog {
	return &Catalog{
		dir:   dir,
		cache: make(map[string]*domain.Checklist),
	}
}

// Load returns the checklist for a methodology.
func (c *Catalog) Load(_ context.Context, methodologyID string) (*domain.Checklist, error) {
	if methodologyID == "" || strings.ContainsAny(methodologyID, `/\`) || strings.HasPrefix(methodologyID, ".") {
		return nil, &domain.MissingChecklistError{MethodologyID: methodologyID}
	}

	c.mu.RLock()
	cached, ok := c.cache[methodologyID]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	data, err := c.read(methodologyID)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.MissingChecklistError{MethodologyID: methodologyID}
		}
		return nil, fmt.Errorf("read checklist %s: %w", methodologyID, err)
	}

	checklist, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse checklist %s: %w", methodologyID, err)
	}
	if checklist.MethodologyID == "" {
		checklist.MethodologyID = methodologyID
	}
	if len(checklist.Requirements) == 0 {
		return nil, &domain.MissingChecklistError{MethodologyID: methodologyID}
	}

	c.mu.Lock()
	c.cache[methodologyID] = checklist
	c.mu.Unlock()
	return checklist, nil
}

// Methodologies lists the available methodology ids.
func (c *Catalog) Methodologies(_ context.Context) ([]string, error) {
	seen := make(map[string]bool)

	entries, err := fs.ReadDir(builtin, "methodologies")
	if err != nil {
		return nil, fmt.Errorf("read built-in checklists: %w", err)
	}
	for _, e := range entries {
		if id, ok := checklistID(e.Name()); ok {
			seen[id] = true
		}
	}

	if c.dir != "" {
		entries, err := os.ReadDir(c.dir)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read checklist directory: %w", err)
		}
		for _, e := range entries {
			if id, ok := checklistID(e.Name()); ok && !e.IsDir() {
				seen[id] = true
			}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *Catalog) read(methodologyID string) ([]byte, error) {
	if c.dir != "" {
		for _, ext := range []string{".yaml", ".yml"} {
			data, err := os.ReadFile(filepath.Join(c.dir, methodologyID+ext))
			if err == nil {
				return data, nil
			}
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}
	return builtin.ReadFile("methodologies/" + methodologyID + ".yaml")
}

// parse decodes a checklist and rejects unknown field types.
func parse(data []byte) (*domain.Checklist, error) {
	var checklist domain.Checklist
	if err := yaml.Unmarshal(data, &checklist); err != nil {
		return nil, err
	}

	ids := make(map[string]bool, len(checklist.Requirements))
	for _, req := range checklist.Requirements {
		if req.ID == "" {
			return nil, fmt.Errorf("%w: requirement without id", domain.ErrInvalidInput)
		}
		if ids[req.ID] {
			return nil, fmt.Errorf("%w: duplicate requirement %s", domain.ErrInvalidInput, req.ID)
		}
		ids[req.ID] = true
		for _, ft := range req.FieldTypes {
			if !ft.IsValid() {
				return nil, fmt.Errorf("%w: requirement %s names unknown field type %q", domain.ErrInvalidInput, req.ID, ft)
			}
		}
	}
	return &checklist, nil
}

func checklistID(name string) (string, bool) {
	for _, ext := range []string{".yaml", ".yml"} {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext), true
		}
	}
	return "", false
}
