// Package pdf converts PDF files by shelling out to poppler's pdftotext, and
// optionally renders page images with pdftoppm for multimodal extraction.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
)

// ErrPDFToolNotFound is returned when pdftotext is not installed.
var ErrPDFToolNotFound = errors.New("pdftotext not found in PATH")

// Ensure Converter implements the interface.
var _ driven.Converter = (*Converter)(nil)

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Converter handles PDF documents.
type Converter struct {
	runner     CommandRunner
	lookPath   func(string) (string, error)
	pageImages int
}

// Option configures a Converter.
type Option func(*Converter)

// WithPageImages renders up to n leading pages as PNG images.
func WithPageImages(n int) Option {
	return func(c *Converter) {
		if n > 0 {
			c.pageImages = n
		}
	}
}

// New creates a PDF converter that runs poppler tools from PATH.
func New(opts ...Option) *Converter {
	c := &Converter{runner: execRunner{}, lookPath: exec.LookPath}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewWithRunner creates a PDF converter with an injected command runner.
func NewWithRunner(runner CommandRunner, opts ...Option) *Converter {
	c := New(opts...)
	c.runner = runner
	c.lookPath = func(name string) (string, error) { return name, nil }
	return c
}

// CheckAvailable reports whether pdftotext can be found.
func CheckAvailable() error {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return ErrPDFToolNotFound
	}
	return nil
}

// InstallInstructions describes how to install poppler.
func InstallInstructions() string {
	return `PDF conversion requires pdftotext from poppler:
  macOS:          brew install poppler
  Debian/Ubuntu:  apt install poppler-utils
  Fedora:         dnf install poppler-utils`
}

// SupportedExtensions returns the extensions this converter handles.
func (c *Converter) SupportedExtensions() []string {
	return []string{".pdf"}
}

// Priority returns the selection priority.
func (c *Converter) Priority() int {
	return 50
}

// Convert extracts page-separated text from the PDF at path.
func (c *Converter) Convert(ctx context.Context, path string, content []byte) (*domain.ConvertedDocument, error) {
	if len(content) > 0 && !bytes.HasPrefix(content, []byte("%PDF")) {
		return nil, &domain.ConversionError{Path: path, Err: fmt.Errorf("%w: missing PDF header", domain.ErrUnsupportedType)}
	}
	if _, err := c.lookPath("pdftotext"); err != nil {
		return nil, &domain.ConversionError{Path: path, Err: ErrPDFToolNotFound}
	}

	out, err := c.runner.Run(ctx, "pdftotext", "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return nil, &domain.ConversionError{Path: path, Err: err}
	}

	pages := splitPages(string(out))
	doc := &domain.ConvertedDocument{
		Text:      strings.Join(pages, "\f"),
		PageCount: len(pages),
		Format:    "text",
	}

	if c.pageImages > 0 {
		images, err := c.renderPages(ctx, path, min(c.pageImages, len(pages)))
		if err != nil {
			return nil, &domain.ConversionError{Path: path, Err: err}
		}
		doc.Images = images
	}
	return doc, nil
}

// splitPages splits pdftotext output on form feeds. The trailing form feed
// pdftotext writes after the last page does not start a new page.
func splitPages(out string) []string {
	out = strings.ReplaceAll(out, "\r\n", "\n")
	out = strings.TrimRight(out, "\f\n ")
	pages := strings.Split(out, "\f")
	for i, p := range pages {
		pages[i] = strings.TrimSpace(p)
	}
	return pages
}

// renderPages rasterises pages 1..n into a temp directory and reads them back.
func (c *Converter) renderPages(ctx context.Context, path string, n int) ([]domain.Image, error) {
	if n <= 0 {
		return nil, nil
	}
	dir, err := os.MkdirTemp("", "registry-review-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("create render directory: %w", err)
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	if _, err := c.runner.Run(ctx, "pdftoppm", "-png", "-r", "100", "-f", "1", "-l", fmt.Sprint(n), path, prefix); err != nil {
		return nil, err
	}

	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	images := make([]domain.Image, 0, len(matches))
	for i, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			return nil, fmt.Errorf("read rendered page: %w", err)
		}
		images = append(images, domain.Image{MediaType: "image/png", Data: data, Page: i + 1})
	}
	return images, nil
}
