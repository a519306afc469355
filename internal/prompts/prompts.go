// Package prompts holds the built-in extraction prompt templates.
//
// The templates are plain text files embedded in the binary. The file-based
// prompt store copies them to the user's prompt directory for editing and
// falls back to them when a file is missing.
package prompts

import (
	"embed"
	"path"
	"sort"
	"strings"
)

//go:embed templates/*.txt
var templates embed.FS

// Default returns the built-in template for name.
func Default(name string) (string, bool) {
	data, err := templates.ReadFile(path.Join("templates", name+".txt"))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// Names lists the built-in template names.
func Names() []string {
	entries, err := templates.ReadDir("templates")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".txt"))
	}
	sort.Strings(names)
	return names
}
