package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
)

// cacheNamespaces are the namespaces cache clear accepts.
var cacheNamespaces = []string{
	driven.CacheNamespaceChunk,
	driven.CacheNamespaceDocument,
	driven.CacheNamespaceConversion,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the extraction cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [namespace...]",
	Short: "Remove cached extractions and conversions",
	Long: `Remove cached entries. Without arguments every namespace is cleared.

Namespaces:
  llm_chunk     per-chunk model results
  llm_document  merged per-document results
  conversion    converted document text

The next extract run pays for model calls again.`,
	RunE: runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	if cacheStore == nil {
		return errNotConfigured("cache")
	}

	namespaces := args
	if len(namespaces) == 0 {
		namespaces = cacheNamespaces
	}
	for _, ns := range namespaces {
		if !slices.Contains(cacheNamespaces, ns) {
			return fmt.Errorf("unknown cache namespace %q (want one of %v)", ns, cacheNamespaces)
		}
	}

	for _, ns := range namespaces {
		if err := cacheStore.Clear(cmd.Context(), ns); err != nil {
			return fmt.Errorf("failed to clear %s: %w", ns, err)
		}
		cmd.Printf("Cleared %s\n", ns)
	}
	return nil
}
