package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driving"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/logger"
)

var extractJSON bool

var extractCmd = &cobra.Command{
	Use:   "extract [session-id]",
	Short: "Extract evidence from discovered documents",
	Long: `Extract compliance evidence from every discovered document.

Each claim is checked against the text it cites; claims that are not found in
the source are dropped. Results are cached per document, so running extract
again on unchanged documents makes no model calls.

Without a configured model backend, deterministic pattern matching runs instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().BoolVar(&extractJSON, "json", false, "output the result as JSON")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	if evidenceService == nil {
		return errNotConfigured("evidence")
	}

	logger.Section("Evidence extraction: " + args[0])
	result, err := evidenceService.ExtractAllEvidence(cmd.Context(), args[0])
	if err != nil {
		if domain.IsMissingChecklist(err) {
			return fmt.Errorf("extraction failed: %w (add a checklist file for the methodology)", err)
		}
		return fmt.Errorf("extraction failed: %w", err)
	}

	if extractJSON {
		return printJSON(cmd, result)
	}
	printExtraction(cmd, result)
	return nil
}

func printExtraction(cmd *cobra.Command, result *driving.ExtractionResult) {
	st := newStyles(cmd.OutOrStdout())

	cmd.Println(st.title.Render("Evidence extraction"))
	for i := range result.Documents {
		doc := result.Documents[i]
		source := string(doc.Backend)
		if doc.FromCache {
			source += ", cached"
		}
		cmd.Printf("  %-40s %2d fields  %s\n", truncate(doc.Document.Filename, 40), len(doc.Fields), st.muted.Render(source))
		if doc.ChunksFailed > 0 {
			cmd.Printf("    %s\n", st.warn.Render(fmt.Sprintf("%d of %d chunks failed", doc.ChunksFailed, doc.ChunksProcessed)))
		}
		for _, f := range doc.Fields {
			cmd.Printf("    %-24s %-30s %s\n", f.FieldType, truncate(f.Value, 30), st.verification(f.Verification))
		}
	}
	cmd.Println()
	cmd.Printf("Evidence: %d  Model calls: %d  Cache hits: %d  Failed chunks: %d\n",
		result.EvidenceCount, result.ModelCalls, result.CacheHits, result.FailedChunks)
}
