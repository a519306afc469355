package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/connectors/filesystem"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driving"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/logger"
)

// watchQuiet is how long the documents directory must be still before a
// watched discovery re-runs.
const watchQuiet = 750 * time.Millisecond

var (
	discoverWatch bool
	discoverJSON  bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover [session-id]",
	Short: "Discover the session's documents",
	Long: `Index every supported file under the session's documents directory.

Each file is fingerprinted and classified. Files with identical content are
recorded once, with the other names kept as aliases. Re-running discovery is
safe: unchanged documents keep their records, and new or changed documents
send evidence extraction back to pending.

With --watch, discovery re-runs whenever files in the directory change.`,
	Args: cobra.ExactArgs(1),
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().BoolVarP(&discoverWatch, "watch", "w", false, "re-run discovery when files change")
	discoverCmd.Flags().BoolVar(&discoverJSON, "json", false, "output the result as JSON")
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	if evidenceService == nil {
		return errNotConfigured("evidence")
	}
	sessionID := args[0]

	if err := discoverOnce(cmd, sessionID); err != nil {
		return err
	}
	if !discoverWatch {
		return nil
	}
	return watchAndDiscover(cmd.Context(), cmd, sessionID)
}

func discoverOnce(cmd *cobra.Command, sessionID string) error {
	logger.Section("Discovery: " + sessionID)
	result, err := evidenceService.DiscoverDocuments(cmd.Context(), sessionID)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	if discoverJSON {
		return printJSON(cmd, result)
	}
	printDiscovery(cmd, result)
	return nil
}

func printDiscovery(cmd *cobra.Command, result *driving.DiscoveryResult) {
	st := newStyles(cmd.OutOrStdout())

	cmd.Println(st.title.Render(fmt.Sprintf("Documents (%d)", len(result.Documents))))
	for i := range result.Documents {
		doc := result.Documents[i]
		cmd.Printf("  %-40s %s\n", truncate(doc.Filename, 40), st.muted.Render(string(doc.Class)))
		for _, alias := range doc.Aliases {
			cmd.Printf("    %s %s\n", st.muted.Render("same as"), alias.Filename)
		}
	}
	cmd.Println()
	cmd.Printf("New: %d  Changed: %d  Removed: %d  Duplicates: %d  Skipped: %d\n",
		result.New, result.Changed, result.Removed, result.Duplicates, result.Skipped)
	if result.EvidenceDropped > 0 {
		cmd.Println(st.warn.Render(fmt.Sprintf("Dropped %d evidence fields from removed documents.", result.EvidenceDropped)))
	}
}

// watchAndDiscover re-runs discovery after each burst of file changes
// until ctx is cancelled.
func watchAndDiscover(ctx context.Context, cmd *cobra.Command, sessionID string) error {
	if sessionService == nil {
		return errNotConfigured("session")
	}
	session, err := sessionService.Load(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	var opts []filesystem.Option
	if storageDir != "" {
		opts = append(opts, filesystem.WithSkipDirs(storageDir))
	}
	watcher := filesystem.New(session.Project.DocumentsPath, opts...)
	defer watcher.Close()

	changes, err := watcher.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", session.Project.DocumentsPath, err)
	}

	cmd.Printf("\nWatching %s (Ctrl+C to stop)\n", session.Project.DocumentsPath)
	for batch := range filesystem.Debounce(ctx, changes, watchQuiet) {
		logger.Debug("discover: %d file changes", len(batch))
		cmd.Printf("\n%d file changes, re-running discovery\n", len(batch))
		if err := discoverOnce(cmd, sessionID); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			logger.Warn("%v", err)
		}
	}
	return nil
}
