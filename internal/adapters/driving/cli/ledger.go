package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	ledgerJSON    bool
	ledgerEntries bool
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger [session-id]",
	Short: "Show model spend",
	Long: `Show the cost ledger: every paid model call and cache hit, aggregated by
operation. Without a session id, spend across all sessions is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLedger,
}

func init() {
	ledgerCmd.Flags().BoolVar(&ledgerJSON, "json", false, "output as JSON")
	ledgerCmd.Flags().BoolVar(&ledgerEntries, "entries", false, "list individual entries")
	rootCmd.AddCommand(ledgerCmd)
}

func runLedger(cmd *cobra.Command, args []string) error {
	if costLedger == nil {
		return errNotConfigured("ledger")
	}
	var sessionID string
	if len(args) > 0 {
		sessionID = args[0]
	}

	if ledgerEntries {
		entries, err := costLedger.Entries(cmd.Context(), sessionID)
		if err != nil {
			return fmt.Errorf("failed to read ledger: %w", err)
		}
		if ledgerJSON {
			return printJSON(cmd, entries)
		}
		if len(entries) == 0 {
			cmd.Println("No ledger entries.")
			return nil
		}
		st := newStyles(cmd.OutOrStdout())
		for i := range entries {
			e := entries[i]
			kind := fmt.Sprintf("$%.5f", e.CostUSD)
			if e.CacheHit {
				kind = st.ok.Render("cache hit")
			}
			cmd.Printf("%s  %-20s %-28s %6d/%-6d %s\n",
				e.RecordedAt.Local().Format(time.DateTime), truncate(e.Operation, 20), truncate(e.Model, 28),
				e.Usage.InputTokens, e.Usage.OutputTokens, kind)
		}
		return nil
	}

	summary, err := costLedger.Summary(cmd.Context(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}
	if ledgerJSON {
		return printJSON(cmd, summary)
	}

	st := newStyles(cmd.OutOrStdout())
	scope := "all sessions"
	if sessionID != "" {
		scope = sessionID
	}
	cmd.Println(st.title.Render("Cost ledger") + "  " + st.muted.Render(scope))
	cmd.Printf("  Total:      $%.4f\n", summary.TotalCostUSD)
	cmd.Printf("  Calls:      %d\n", summary.TotalCalls)
	cmd.Printf("  Cache hits: %d (%.0f%%)\n", summary.CacheHits, summary.CacheHitRatio*100)
	cmd.Printf("  Tokens:     %d in / %d out\n", summary.InputTokens, summary.OutputTokens)
	if len(summary.ByOperation) > 0 {
		cmd.Println()
		for _, op := range summary.ByOperation {
			cmd.Printf("  %-24s %4d calls  $%.4f\n", op.Operation, op.Calls, op.CostUSD)
		}
	}
	return nil
}
