package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driving"
)

var summaryJSON bool

var summaryCmd = &cobra.Command{
	Use:   "summary [session-id]",
	Short: "Show evidence, coverage and cost for a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummary,
}

func init() {
	summaryCmd.Flags().BoolVar(&summaryJSON, "json", false, "output the summary as JSON")
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(cmd *cobra.Command, args []string) error {
	if evidenceService == nil {
		return errNotConfigured("evidence")
	}

	summary, err := evidenceService.GetEvidenceSummary(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get summary: %w", err)
	}

	if summaryJSON {
		return printJSON(cmd, summary)
	}
	cmd.Println(renderSummary(newStyles(cmd.OutOrStdout()), summary))
	return nil
}

func renderSummary(st *styles, s *driving.EvidenceSummary) string {
	var b strings.Builder

	b.WriteString(st.title.Render(s.ProjectName) + "  " + st.muted.Render(s.SessionID) + "\n\n")

	fmt.Fprintf(&b, "%s %d/%d requirements\n",
		st.label.Render("Coverage "), s.RequirementsCovered, s.RequirementsTotal)
	b.WriteString("          " + st.bar(s.CoverageRatio) + "\n\n")

	fmt.Fprintf(&b, "%s %d (%d duplicates)\n", st.label.Render("Documents"), s.Documents, s.DuplicateDocuments)
	if s.PendingDocuments > 0 {
		b.WriteString(st.warn.Render(fmt.Sprintf("  %d not yet extracted; run 'registry-review extract %s'", s.PendingDocuments, s.SessionID)) + "\n")
	}
	fmt.Fprintf(&b, "%s %d\n", st.label.Render("Evidence "), s.EvidenceCount)
	for _, row := range sortedCounts(s.ByFieldType) {
		fmt.Fprintf(&b, "  %-26s %d\n", row.key, row.count)
	}
	if len(s.ByVerification) > 0 {
		parts := make([]string, 0, len(s.ByVerification))
		for _, row := range sortedCounts(s.ByVerification) {
			parts = append(parts, fmt.Sprintf("%s %d", st.verification(domain.VerificationOutcome(row.key)), row.count))
		}
		b.WriteString("  " + strings.Join(parts, "  ") + "\n")
	}
	if len(s.ByBackend) > 0 {
		parts := make([]string, 0, len(s.ByBackend))
		for _, row := range sortedCounts(s.ByBackend) {
			parts = append(parts, fmt.Sprintf("%s %d", row.key, row.count))
		}
		b.WriteString("  " + st.muted.Render("backends: "+strings.Join(parts, ", ")) + "\n")
	}
	b.WriteString("\n")

	stages := make([]string, 0, len(domain.WorkflowStages()))
	for _, stage := range domain.WorkflowStages() {
		stages = append(stages, fmt.Sprintf("%-20s %s", stage, st.stage(s.Stages[stage])))
	}
	cost := fmt.Sprintf("%s $%.4f\n%d calls, %d cache hits (%.0f%%)\n%d in / %d out tokens",
		st.label.Render("Cost"), s.Cost.TotalCostUSD,
		s.Cost.TotalCalls, s.Cost.CacheHits, s.Cost.CacheHitRatio*100,
		s.Cost.InputTokens, s.Cost.OutputTokens)

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		st.box.Render(strings.Join(stages, "\n")),
		" ",
		st.box.Render(cost),
	))
	return b.String()
}

type countRow struct {
	key   string
	count int
}

// sortedCounts orders counts by descending count, then key.
func sortedCounts[K ~string](in map[K]int) []countRow {
	rows := make([]countRow, 0, len(in))
	for k, v := range in {
		rows = append(rows, countRow{key: string(k), count: v})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].key < rows[j].key
	})
	return rows
}
