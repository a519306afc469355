package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
)

var (
	sessionName        string
	sessionMethodology string
	sessionProjectID   string
	sessionListJSON    bool
	sessionLoadJSON    bool
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage review sessions",
	Long: `Create, inspect and delete review sessions.

A session tracks one project's review across every workflow stage. Only one
session may point at a given documents directory.`,
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create [documents-path]",
	Short: "Start a review session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionCreate,
}

var sessionLoadCmd = &cobra.Command{
	Use:   "load [session-id]",
	Short: "Show a session's stages and statistics",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionLoad,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, oldest first",
	Args:  cobra.NoArgs,
	RunE:  runSessionList,
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete [session-id]",
	Short: "Delete a session and its stored state",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionDelete,
}

func init() {
	sessionCreateCmd.Flags().StringVar(&sessionName, "name", "", "project name (required)")
	sessionCreateCmd.Flags().StringVarP(&sessionMethodology, "methodology", "m", "", "methodology id, e.g. soil-carbon-v1 (required)")
	sessionCreateCmd.Flags().StringVar(&sessionProjectID, "project-id", "", "registry project id, if known")
	sessionLoadCmd.Flags().BoolVar(&sessionLoadJSON, "json", false, "output the session as JSON")
	sessionListCmd.Flags().BoolVar(&sessionListJSON, "json", false, "output sessions as JSON")

	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionLoadCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
	rootCmd.AddCommand(sessionCmd)
}

func runSessionCreate(cmd *cobra.Command, args []string) error {
	if sessionService == nil {
		return errNotConfigured("session")
	}

	session, err := sessionService.Create(cmd.Context(), domain.ProjectMetadata{
		Name:          sessionName,
		MethodologyID: sessionMethodology,
		DocumentsPath: args[0],
		ProjectID:     sessionProjectID,
	})
	if dup, ok := domain.IsDuplicateSession(err); ok {
		return fmt.Errorf("session %s already reviews %s; run 'registry-review session load %s': %w",
			dup.ExistingID, dup.Path, dup.ExistingID, err)
	}
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	cmd.Printf("Created session %s\n", session.ID)
	cmd.Printf("  Project:     %s\n", session.Project.Name)
	cmd.Printf("  Methodology: %s\n", session.Project.MethodologyID)
	cmd.Printf("  Documents:   %s\n", session.Project.DocumentsPath)
	cmd.Println()
	cmd.Printf("Next: registry-review discover %s\n", session.ID)
	return nil
}

func runSessionLoad(cmd *cobra.Command, args []string) error {
	if sessionService == nil {
		return errNotConfigured("session")
	}

	session, err := sessionService.Load(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	if sessionLoadJSON {
		return printJSON(cmd, session)
	}

	st := newStyles(cmd.OutOrStdout())
	cmd.Println(st.title.Render(session.Project.Name))
	cmd.Printf("  Session:     %s\n", session.ID)
	cmd.Printf("  Methodology: %s\n", session.Project.MethodologyID)
	cmd.Printf("  Documents:   %s\n", session.Project.DocumentsPath)
	if session.Project.ProjectID != "" {
		cmd.Printf("  Project ID:  %s\n", session.Project.ProjectID)
	}
	cmd.Printf("  Updated:     %s\n", session.UpdatedAt.Local().Format(time.DateTime))
	cmd.Println()

	cmd.Println(st.label.Render("Stages"))
	for _, stage := range domain.WorkflowStages() {
		cmd.Printf("  %-20s %s\n", stage, st.stage(session.StageStatus(stage)))
	}
	cmd.Println()

	stats := session.Statistics
	cmd.Println(st.label.Render("Statistics"))
	cmd.Printf("  Documents:    %d (%d duplicates)\n", stats.DocumentsDiscovered, stats.DuplicateDocuments)
	cmd.Printf("  Evidence:     %d\n", stats.EvidenceCount)
	cmd.Printf("  Requirements: %d/%d covered\n", stats.RequirementsCovered, stats.RequirementsTotal)
	cmd.Printf("  API calls:    %d ($%.4f)\n", stats.APICalls, stats.TotalCostUSD)
	return nil
}

func runSessionList(cmd *cobra.Command, _ []string) error {
	if sessionService == nil {
		return errNotConfigured("session")
	}

	summaries, err := sessionService.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if sessionListJSON {
		return printJSON(cmd, summaries)
	}

	if len(summaries) == 0 {
		cmd.Println("No sessions. Create one with 'registry-review session create'.")
		return nil
	}

	st := newStyles(cmd.OutOrStdout())
	for i := range summaries {
		s := summaries[i]
		cmd.Printf("%s  %s\n", st.label.Render(s.ID), s.ProjectName)
		cmd.Printf("    %s  %s\n", st.muted.Render(s.MethodologyID), s.DocumentsPath)
	}
	return nil
}

func runSessionDelete(cmd *cobra.Command, args []string) error {
	if sessionService == nil {
		return errNotConfigured("session")
	}

	if err := sessionService.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	cmd.Printf("Deleted session %s\n", args[0])
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
