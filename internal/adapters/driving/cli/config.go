package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View and change configuration stored in ~/.registry-review/config.toml.

Environment variables (ANTHROPIC_API_KEY, OPENAI_API_KEY, REGISTRY_REVIEW_DATA_DIR)
override the file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show every setting and where its value comes from",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a setting",
	Long: `Set one setting by its dotted key, for example:

  registry-review config set extraction.backend openai
  registry-review config set extraction.max_concurrent_documents 8
  registry-review config set cache.ttl 720h

API keys may be omitted from the command line; you will be prompted for them.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runConfigSet,
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate settings and ping the extraction backend",
	RunE:  runConfigCheck,
}

func init() {
	for _, cmd := range []*cobra.Command{configCmd, configShowCmd, configSetCmd, configCheckCmd} {
		cmd.Annotations = map[string]string{annotationSettingsOnly: "true"}
	}
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errNotConfigured("settings")
	}

	values, err := settingsService.Keys()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	st := newStyles(cmd.OutOrStdout())
	section := ""
	for _, v := range values {
		name, key, _ := strings.Cut(v.Key, ".")
		if name != section {
			if section != "" {
				cmd.Println()
			}
			cmd.Println(st.label.Render("[" + name + "]"))
			section = name
		}
		value := v.Value
		if value == "" {
			value = "(not set)"
		}
		cmd.Printf("  %-26s %-32s %s\n", key, value, st.muted.Render(v.Source))
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errNotConfigured("settings")
	}

	key := args[0]
	var value string
	switch {
	case len(args) == 2:
		value = args[1]
	case isSecretKey(key):
		cmd.Printf("Enter %s: ", key)
		value = readPassword(cmd.InOrStdin())
		cmd.Println()
		if value == "" {
			return errors.New("a value is required")
		}
	default:
		return fmt.Errorf("a value is required for %s", key)
	}

	if err := settingsService.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	shown := value
	if isSecretKey(key) {
		shown = maskAPIKey(value)
	}
	cmd.Printf("Set %s = %s\n", key, shown)
	return nil
}

func runConfigCheck(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errNotConfigured("settings")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cmd.Println("Configuration is valid.")

	if !settings.Extraction.Enabled || settings.Extraction.Provider == domain.AIProviderPattern {
		cmd.Println("Extraction runs on pattern matching; no backend to check.")
		return nil
	}

	cmd.Printf("Checking %s (%s)... ", settings.Extraction.Provider, settings.Extraction.Model)
	if err := settingsService.ValidateBackend(cmd.Context()); err != nil {
		cmd.Println("FAILED")
		return fmt.Errorf("backend check failed: %w", err)
	}
	cmd.Println("OK")
	return nil
}

func isSecretKey(key string) bool {
	return strings.HasSuffix(key, "_api_key")
}

// readPassword reads a line without echo when in is a terminal.
func readPassword(in io.Reader) string {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		if err == nil {
			return strings.TrimSpace(string(password))
		}
	}
	// Fallback to regular input
	input, _ := bufio.NewReader(in).ReadString('\n') //nolint:errcheck // empty input is handled by the caller
	return strings.TrimSpace(input)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
