// Package cli provides the cobra command tree for the registry-review binary.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driving"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/logger"
)

// version is set at build time.
var version = "dev"

// Command annotations read by prepareServices.
const (
	// annotationNoServices marks commands that run without bootstrapping services.
	annotationNoServices = "no-services"

	// annotationSettingsOnly marks commands that only need the settings
	// service, so they still work when the configuration is invalid.
	annotationSettingsOnly = "settings-only"
)

// Global flags.
var (
	verbose   bool
	dataDir   string
	ephemeral bool
)

// Services used by the commands. Set by SetServices or the bootstrap func.
var (
	sessionService  driving.SessionService
	evidenceService driving.EvidenceService
	settingsService driving.SettingsService
	costLedger      driven.CostLedger
	cacheStore      driven.Cache
	storageDir      string
)

// Services holds everything the commands run against.
type Services struct {
	Sessions driving.SessionService
	Evidence driving.EvidenceService
	Settings driving.SettingsService
	Ledger   driven.CostLedger
	Cache    driven.Cache

	// DataDir is the resolved storage directory. Watchers skip it.
	DataDir string
}

// Options carries the global flags to a Bootstrap func.
type Options struct {
	DataDir      string
	Ephemeral    bool
	SettingsOnly bool
}

// Bootstrap builds the services for one invocation. The returned func
// releases them and is called once the command finishes.
type Bootstrap func(ctx context.Context, opts Options) (*Services, func(), error)

var (
	bootstrap Bootstrap
	release   func()
)

var rootCmd = &cobra.Command{
	Use:   "registry-review",
	Short: "Compliance evidence extraction for carbon registry reviews",
	Long: `registry-review extracts compliance evidence from a project's documents,
verifies every claim against its source text, and tracks the review in a
resumable session.

A review runs in stages:
  registry-review session create ./project --name "Ranch" --methodology soil-carbon-v1
  registry-review discover <session-id>
  registry-review extract <session-id>
  registry-review summary <session-id>

Run 'registry-review mcp' to drive the same workflow from an AI assistant.`,
	SilenceUsage:      true,
	PersistentPreRunE: prepareServices,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override storage.data_dir")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "keep cache and ledger in memory for this run")
}

// SetServices sets the services the commands run against.
func SetServices(s *Services) {
	if s == nil {
		s = &Services{}
	}
	sessionService = s.Sessions
	evidenceService = s.Evidence
	settingsService = s.Settings
	costLedger = s.Ledger
	cacheStore = s.Cache
	storageDir = s.DataDir
}

// SetBootstrap sets the func that builds services before a command runs.
// Services already set with SetServices are left alone.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

func prepareServices(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)

	if bootstrap == nil || cmd.Annotations[annotationNoServices] == "true" {
		return nil
	}
	settingsOnly := cmd.Annotations[annotationSettingsOnly] == "true"
	if sessionService != nil || (settingsOnly && settingsService != nil) {
		return nil
	}

	services, cleanup, err := bootstrap(cmd.Context(), Options{
		DataDir:      dataDir,
		Ephemeral:    ephemeral,
		SettingsOnly: settingsOnly,
	})
	if err != nil {
		return fmt.Errorf("initialise services: %w", err)
	}
	SetServices(services)
	release = cleanup
	return nil
}

// Execute runs the root command and releases services afterwards.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() {
		if release != nil {
			release()
			release = nil
		}
	}()

	return rootCmd.ExecuteContext(ctx)
}

// errNotConfigured reports a missing service.
func errNotConfigured(name string) error {
	return errors.New(name + " service not configured")
}
