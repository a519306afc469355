package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/adapters/driven/ai"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/adapters/driven/checklist"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/adapters/driven/config/file"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/adapters/driven/storage/badger"
	sessionfile "github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/adapters/driven/storage/file"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/adapters/driven/storage/memory"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/adapters/driven/storage/sqlite"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/adapters/driving/cli"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/converters"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/services"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/logger"
)

// pdfPageImages is the number of leading PDF pages sent to the model as images.
const pdfPageImages = 2

// bootstrap builds the services for one command from the configuration.
func bootstrap(ctx context.Context, opts cli.Options) (*cli.Services, func(), error) {
	configDir, err := file.DefaultDir()
	if err != nil {
		return nil, nil, fmt.Errorf("locate config directory: %w", err)
	}
	configStore, err := file.NewConfigStore(configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open config: %w", err)
	}

	settingsService := services.NewSettingsService(configStore, ai.NewConfigValidator())
	if opts.SettingsOnly {
		return &cli.Services{Settings: settingsService}, func() {}, nil
	}
	settings, err := settingsService.Get()
	if err != nil {
		return nil, nil, err
	}
	if opts.DataDir != "" {
		abs, err := filepath.Abs(opts.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve data dir: %w", err)
		}
		settings.Storage.DataDir = abs
	}
	logger.Debug("data directory: %s", settings.Storage.DataDir)

	var closers []func() error
	cleanup := func() {
		// release in reverse order of acquisition
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("shutdown: %v", err)
			}
		}
	}
	fail := func(err error) (*cli.Services, func(), error) {
		cleanup()
		return nil, nil, err
	}

	sessionStore, err := sessionfile.NewSessionStoreFromSettings(settings.Storage)
	if err != nil {
		return fail(fmt.Errorf("open session store: %w", err))
	}

	store, err := sqlite.NewStore(settings.Storage.LedgerPath())
	if err != nil {
		return fail(fmt.Errorf("open ledger database: %w", err))
	}
	closers = append(closers, store.Close)

	var (
		ledger driven.CostLedger = store.CostLedger()
		cache  driven.Cache
	)
	if opts.Ephemeral {
		ledger = memory.NewCostLedger()
		cache = memory.NewCache()
	} else {
		badgerCache, err := badger.OpenFromSettings(settings.Storage, settings.Cache)
		if err != nil {
			return fail(fmt.Errorf("open cache: %w", err))
		}
		cache = badgerCache
	}
	closers = append(closers, cache.Close)

	sessions := services.NewSessionService(sessionStore, store.SessionIndex())
	if n, err := sessions.Reconcile(ctx); err != nil {
		logger.Warn("session index reconcile: %v", err)
	} else {
		logger.Debug("session index: %d sessions", n)
	}

	backend := ai.Initialise(ctx, settings.Extraction, settings.LLM)
	closers = append(closers, func() error {
		backend.Close()
		return nil
	})
	for _, w := range backend.Warnings {
		logger.Warn("falling back to pattern extraction: %s", w)
	}

	prompts, err := file.NewPromptStore(filepath.Join(configDir, "prompts"))
	if err != nil {
		return fail(fmt.Errorf("open prompt store: %w", err))
	}

	costs := services.NewCostRecorder(ledger)
	converter := converters.NewDefaultRegistry(pdfPageImages, converters.WithCache(cache, settings.Cache.TTL))
	engine := services.NewExtractionEngine(*settings, backend.Backend, converter, cache, costs)
	engine.SetPromptStore(prompts)
	indexer := services.NewDocumentIndexer(converter, services.WithSkipDirs(settings.Storage.DataDir, configDir))
	catalog := checklist.NewCatalog(filepath.Join(configDir, "methodologies"))
	evidence := services.NewEvidenceService(*settings, sessions, catalog, indexer, engine, costs)

	return &cli.Services{
		Sessions: sessions,
		Evidence: evidence,
		Settings: settingsService,
		Ledger:   ledger,
		Cache:    cache,
		DataDir:  settings.Storage.DataDir,
	}, cleanup, nil
}
