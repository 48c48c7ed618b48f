// Package extension provides the Forge extension adapter for Folio.
//
// It implements the forge.Extension interface to integrate Folio
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.folio" or "folio" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/folio"
	audithook "github.com/xraph/folio/audit_hook"
	"github.com/xraph/folio/config"
	"github.com/xraph/folio/store"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "folio"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Document numbering, plan quotas and audit trail for invoicing"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Folio as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config    Config
	engine    *folio.Folio
	store     store.Store
	folioOpts []folio.Option
}

// New creates a new Folio Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Folio instance.
// This is nil until Register is called.
func (e *Extension) Engine() *folio.Folio { return e.engine }

// Config returns the resolved configuration.
func (e *Extension) Config() Config { return e.config }

// Register implements [forge.Extension]. It loads configuration, opens the
// store, builds the engine and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		s, err := config.OpenStore(context.Background(), e.config.Store)
		if err != nil {
			return fmt.Errorf("folio: open store: %w", err)
		}
		e.store = s
	}

	e.engine = folio.New(e.store, e.buildFolioOpts()...)

	return vessel.Provide(fapp.Container(), func() (*folio.Folio, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("folio: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("folio: extension not initialized")
	}
	return e.engine.Ping(ctx)
}

// buildFolioOpts turns the resolved config into engine options. Options
// passed with WithFolioOption come last and win.
func (e *Extension) buildFolioOpts() []folio.Option {
	opts := make([]folio.Option, 0, len(e.folioOpts)+4)

	opts = append(opts,
		folio.WithRetry(e.config.MaxRetries),
		folio.WithAutoMigrate(!e.config.DisableMigrate),
		folio.WithAuditOptions(audithook.WithTimeout(e.config.AuditTimeout)),
	)
	if e.config.EnableJobs {
		opts = append(opts, folio.WithJobs(e.config.Jobs))
	}

	return append(opts, e.folioOpts...)
}

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("folio: configuration is required but not found in config files; " +
				"ensure 'extensions.folio' or 'folio' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("folio: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("store_driver", e.config.Store.Driver),
		forge.F("max_retries", e.config.MaxRetries),
		forge.F("audit_timeout", e.config.AuditTimeout),
		forge.F("enable_jobs", e.config.EnableJobs),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.folio", "folio"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("folio: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("folio: loaded config from file", forge.F("key", key))
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.AuditTimeout == 0 {
		cfg.AuditTimeout = defaults.AuditTimeout
	}
	if cfg.EnableJobs {
		cfg.Jobs = mergeJobs(cfg.Jobs, defaults.Jobs)
	}
	return cfg
}

func mergeJobs(cfg, defaults folio.JobsConfig) folio.JobsConfig {
	if cfg == (folio.JobsConfig{}) {
		return defaults
	}
	if cfg.QuoteExpiryBatch == 0 {
		cfg.QuoteExpiryBatch = defaults.QuoteExpiryBatch
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.EnableJobs {
		yamlConfig.EnableJobs = true
		if yamlConfig.Jobs == (folio.JobsConfig{}) {
			yamlConfig.Jobs = programmaticConfig.Jobs
		}
	}

	if yamlConfig.Store.Driver == "" {
		yamlConfig.Store = programmaticConfig.Store
	}
	if yamlConfig.MaxRetries == 0 {
		yamlConfig.MaxRetries = programmaticConfig.MaxRetries
	}
	if yamlConfig.AuditTimeout == 0 {
		yamlConfig.AuditTimeout = programmaticConfig.AuditTimeout
	}

	return mergeWithDefaults(yamlConfig)
}
