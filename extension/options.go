package extension

import (
	"time"

	"github.com/xraph/folio"
	"github.com/xraph/folio/config"
	"github.com/xraph/folio/plugin"
	"github.com/xraph/folio/store"
)

// Option configures the Folio Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine. It takes precedence over the
// configured store driver.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithFolioOption passes a folio.Option through to the underlying engine.
func WithFolioOption(opt folio.Option) Option {
	return func(e *Extension) {
		e.folioOpts = append(e.folioOpts, opt)
	}
}

// WithPlugin registers a folio plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.folioOpts = append(e.folioOpts, folio.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithStoreConfig selects the backend to open on Register.
func WithStoreConfig(sc config.StoreConfig) Option {
	return func(e *Extension) { e.config.Store = sc }
}

// WithMaxRetries sets how often a write that lost a race is retried.
func WithMaxRetries(n uint64) Option {
	return func(e *Extension) { e.config.MaxRetries = n }
}

// WithAuditTimeout bounds each audit write.
func WithAuditTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.AuditTimeout = d }
}

// WithJobs enables the background jobs with the given schedule.
func WithJobs(cfg folio.JobsConfig) Option {
	return func(e *Extension) {
		e.config.EnableJobs = true
		e.config.Jobs = cfg
	}
}
