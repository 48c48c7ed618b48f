package extension

import (
	"time"

	"github.com/xraph/folio"
	"github.com/xraph/folio/config"
)

// Config holds the Folio extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.folio" or "folio" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Store selects the backend when no store was given with WithStore.
	// An empty driver uses the in-memory store.
	Store config.StoreConfig `json:"store" mapstructure:"store" yaml:"store"`

	// MaxRetries bounds the retries of a write that lost a race (default: 3).
	MaxRetries uint64 `json:"max_retries" mapstructure:"max_retries" yaml:"max_retries"`

	// AuditTimeout bounds each audit write (default: 5s).
	AuditTimeout time.Duration `json:"audit_timeout" mapstructure:"audit_timeout" yaml:"audit_timeout"`

	// EnableJobs starts the audit purge and quote expiry jobs.
	EnableJobs bool `json:"enable_jobs" mapstructure:"enable_jobs" yaml:"enable_jobs"`

	// Jobs schedules the background jobs when EnableJobs is set.
	Jobs folio.JobsConfig `json:"jobs" mapstructure:"jobs" yaml:"jobs"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   folio.DefaultMaxRetries,
		AuditTimeout: 5 * time.Second,
		Jobs:         folio.DefaultJobsConfig(),
	}
}
