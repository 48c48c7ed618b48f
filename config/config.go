// Package config loads Folio's process configuration from a YAML file and
// FOLIO_* environment variables, and builds the store and engine options
// it describes.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/xraph/folio"
	audithook "github.com/xraph/folio/audit_hook"
)

// EnvPrefix is the prefix of every environment override, e.g.
// FOLIO_STORE_DRIVER=postgres.
const EnvPrefix = "FOLIO"

// Config is the full process configuration.
type Config struct {
	Store   StoreConfig      `json:"store" yaml:"store" mapstructure:"store"`
	Engine  EngineConfig     `json:"engine" yaml:"engine" mapstructure:"engine"`
	Jobs    folio.JobsConfig `json:"jobs" yaml:"jobs" mapstructure:"jobs"`
	Log     LogConfig        `json:"log" yaml:"log" mapstructure:"log"`
	Metrics MetricsConfig    `json:"metrics" yaml:"metrics" mapstructure:"metrics"`
}

// StoreConfig selects and addresses the storage backend.
type StoreConfig struct {
	// Driver is one of memory, sqlite, postgres, mongo or redis.
	Driver string `json:"driver" yaml:"driver" mapstructure:"driver" validate:"oneof=memory sqlite postgres mongo redis"`

	// DSN is the connection string: a file path for sqlite, a URL otherwise.
	DSN string `json:"dsn" yaml:"dsn" mapstructure:"dsn" validate:"required_unless=Driver memory"`

	// Database names the mongo database.
	Database string `json:"database" yaml:"database" mapstructure:"database" validate:"required_if=Driver mongo"`

	// KeyPrefix namespaces redis keys.
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" mapstructure:"key_prefix"`
}

// EngineConfig tunes the engine.
type EngineConfig struct {
	MaxRetries   uint64        `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	AutoMigrate  bool          `json:"auto_migrate" yaml:"auto_migrate" mapstructure:"auto_migrate"`
	EnableJobs   bool          `json:"enable_jobs" yaml:"enable_jobs" mapstructure:"enable_jobs"`
	AuditTimeout time.Duration `json:"audit_timeout" yaml:"audit_timeout" mapstructure:"audit_timeout"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" yaml:"format" mapstructure:"format" validate:"oneof=text json"`
}

// MetricsConfig configures the Prometheus endpoint of serve-metrics.
type MetricsConfig struct {
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr" validate:"required"`
	Path string `json:"path" yaml:"path" mapstructure:"path" validate:"startswith=/"`
}

// Default returns the configuration used for unset keys.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Driver:    "memory",
			KeyPrefix: "folio",
		},
		Engine: EngineConfig{
			MaxRetries:   folio.DefaultMaxRetries,
			AutoMigrate:  true,
			AuditTimeout: 5 * time.Second,
		},
		Jobs: folio.DefaultJobsConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
			Path: "/metrics",
		},
	}
}

// Load reads the configuration. With an empty path it looks for folio.yaml
// in the working directory and /etc/folio, and a missing file is not an
// error. Environment variables override the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("folio/config: read %s: %w", path, err)
		}
	} else {
		v.SetConfigName("folio")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/folio")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("folio/config: read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("folio/config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the field constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("folio/config: invalid: %w", err)
	}
	return nil
}

// EngineOptions converts the configuration into folio.New options.
func (c Config) EngineOptions(logger *slog.Logger) []folio.Option {
	opts := []folio.Option{
		folio.WithLogger(logger),
		folio.WithRetry(c.Engine.MaxRetries),
		folio.WithAutoMigrate(c.Engine.AutoMigrate),
		folio.WithAuditOptions(audithook.WithTimeout(c.Engine.AuditTimeout)),
	}
	if c.Engine.EnableJobs {
		opts = append(opts, folio.WithJobs(c.Jobs))
	}
	return opts
}

// NewLogger builds a slog logger writing to w.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// setDefaults registers every key with viper, which is also what makes
// AutomaticEnv see nested keys during Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("store.database", d.Store.Database)
	v.SetDefault("store.key_prefix", d.Store.KeyPrefix)

	v.SetDefault("engine.max_retries", d.Engine.MaxRetries)
	v.SetDefault("engine.auto_migrate", d.Engine.AutoMigrate)
	v.SetDefault("engine.enable_jobs", d.Engine.EnableJobs)
	v.SetDefault("engine.audit_timeout", d.Engine.AuditTimeout)

	v.SetDefault("jobs.audit_retention", d.Jobs.AuditRetention)
	v.SetDefault("jobs.audit_purge_schedule", d.Jobs.AuditPurgeSchedule)
	v.SetDefault("jobs.quote_expiry_schedule", d.Jobs.QuoteExpirySchedule)
	v.SetDefault("jobs.quote_expiry_batch", d.Jobs.QuoteExpiryBatch)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("metrics.path", d.Metrics.Path)
}
