package extension

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/folio"
	"github.com/xraph/folio/config"
	"github.com/xraph/folio/store/memory"
)

func TestOptions(t *testing.T) {
	s := memory.New()
	jobs := folio.JobsConfig{QuoteExpirySchedule: "@every 1m"}

	e := New(
		WithStore(s),
		WithDisableMigrate(),
		WithRequireConfig(true),
		WithStoreConfig(config.StoreConfig{Driver: "sqlite", DSN: "folio.db"}),
		WithMaxRetries(7),
		WithAuditTimeout(time.Second),
		WithJobs(jobs),
	)

	assert.Same(t, s, e.store)
	assert.True(t, e.config.DisableMigrate)
	assert.True(t, e.config.RequireConfig)
	assert.Equal(t, "sqlite", e.config.Store.Driver)
	assert.Equal(t, uint64(7), e.config.MaxRetries)
	assert.Equal(t, time.Second, e.config.AuditTimeout)
	assert.True(t, e.config.EnableJobs)
	assert.Equal(t, jobs, e.config.Jobs)
	assert.Nil(t, e.Engine())
}

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{})
	assert.Equal(t, DefaultConfig().MaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultConfig().AuditTimeout, cfg.AuditTimeout)
	assert.False(t, cfg.EnableJobs)

	cfg = mergeWithDefaults(Config{EnableJobs: true})
	assert.Equal(t, folio.DefaultJobsConfig(), cfg.Jobs)

	cfg = mergeWithDefaults(Config{EnableJobs: true, Jobs: folio.JobsConfig{AuditPurgeSchedule: "@weekly"}})
	assert.Equal(t, "@weekly", cfg.Jobs.AuditPurgeSchedule)
	assert.Empty(t, cfg.Jobs.QuoteExpirySchedule)
	assert.Equal(t, folio.DefaultJobsConfig().QuoteExpiryBatch, cfg.Jobs.QuoteExpiryBatch)
}

func TestMergeConfigurations(t *testing.T) {
	tests := []struct {
		name         string
		yaml         Config
		programmatic Config
		check        func(t *testing.T, got Config)
	}{
		{
			name:         "yaml wins",
			yaml:         Config{MaxRetries: 9, Store: config.StoreConfig{Driver: "postgres", DSN: "postgres://db"}},
			programmatic: Config{MaxRetries: 2, Store: config.StoreConfig{Driver: "sqlite", DSN: "x.db"}},
			check: func(t *testing.T, got Config) {
				assert.Equal(t, uint64(9), got.MaxRetries)
				assert.Equal(t, "postgres", got.Store.Driver)
			},
		},
		{
			name:         "programmatic fills gaps",
			yaml:         Config{},
			programmatic: Config{AuditTimeout: time.Minute, Store: config.StoreConfig{Driver: "sqlite", DSN: "x.db"}},
			check: func(t *testing.T, got Config) {
				assert.Equal(t, time.Minute, got.AuditTimeout)
				assert.Equal(t, "sqlite", got.Store.Driver)
				assert.Equal(t, DefaultConfig().MaxRetries, got.MaxRetries)
			},
		},
		{
			name:         "programmatic flags",
			yaml:         Config{},
			programmatic: Config{DisableMigrate: true, EnableJobs: true, Jobs: folio.JobsConfig{QuoteExpirySchedule: "@daily"}},
			check: func(t *testing.T, got Config) {
				assert.True(t, got.DisableMigrate)
				assert.True(t, got.EnableJobs)
				assert.Equal(t, "@daily", got.Jobs.QuoteExpirySchedule)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, mergeConfigurations(tt.yaml, tt.programmatic))
		})
	}
}

func TestBuildFolioOptsDisableMigrate(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	e := New(WithStore(s), WithDisableMigrate())
	e.config = mergeWithDefaults(e.config)

	f := folio.New(s, e.buildFolioOpts()...)
	require.NoError(t, f.Start(ctx))
	t.Cleanup(func() { _ = f.Stop() })

	u, err := f.RegisterUser(ctx, "ext@example.com", "Ext")
	require.NoError(t, err)
	assert.Equal(t, "ext@example.com", u.Email)
}

func TestLifecycleBeforeRegister(t *testing.T) {
	e := New()
	ctx := context.Background()

	assert.Error(t, e.Start(ctx))
	assert.Error(t, e.Health(ctx))
}
