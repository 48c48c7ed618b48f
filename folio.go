package folio

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	audithook "github.com/xraph/folio/audit_hook"
	"github.com/xraph/folio/plugin"
	"github.com/xraph/folio/store"
)

// DefaultMaxRetries is how many times an operation that lost a write race is
// retried before ErrConcurrentModification is returned.
const DefaultMaxRetries = 3

// Folio is the numbering, quota and audit engine.
type Folio struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	clock   clockwork.Clock
	trail   *audithook.Trail

	// Audit
	recorder   audithook.Recorder
	auditOpts  []audithook.Option
	maxRetries uint64

	autoMigrate bool

	// Background jobs
	jobs      *JobsConfig
	scheduler *cron.Cron
	jobCtx    context.Context
	jobCancel context.CancelFunc
	mu        sync.Mutex
}

// New creates a new Folio instance.
func New(s store.Store, opts ...Option) *Folio {
	f := &Folio{
		store:       s,
		plugins:     plugin.NewRegistry(),
		logger:      slog.Default(),
		clock:       clockwork.NewRealClock(),
		maxRetries:  DefaultMaxRetries,
		autoMigrate: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.recorder == nil {
		f.recorder = audithook.StoreRecorder(s)
	}
	f.trail = audithook.New(f.recorder, append([]audithook.Option{
		audithook.WithLogger(f.logger),
		audithook.WithClock(f.clock),
		audithook.WithFailureHandler(f.plugins.EmitAuditFailed),
	}, f.auditOpts...)...)

	return f
}

// Option configures a Folio instance.
type Option func(*Folio)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Folio) {
		f.logger = logger
		f.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(f *Folio) {
		_ = f.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock sets the clock used for years, periods and timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(f *Folio) {
		f.clock = c
	}
}

// WithRetry sets how many times a write that lost a race is retried.
func WithRetry(maxRetries uint64) Option {
	return func(f *Folio) {
		f.maxRetries = maxRetries
	}
}

// WithAuditRecorder replaces the store as the audit sink. Use
// audithook.Tee to write to the store and somewhere else.
func WithAuditRecorder(r audithook.Recorder) Option {
	return func(f *Folio) {
		f.recorder = r
	}
}

// WithAuditOptions passes options to the audit trail.
func WithAuditOptions(opts ...audithook.Option) Option {
	return func(f *Folio) {
		f.auditOpts = append(f.auditOpts, opts...)
	}
}

// WithAutoMigrate controls whether Start migrates the store. Enabled by
// default.
func WithAutoMigrate(enabled bool) Option {
	return func(f *Folio) {
		f.autoMigrate = enabled
	}
}

// WithJobs enables the background jobs.
func WithJobs(cfg JobsConfig) Option {
	return func(f *Folio) {
		f.jobs = &cfg
	}
}

// Store returns the underlying store.
func (f *Folio) Store() store.Store { return f.store }

// Plugins returns the plugin registry.
func (f *Folio) Plugins() *plugin.Registry { return f.plugins }

// Start migrates the store, initializes plugins and starts the job
// scheduler when jobs are enabled.
func (f *Folio) Start(ctx context.Context) error {
	if f.autoMigrate {
		if err := f.store.Migrate(ctx); err != nil {
			return err
		}
	}

	f.plugins.EmitInit(ctx, f)

	if err := f.startJobs(); err != nil {
		return err
	}

	f.logger.Info("folio started",
		"plugins", f.plugins.Count(),
		"max_retries", f.maxRetries,
		"jobs", f.jobs != nil,
	)

	return nil
}

// Stop waits for running jobs, shuts plugins down and closes the store.
func (f *Folio) Stop() error {
	f.stopJobs()

	f.plugins.EmitShutdown(context.Background())

	return f.store.Close()
}

// Ping checks the store.
func (f *Folio) Ping(ctx context.Context) error {
	return f.store.Ping(ctx)
}

func (f *Folio) now() time.Time {
	return f.clock.Now().UTC()
}

// retry runs op until it succeeds, fails with an error other than
// ErrConcurrentModification, or runs out of attempts.
func (f *Folio) retry(ctx context.Context, name string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 0

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil || !errors.Is(err, ErrConcurrentModification) {
			return backoff.Permanent(err)
		}
		f.logger.Debug("write conflict, retrying",
			"op", name,
			"attempt", attempt,
			"error", err,
		)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, f.maxRetries), ctx))
}
