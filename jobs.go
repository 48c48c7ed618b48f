package folio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/xraph/folio/audit"
	"github.com/xraph/folio/document"
	"github.com/xraph/folio/sequence"
)

// Job names reported to OnJobCompleted plugins.
const (
	JobAuditPurge  = "audit_purge"
	JobQuoteExpiry = "quote_expiry"
)

// JobsConfig schedules the background jobs. Schedules use cron syntax
// (descriptors like "@daily" included) evaluated in UTC. An empty schedule
// disables that job.
type JobsConfig struct {
	// AuditRetention is how long audit entries are kept. Zero keeps them
	// forever and disables the purge.
	AuditRetention     time.Duration `json:"audit_retention" yaml:"audit_retention" mapstructure:"audit_retention"`
	AuditPurgeSchedule string        `json:"audit_purge_schedule" yaml:"audit_purge_schedule" mapstructure:"audit_purge_schedule"`

	QuoteExpirySchedule string `json:"quote_expiry_schedule" yaml:"quote_expiry_schedule" mapstructure:"quote_expiry_schedule"`
	QuoteExpiryBatch    int    `json:"quote_expiry_batch" yaml:"quote_expiry_batch" mapstructure:"quote_expiry_batch"`
}

// DefaultJobsConfig keeps audit entries for ten years and expires quotes
// hourly.
func DefaultJobsConfig() JobsConfig {
	return JobsConfig{
		AuditRetention:      10 * 365 * 24 * time.Hour,
		AuditPurgeSchedule:  "@daily",
		QuoteExpirySchedule: "@hourly",
		QuoteExpiryBatch:    500,
	}
}

// PurgeAuditEntries deletes audit entries performed before the given time.
// It is the only path that removes audit entries.
func (f *Folio) PurgeAuditEntries(ctx context.Context, before time.Time) (int64, error) {
	start := f.clock.Now()
	n, err := f.store.PurgeAudit(ctx, before)
	f.plugins.EmitJobCompleted(ctx, JobAuditPurge, n, f.clock.Since(start), err)
	if err != nil {
		return 0, err
	}

	f.logger.Info("audit entries purged",
		"before", before,
		"purged", n,
	)
	return n, nil
}

// ExpireQuotes moves sent quotes whose due date has passed to expired, as
// the system actor. It processes at most one batch per call and returns
// how many quotes it expired.
func (f *Folio) ExpireQuotes(ctx context.Context) (int64, error) {
	start := f.clock.Now()
	n, err := f.expireQuotes(ctx)
	f.plugins.EmitJobCompleted(ctx, JobQuoteExpiry, n, f.clock.Since(start), err)
	return n, err
}

func (f *Folio) expireQuotes(ctx context.Context) (int64, error) {
	batch := DefaultJobsConfig().QuoteExpiryBatch
	if f.jobs != nil && f.jobs.QuoteExpiryBatch > 0 {
		batch = f.jobs.QuoteExpiryBatch
	}

	due, err := f.store.ListDueDocuments(ctx, sequence.TypeQuote, document.StatusSent, f.now(), batch)
	if err != nil {
		return 0, fmt.Errorf("folio: list due quotes: %w", err)
	}

	var expired int64
	for _, d := range due {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		_, err := f.ExpireQuote(ctx, d.ID, audit.System)
		switch {
		case err == nil:
			expired++
		case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrDocumentNotFound):
			// Accepted, rejected or deleted since it was listed.
			f.logger.Debug("quote no longer expirable", "document_id", d.ID.String(), "error", err)
		default:
			f.logger.Warn("failed to expire quote", "document_id", d.ID.String(), "error", err)
		}
	}
	return expired, nil
}

func (f *Folio) startJobs() error {
	if f.jobs == nil {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.jobCtx, f.jobCancel = context.WithCancel(context.Background())
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger{f.logger}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{f.logger})),
	)

	if f.jobs.AuditRetention > 0 && f.jobs.AuditPurgeSchedule != "" {
		retention := f.jobs.AuditRetention
		if _, err := c.AddFunc(f.jobs.AuditPurgeSchedule, func() {
			_, _ = f.PurgeAuditEntries(f.jobCtx, f.now().Add(-retention)) //nolint:errcheck // reported via plugins
		}); err != nil {
			return fmt.Errorf("folio: schedule %s: %w", JobAuditPurge, err)
		}
	}

	if f.jobs.QuoteExpirySchedule != "" {
		if _, err := c.AddFunc(f.jobs.QuoteExpirySchedule, func() {
			_, _ = f.ExpireQuotes(f.jobCtx) //nolint:errcheck // reported via plugins
		}); err != nil {
			return fmt.Errorf("folio: schedule %s: %w", JobQuoteExpiry, err)
		}
	}

	c.Start()
	f.scheduler = c
	return nil
}

func (f *Folio) stopJobs() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.scheduler == nil {
		return
	}
	f.jobCancel()
	<-f.scheduler.Stop().Done()
	f.scheduler = nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
