// Package observability provides a metrics extension for Folio that records
// numbering, quota and document lifecycle counts through a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/folio/audit"
	"github.com/xraph/folio/document"
	"github.com/xraph/folio/entitlement"
	"github.com/xraph/folio/plugin"
	"github.com/xraph/folio/sequence"
	"github.com/xraph/folio/usage"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                  = (*MetricsExtension)(nil)
	_ plugin.OnInit                  = (*MetricsExtension)(nil)
	_ plugin.OnNumberAllocated       = (*MetricsExtension)(nil)
	_ plugin.OnUsageReserved         = (*MetricsExtension)(nil)
	_ plugin.OnQuotaExceeded         = (*MetricsExtension)(nil)
	_ plugin.OnUsageReleased         = (*MetricsExtension)(nil)
	_ plugin.OnDocumentCreated       = (*MetricsExtension)(nil)
	_ plugin.OnDocumentUpdated       = (*MetricsExtension)(nil)
	_ plugin.OnDocumentStatusChanged = (*MetricsExtension)(nil)
	_ plugin.OnDocumentDeleted       = (*MetricsExtension)(nil)
	_ plugin.OnModificationAttempt   = (*MetricsExtension)(nil)
	_ plugin.OnAuditFailed           = (*MetricsExtension)(nil)
	_ plugin.OnJobCompleted          = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Folio plugin to track numbering and quota activity.
type MetricsExtension struct {
	factory MetricFactory

	// Numbering metrics
	InvoiceNumbers Counter
	QuoteNumbers   Counter

	// Usage metrics
	UsageReserved  Counter
	UsageReleased  Counter
	QuotaExceeded  Counter
	InvoiceDenials Counter
	QuoteDenials   Counter
	ExpenseDenials Counter

	// Document metrics
	DocumentCreated       Counter
	DocumentUpdated       Counter
	DocumentDeleted       Counter
	DocumentFinalized     Counter
	DocumentSent          Counter
	DocumentClosed        Counter
	ModificationAttempts  Counter
	DocumentTotal         Histogram
	DocumentLinesPerDraft Histogram

	// Job metrics
	JobRuns     Counter
	JobFailures Counter
	JobAffected Counter
	JobLatency  Histogram

	// Error metrics
	AuditFailures Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		InvoiceNumbers: factory.Counter("folio.sequence.invoice.allocated"),
		QuoteNumbers:   factory.Counter("folio.sequence.quote.allocated"),

		UsageReserved:  factory.Counter("folio.usage.reserved"),
		UsageReleased:  factory.Counter("folio.usage.released"),
		QuotaExceeded:  factory.Counter("folio.usage.quota_exceeded"),
		InvoiceDenials: factory.Counter("folio.usage.invoices.denied"),
		QuoteDenials:   factory.Counter("folio.usage.quotes.denied"),
		ExpenseDenials: factory.Counter("folio.usage.expenses.denied"),

		DocumentCreated:       factory.Counter("folio.document.created"),
		DocumentUpdated:       factory.Counter("folio.document.updated"),
		DocumentDeleted:       factory.Counter("folio.document.deleted"),
		DocumentFinalized:     factory.Counter("folio.document.finalized"),
		DocumentSent:          factory.Counter("folio.document.sent"),
		DocumentClosed:        factory.Counter("folio.document.closed"),
		ModificationAttempts:  factory.Counter("folio.document.modification_attempts"),
		DocumentTotal:         factory.Histogram("folio.document.total_minor_units"),
		DocumentLinesPerDraft: factory.Histogram("folio.document.lines"),

		JobRuns:     factory.Counter("folio.job.runs"),
		JobFailures: factory.Counter("folio.job.failures"),
		JobAffected: factory.Counter("folio.job.affected"),
		JobLatency:  factory.Histogram("folio.job.latency_ms"),

		AuditFailures: factory.Counter("folio.audit.failures"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Numbering and usage hooks
// ──────────────────────────────────────────────────

// OnNumberAllocated implements plugin.OnNumberAllocated.
func (m *MetricsExtension) OnNumberAllocated(_ context.Context, _ string, n sequence.Number) error {
	switch n.Type {
	case sequence.TypeInvoice:
		m.InvoiceNumbers.Inc()
	case sequence.TypeQuote:
		m.QuoteNumbers.Inc()
	}
	return nil
}

// OnUsageReserved implements plugin.OnUsageReserved.
func (m *MetricsExtension) OnUsageReserved(_ context.Context, _ string, _ *entitlement.Result) error {
	m.UsageReserved.Inc()
	return nil
}

// OnQuotaExceeded implements plugin.OnQuotaExceeded.
func (m *MetricsExtension) OnQuotaExceeded(_ context.Context, _ string, result *entitlement.Result) error {
	m.QuotaExceeded.Inc()
	switch result.Metric {
	case usage.MetricInvoices:
		m.InvoiceDenials.Inc()
	case usage.MetricQuotes:
		m.QuoteDenials.Inc()
	case usage.MetricExpenses:
		m.ExpenseDenials.Inc()
	}
	return nil
}

// OnUsageReleased implements plugin.OnUsageReleased.
func (m *MetricsExtension) OnUsageReleased(_ context.Context, _ string, _ usage.Metric, _ int64) error {
	m.UsageReleased.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Document hooks
// ──────────────────────────────────────────────────

// OnDocumentCreated implements plugin.OnDocumentCreated.
func (m *MetricsExtension) OnDocumentCreated(_ context.Context, doc *document.Document) error {
	m.DocumentCreated.Inc()
	m.DocumentLinesPerDraft.Observe(float64(len(doc.Lines)))
	return nil
}

// OnDocumentUpdated implements plugin.OnDocumentUpdated.
func (m *MetricsExtension) OnDocumentUpdated(_ context.Context, _ *document.Document, _ []audit.Change) error {
	m.DocumentUpdated.Inc()
	return nil
}

// OnDocumentStatusChanged implements plugin.OnDocumentStatusChanged.
func (m *MetricsExtension) OnDocumentStatusChanged(_ context.Context, doc *document.Document, _ document.Status) error {
	switch doc.Status {
	case document.StatusFinalized:
		m.DocumentFinalized.Inc()
		m.DocumentTotal.Observe(float64(doc.Total.Amount))
	case document.StatusSent:
		m.DocumentSent.Inc()
	default:
		m.DocumentClosed.Inc()
	}
	return nil
}

// OnDocumentDeleted implements plugin.OnDocumentDeleted.
func (m *MetricsExtension) OnDocumentDeleted(_ context.Context, _ *document.Document) error {
	m.DocumentDeleted.Inc()
	return nil
}

// OnModificationAttempt implements plugin.OnModificationAttempt.
func (m *MetricsExtension) OnModificationAttempt(_ context.Context, _ *document.Document, _ []audit.Change) error {
	m.ModificationAttempts.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Audit and job hooks
// ──────────────────────────────────────────────────

// OnAuditFailed implements plugin.OnAuditFailed.
func (m *MetricsExtension) OnAuditFailed(_ context.Context, _ *audit.Entry, _ error) error {
	m.AuditFailures.Inc()
	return nil
}

// OnJobCompleted implements plugin.OnJobCompleted.
func (m *MetricsExtension) OnJobCompleted(_ context.Context, _ string, affected int64, elapsed time.Duration, err error) error {
	m.JobRuns.Inc()
	if err != nil {
		m.JobFailures.Inc()
	}
	m.JobAffected.Add(float64(affected))
	m.JobLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}
