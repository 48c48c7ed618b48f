// Package plugin provides lifecycle hooks into the Folio engine.
// Plugins implement any subset of the hook interfaces below; the registry
// discovers them at registration time.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/folio/audit"
	"github.com/xraph/folio/document"
	"github.com/xraph/folio/entitlement"
	"github.com/xraph/folio/sequence"
	"github.com/xraph/folio/usage"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. engine is the *folio.Folio.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Numbering and usage hooks
// ──────────────────────────────────────────────────

// OnNumberAllocated is called after a number has been persisted.
type OnNumberAllocated interface {
	Plugin
	OnNumberAllocated(ctx context.Context, userID string, n sequence.Number) error
}

// OnUsageReserved is called when a reservation is granted.
type OnUsageReserved interface {
	Plugin
	OnUsageReserved(ctx context.Context, userID string, result *entitlement.Result) error
}

// OnQuotaExceeded is called when a reservation is denied.
type OnQuotaExceeded interface {
	Plugin
	OnQuotaExceeded(ctx context.Context, userID string, result *entitlement.Result) error
}

// OnUsageReleased is called after a counter was decremented.
type OnUsageReleased interface {
	Plugin
	OnUsageReleased(ctx context.Context, userID string, metric usage.Metric, current int64) error
}

// ──────────────────────────────────────────────────
// Document hooks
// ──────────────────────────────────────────────────

// OnDocumentCreated is called after a document was stored.
type OnDocumentCreated interface {
	Plugin
	OnDocumentCreated(ctx context.Context, doc *document.Document) error
}

// OnDocumentUpdated is called after a draft edit was stored.
type OnDocumentUpdated interface {
	Plugin
	OnDocumentUpdated(ctx context.Context, doc *document.Document, changes []audit.Change) error
}

// OnDocumentStatusChanged is called after a lifecycle transition.
type OnDocumentStatusChanged interface {
	Plugin
	OnDocumentStatusChanged(ctx context.Context, doc *document.Document, from document.Status) error
}

// OnDocumentDeleted is called after a draft was deleted.
type OnDocumentDeleted interface {
	Plugin
	OnDocumentDeleted(ctx context.Context, doc *document.Document) error
}

// OnModificationAttempt is called when an edit of an issued document was
// rejected.
type OnModificationAttempt interface {
	Plugin
	OnModificationAttempt(ctx context.Context, doc *document.Document, changes []audit.Change) error
}

// ──────────────────────────────────────────────────
// Audit and job hooks
// ──────────────────────────────────────────────────

// OnAuditFailed is called when an audit entry could not be written.
type OnAuditFailed interface {
	Plugin
	OnAuditFailed(ctx context.Context, entry *audit.Entry, err error) error
}

// OnJobCompleted is called after a background job run.
type OnJobCompleted interface {
	Plugin
	OnJobCompleted(ctx context.Context, job string, affected int64, elapsed time.Duration, err error) error
}
