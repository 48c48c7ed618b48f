package folio

import (
	"context"

	"github.com/xraph/folio/audit"
	"github.com/xraph/folio/document"
	"github.com/xraph/folio/id"
)

// ──────────────────────────────────────────────────
// Audit trail
// ──────────────────────────────────────────────────

// RecordAudit writes an entry to the audit trail. It never fails the
// caller: a write error is logged and reported to OnAuditFailed plugins.
func (f *Folio) RecordAudit(ctx context.Context, entry *audit.Entry) {
	f.trail.Record(ctx, entry)
}

// DocumentHistory returns the audit entries of one document, oldest first.
func (f *Folio) DocumentHistory(ctx context.Context, docID id.DocumentID, opts audit.ListOpts) ([]*audit.Entry, error) {
	return f.store.ListDocumentAudit(ctx, docID, opts)
}

// UserAuditLog returns the audit entries of one user's documents, oldest
// first, optionally filtered by action and time range.
func (f *Folio) UserAuditLog(ctx context.Context, userID string, opts audit.ListOpts) ([]*audit.Entry, error) {
	if opts.Action != "" && !opts.Action.Valid() {
		return nil, ErrInvalidInput
	}
	return f.store.ListUserAudit(ctx, userID, opts)
}

func (f *Folio) record(ctx context.Context, d *document.Document, action audit.Action, changes []audit.Change, actor audit.Actor) {
	e := audit.NewEntry(d.ID, d.UserID, action, changes, actor)
	e.DocumentType = d.Type
	f.trail.Record(ctx, e)
}
