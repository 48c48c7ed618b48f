package folio

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/folio/audit"
	"github.com/xraph/folio/document"
	"github.com/xraph/folio/id"
	"github.com/xraph/folio/types"
	"github.com/xraph/folio/usage"
)

// ──────────────────────────────────────────────────
// Document lifecycle
// ──────────────────────────────────────────────────

// CreateDocument creates a draft invoice or quote for d.UserID. The caller
// fills the type, client and lines; the engine assigns the ID, number,
// status and totals.
//
// One unit of the user's monthly quota is reserved first. A denial returns
// *QuotaExceededError. If numbering or the write fails afterwards the
// reservation is given back, but an allocated number stays consumed.
func (f *Folio) CreateDocument(ctx context.Context, d *document.Document, actor audit.Actor) error {
	if !d.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDocumentType, d.Type)
	}
	d.Status = document.StatusDraft
	d.Normalize()
	if err := d.Validate(); err != nil {
		return err
	}

	metric := metricFor(d.Type)
	res, err := f.CheckAndReserve(ctx, d.UserID, metric)
	if err != nil {
		return err
	}
	if !res.Allowed {
		return newQuotaExceededError(res)
	}

	n, err := f.AllocateNumber(ctx, d.UserID, d.Type)
	if err != nil {
		f.releaseAfterFailure(ctx, d.UserID, metric, err)
		return err
	}

	now := f.now()
	d.ID = document.NewID(d.Type)
	d.Number = n.String()
	d.Entity = types.NewEntity(now)
	if d.IssueDate.IsZero() {
		d.IssueDate = now.Truncate(24 * time.Hour)
	}
	d.Recalculate()

	if err := f.retry(ctx, "create_document", func() error {
		return f.store.CreateDocument(ctx, d)
	}); err != nil {
		f.logger.Error("document write failed after numbering",
			"user_id", d.UserID,
			"number", d.Number,
			"error", err,
		)
		f.releaseAfterFailure(ctx, d.UserID, metric, err)
		return err
	}

	f.record(ctx, d, audit.ActionCreated, []audit.Change{
		{Field: "number", New: d.Number},
		{Field: "status", New: string(d.Status)},
		{Field: "total", New: d.Total.String()},
	}, actor)
	f.plugins.EmitDocumentCreated(ctx, d)

	f.logger.Info("document created",
		"user_id", d.UserID,
		"document_id", d.ID.String(),
		"number", d.Number,
	)
	return nil
}

// releaseAfterFailure gives back a reservation whose document was never
// written. A failure here leaves the counter one too high and is logged.
func (f *Folio) releaseAfterFailure(ctx context.Context, userID string, metric usage.Metric, cause error) {
	if _, err := f.Release(context.WithoutCancel(ctx), userID, metric); err != nil {
		f.logger.Warn("failed to release usage after create failure",
			"user_id", userID,
			"metric", metric,
			"cause", cause,
			"error", err,
		)
	}
}

// GetDocument retrieves a document by ID.
func (f *Folio) GetDocument(ctx context.Context, docID id.DocumentID) (*document.Document, error) {
	return f.store.GetDocument(ctx, docID)
}

// ListDocuments lists a user's documents, newest first.
func (f *Folio) ListDocuments(ctx context.Context, userID string, opts document.ListOpts) ([]*document.Document, error) {
	return f.store.ListDocuments(ctx, userID, opts)
}

// UpdateDocument applies patch to a draft. A patch that changes nothing is
// a no-op and is not audited.
//
// Any edit of a document that has left draft is refused with
// *ImmutableDocumentError and recorded as one modification_attempt entry
// carrying the changes that were attempted.
func (f *Folio) UpdateDocument(ctx context.Context, docID id.DocumentID, patch document.Patch, actor audit.Actor) (*document.Document, error) {
	var (
		updated *document.Document
		changes []audit.Change
	)

	err := f.retry(ctx, "update_document", func() error {
		d, err := f.store.GetDocument(ctx, docID)
		if err != nil {
			return err
		}

		next, diff := patch.Apply(d)
		if !d.Status.Editable() {
			return f.refuseModification(ctx, d, diff, actor)
		}
		if len(diff) == 0 {
			updated, changes = d, nil
			return nil
		}
		if err := next.Validate(); err != nil {
			return err
		}
		next.Touch(f.now())

		if err := f.store.UpdateDocument(ctx, next, document.StatusDraft); err != nil {
			return err
		}
		updated, changes = next, diff
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return updated, nil
	}

	f.record(ctx, updated, audit.ActionUpdated, changes, actor)
	f.plugins.EmitDocumentUpdated(ctx, updated, changes)
	return updated, nil
}

// DeleteDocument deletes a draft. Usage is not released; callers that want
// the quota back call Release.
func (f *Folio) DeleteDocument(ctx context.Context, docID id.DocumentID, actor audit.Actor) error {
	var deleted *document.Document

	err := f.retry(ctx, "delete_document", func() error {
		d, err := f.store.GetDocument(ctx, docID)
		if err != nil {
			return err
		}
		if !d.Status.Editable() {
			return f.refuseModification(ctx, d, []audit.Change{
				{Field: "deleted", Old: "false", New: "true"},
			}, actor)
		}
		if err := f.store.DeleteDocument(ctx, docID, document.StatusDraft); err != nil {
			return err
		}
		deleted = d
		return nil
	})
	if err != nil {
		return err
	}

	f.record(ctx, deleted, audit.ActionDeleted, []audit.Change{
		{Field: "number", Old: deleted.Number},
	}, actor)
	f.plugins.EmitDocumentDeleted(ctx, deleted)
	return nil
}

// refuseModification records the attempt and returns the error the caller
// sees. The returned error is permanent so a retry loop stops on it.
func (f *Folio) refuseModification(ctx context.Context, d *document.Document, changes []audit.Change, actor audit.Actor) error {
	f.record(ctx, d, audit.ActionModificationAttempt, changes, actor)
	f.plugins.EmitModificationAttempt(ctx, d, changes)

	f.logger.Warn("attempt to modify issued document",
		"user_id", d.UserID,
		"document_id", d.ID.String(),
		"number", d.Number,
		"status", d.Status,
		"performed_by", actor.PerformedBy,
	)
	return &ImmutableDocumentError{DocumentID: d.ID, Number: d.Number, Status: d.Status}
}

// ──────────────────────────────────────────────────
// Status transitions
// ──────────────────────────────────────────────────

// FinalizeDocument issues a draft. From here on the document is immutable.
func (f *Folio) FinalizeDocument(ctx context.Context, docID id.DocumentID, actor audit.Actor) (*document.Document, error) {
	return f.transition(ctx, docID, document.StatusFinalized, actor)
}

// SendDocument marks a finalized document as sent to the client.
func (f *Folio) SendDocument(ctx context.Context, docID id.DocumentID, actor audit.Actor) (*document.Document, error) {
	return f.transition(ctx, docID, document.StatusSent, actor)
}

// AcceptQuote records the client's acceptance of a sent quote.
func (f *Folio) AcceptQuote(ctx context.Context, docID id.DocumentID, actor audit.Actor) (*document.Document, error) {
	return f.transition(ctx, docID, document.StatusAccepted, actor)
}

// RejectQuote records the client's rejection of a sent quote.
func (f *Folio) RejectQuote(ctx context.Context, docID id.DocumentID, actor audit.Actor) (*document.Document, error) {
	return f.transition(ctx, docID, document.StatusRejected, actor)
}

// ExpireQuote closes a sent quote whose validity has lapsed.
func (f *Folio) ExpireQuote(ctx context.Context, docID id.DocumentID, actor audit.Actor) (*document.Document, error) {
	return f.transition(ctx, docID, document.StatusExpired, actor)
}

// MarkInvoicePaid closes a sent invoice.
func (f *Folio) MarkInvoicePaid(ctx context.Context, docID id.DocumentID, actor audit.Actor) (*document.Document, error) {
	return f.transition(ctx, docID, document.StatusPaid, actor)
}

func (f *Folio) transition(ctx context.Context, docID id.DocumentID, to document.Status, actor audit.Actor) (*document.Document, error) {
	var (
		d      *document.Document
		from   document.Status
		change audit.Change
	)

	err := f.retry(ctx, "transition", func() error {
		var err error
		d, err = f.store.GetDocument(ctx, docID)
		if err != nil {
			return err
		}
		from = d.Status
		change, err = d.Transition(to, f.now())
		if err != nil {
			return err
		}
		return f.store.UpdateDocument(ctx, d, from)
	})
	if err != nil {
		return nil, err
	}

	f.record(ctx, d, document.AuditAction(to), []audit.Change{change}, actor)
	f.plugins.EmitDocumentStatusChanged(ctx, d, from)

	f.logger.Info("document status changed",
		"document_id", d.ID.String(),
		"number", d.Number,
		"from", from,
		"to", to,
	)
	return d, nil
}
