package document

import (
	"fmt"
	"time"

	"github.com/xraph/folio/audit"
	"github.com/xraph/folio/sequence"
)

var transitions = map[Status][]Status{
	StatusDraft:     {StatusFinalized},
	StatusFinalized: {StatusSent},
	StatusSent:      {StatusAccepted, StatusRejected, StatusExpired, StatusPaid},
}

// CanTransition reports whether a document of type t may move from -> to.
// Accepted, rejected and expired close quotes; paid closes invoices.
func CanTransition(t sequence.DocumentType, from, to Status) bool {
	allowed := false
	for _, s := range transitions[from] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}
	switch to {
	case StatusAccepted, StatusRejected, StatusExpired:
		return t == sequence.TypeQuote
	case StatusPaid:
		return t == sequence.TypeInvoice
	}
	return true
}

// AuditAction is the audit action recorded for a transition into to.
func AuditAction(to Status) audit.Action {
	switch to {
	case StatusFinalized:
		return audit.ActionFinalized
	case StatusSent:
		return audit.ActionSent
	default:
		return audit.ActionUpdated
	}
}

// Transition moves d to status to at now and returns the status change.
func (d *Document) Transition(to Status, now time.Time) (audit.Change, error) {
	from := d.Status
	if !CanTransition(d.Type, from, to) {
		return audit.Change{}, fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, d.Type, from, to)
	}
	now = now.UTC()
	d.Status = to
	switch to {
	case StatusFinalized:
		d.FinalizedAt = &now
	case StatusSent:
		d.SentAt = &now
	default:
		d.ClosedAt = &now
	}
	d.Touch(now)
	return audit.Change{Field: "status", Old: string(from), New: string(to)}, nil
}
