// Package document models invoices and quotes and the lifecycle that makes
// them immutable once they leave draft.
package document

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/xraph/folio/id"
	"github.com/xraph/folio/sequence"
	"github.com/xraph/folio/types"
)

var (
	ErrInvalidDocument   = errors.New("folio: invalid document")
	ErrInvalidTransition = errors.New("folio: invalid status transition")
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusFinalized Status = "finalized"
	StatusSent      Status = "sent"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
	StatusPaid      Status = "paid"
)

// Editable reports whether fields may still change. Only drafts are
// editable; every later status is an issued financial artifact.
func (s Status) Editable() bool { return s == StatusDraft }

// Terminal reports whether no further transition exists.
func (s Status) Terminal() bool {
	switch s {
	case StatusAccepted, StatusRejected, StatusExpired, StatusPaid:
		return true
	}
	return false
}

type Document struct {
	types.Entity
	ID          id.DocumentID         `json:"id"`
	UserID      string                `json:"user_id"`
	Type        sequence.DocumentType `json:"type"`
	Number      string                `json:"number"`
	Status      Status                `json:"status"`
	ClientID    string                `json:"client_id"`
	Title       string                `json:"title,omitempty"`
	IssueDate   time.Time             `json:"issue_date"`
	DueDate     *time.Time            `json:"due_date,omitempty"`
	Currency    string                `json:"currency"`
	Lines       []Line                `json:"lines"`
	Subtotal    types.Money           `json:"subtotal"`
	TaxTotal    types.Money           `json:"tax_total"`
	Total       types.Money           `json:"total"`
	Notes       string                `json:"notes,omitempty"`
	FinalizedAt *time.Time            `json:"finalized_at,omitempty"`
	SentAt      *time.Time            `json:"sent_at,omitempty"`
	ClosedAt    *time.Time            `json:"closed_at,omitempty"`
	Metadata    map[string]string     `json:"metadata,omitempty"`
}

// Line is one priced row. VATRate is a percentage ("20" for 20%).
type Line struct {
	ID          id.LineItemID   `json:"id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   types.Money     `json:"unit_price"`
	VATRate     decimal.Decimal `json:"vat_rate"`
	Amount      types.Money     `json:"amount"`
}

// NewID returns a fresh ID with the prefix for t.
func NewID(t sequence.DocumentType) id.DocumentID {
	if t == sequence.TypeQuote {
		return id.NewQuoteID()
	}
	return id.NewInvoiceID()
}

// Normalize fills defaults: currency, line IDs and line currencies.
func (d *Document) Normalize() {
	if d.Currency == "" {
		d.Currency = types.DefaultCurrency
	}
	d.Currency = strings.ToLower(d.Currency)
	for i := range d.Lines {
		if d.Lines[i].ID.IsNil() {
			d.Lines[i].ID = id.NewLineItemID()
		}
		if d.Lines[i].UnitPrice.Currency == "" {
			d.Lines[i].UnitPrice.Currency = d.Currency
		}
	}
}

// Validate checks the fields a caller controls.
func (d *Document) Validate() error {
	if d.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidDocument)
	}
	if !d.Type.Valid() {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, sequence.ErrInvalidDocumentType)
	}
	for i, l := range d.Lines {
		switch {
		case strings.TrimSpace(l.Description) == "":
			return fmt.Errorf("%w: line %d: description is required", ErrInvalidDocument, i+1)
		case !l.Quantity.IsPositive():
			return fmt.Errorf("%w: line %d: quantity must be positive", ErrInvalidDocument, i+1)
		case l.UnitPrice.IsNegative():
			return fmt.Errorf("%w: line %d: unit price must not be negative", ErrInvalidDocument, i+1)
		case l.VATRate.IsNegative() || l.VATRate.GreaterThan(decimal.NewFromInt(100)):
			return fmt.Errorf("%w: line %d: vat rate must be between 0 and 100", ErrInvalidDocument, i+1)
		case l.UnitPrice.Currency != "" && l.UnitPrice.Currency != d.Currency:
			return fmt.Errorf("%w: line %d: currency %s differs from document currency %s",
				ErrInvalidDocument, i+1, l.UnitPrice.Currency, d.Currency)
		}
	}
	if d.DueDate != nil && d.DueDate.Before(d.IssueDate) {
		return fmt.Errorf("%w: due date is before issue date", ErrInvalidDocument)
	}
	return nil
}

// Recalculate recomputes line amounts and document totals.
func (d *Document) Recalculate() {
	subtotal := types.Zero(d.Currency)
	tax := types.Zero(d.Currency)
	for i := range d.Lines {
		l := &d.Lines[i]
		l.Amount = l.UnitPrice.MulDecimal(l.Quantity)
		subtotal = subtotal.Add(l.Amount)
		tax = tax.Add(l.Amount.Percent(l.VATRate))
	}
	d.Subtotal = subtotal
	d.TaxTotal = tax
	d.Total = subtotal.Add(tax)
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	c := *d
	c.Lines = lo.Map(d.Lines, func(l Line, _ int) Line { return l })
	c.DueDate = cloneTime(d.DueDate)
	c.FinalizedAt = cloneTime(d.FinalizedAt)
	c.SentAt = cloneTime(d.SentAt)
	c.ClosedAt = cloneTime(d.ClosedAt)
	if d.Metadata != nil {
		c.Metadata = lo.Assign(d.Metadata)
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
