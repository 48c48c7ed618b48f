package folio

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/folio/sequence"
)

// ──────────────────────────────────────────────────
// Numbering
// ──────────────────────────────────────────────────

// AllocateNumber issues the next number of the user's counter for t in the
// current year. The counter is persisted before the number is returned; a
// number that is never used leaves a gap.
func (f *Folio) AllocateNumber(ctx context.Context, userID string, t sequence.DocumentType) (sequence.Number, error) {
	if !t.Valid() {
		return sequence.Number{}, fmt.Errorf("%w: %q", ErrInvalidDocumentType, t)
	}

	year := f.now().Year()

	var n sequence.Number
	err := f.retry(ctx, "allocate_number", func() error {
		var err error
		n, err = f.store.NextNumber(ctx, userID, t, year)
		return err
	})
	if errors.Is(err, ErrSequenceExhausted) {
		f.logger.Warn("document numbers exhausted",
			"user_id", userID,
			"document_type", t,
			"year", year,
		)
		return sequence.Number{}, &SequenceExhaustedError{UserID: userID, Type: t, Year: year}
	}
	if err != nil {
		return sequence.Number{}, err
	}

	f.plugins.EmitNumberAllocated(ctx, userID, n)
	f.logger.Debug("number allocated",
		"user_id", userID,
		"number", n.String(),
	)
	return n, nil
}

// AllocateInvoiceNumber issues the next invoice number, e.g. FACT-2025-0001.
func (f *Folio) AllocateInvoiceNumber(ctx context.Context, userID string) (string, error) {
	n, err := f.AllocateNumber(ctx, userID, sequence.TypeInvoice)
	if err != nil {
		return "", err
	}
	return n.String(), nil
}

// AllocateQuoteNumber issues the next quote number, e.g. DEVIS-2025-0001.
func (f *Folio) AllocateQuoteNumber(ctx context.Context, userID string) (string, error) {
	n, err := f.AllocateNumber(ctx, userID, sequence.TypeQuote)
	if err != nil {
		return "", err
	}
	return n.String(), nil
}
