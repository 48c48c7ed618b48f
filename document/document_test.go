package document

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/folio/audit"
	"github.com/xraph/folio/id"
	"github.com/xraph/folio/sequence"
	"github.com/xraph/folio/types"
)

func newQuote() *Document {
	d := &Document{
		ID:        NewID(sequence.TypeQuote),
		UserID:    "usr_1",
		Type:      sequence.TypeQuote,
		Number:    "DEVIS-2025-0001",
		Status:    StatusDraft,
		ClientID:  "client-1",
		IssueDate: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		Lines: []Line{
			{Description: "Design", Quantity: decimal.NewFromInt(2), UnitPrice: types.EUR(25000), VATRate: decimal.NewFromInt(20)},
			{Description: "Hosting", Quantity: decimal.RequireFromString("1.5"), UnitPrice: types.EUR(1000), VATRate: decimal.RequireFromString("5.5")},
		},
	}
	d.Normalize()
	d.Recalculate()
	return d
}

func TestRecalculate(t *testing.T) {
	d := newQuote()
	assert.Equal(t, types.EUR(51500), d.Subtotal)
	// 50000 * 20% + 1500 * 5.5% = 10000 + 82.5 -> 83
	assert.Equal(t, types.EUR(10083), d.TaxTotal)
	assert.Equal(t, types.EUR(61583), d.Total)
	assert.Equal(t, "eur", d.Currency)
	for _, l := range d.Lines {
		assert.False(t, l.ID.IsNil())
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, newQuote().Validate())

	tests := []struct {
		name   string
		mutate func(d *Document)
	}{
		{"missing user", func(d *Document) { d.UserID = "" }},
		{"bad type", func(d *Document) { d.Type = "receipt" }},
		{"empty description", func(d *Document) { d.Lines[0].Description = " " }},
		{"zero quantity", func(d *Document) { d.Lines[0].Quantity = decimal.Zero }},
		{"vat over 100", func(d *Document) { d.Lines[0].VATRate = decimal.NewFromInt(101) }},
		{"currency mismatch", func(d *Document) { d.Lines[1].UnitPrice.Currency = "usd" }},
		{"due before issue", func(d *Document) {
			due := d.IssueDate.AddDate(0, 0, -1)
			d.DueDate = &due
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newQuote()
			tt.mutate(d)
			assert.ErrorIs(t, d.Validate(), ErrInvalidDocument)
		})
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		typ      sequence.DocumentType
		from, to Status
		want     bool
	}{
		{sequence.TypeQuote, StatusDraft, StatusFinalized, true},
		{sequence.TypeQuote, StatusFinalized, StatusSent, true},
		{sequence.TypeQuote, StatusSent, StatusAccepted, true},
		{sequence.TypeQuote, StatusSent, StatusRejected, true},
		{sequence.TypeQuote, StatusSent, StatusExpired, true},
		{sequence.TypeQuote, StatusSent, StatusPaid, false},
		{sequence.TypeInvoice, StatusSent, StatusPaid, true},
		{sequence.TypeInvoice, StatusSent, StatusAccepted, false},
		{sequence.TypeQuote, StatusDraft, StatusSent, false},
		{sequence.TypeQuote, StatusAccepted, StatusDraft, false},
		{sequence.TypeInvoice, StatusFinalized, StatusDraft, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.typ, tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s, %s) = %v", tt.typ, tt.from, tt.to, got)
		}
	}
}

func TestTransition(t *testing.T) {
	d := newQuote()
	now := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)

	change, err := d.Transition(StatusFinalized, now)
	require.NoError(t, err)
	assert.Equal(t, audit.Change{Field: "status", Old: "draft", New: "finalized"}, change)
	require.NotNil(t, d.FinalizedAt)
	assert.Equal(t, now, *d.FinalizedAt)
	assert.Equal(t, audit.ActionFinalized, AuditAction(StatusFinalized))

	_, err = d.Transition(StatusAccepted, now)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, StatusFinalized, d.Status)
}

func TestPatchApply(t *testing.T) {
	d := newQuote()
	title := "Website redesign"
	notes := ""
	due := d.IssueDate.AddDate(0, 1, 0)
	lines := []Line{
		{Description: "Design", Quantity: decimal.NewFromInt(3), UnitPrice: types.EUR(25000), VATRate: decimal.NewFromInt(20)},
	}

	out, changes := Patch{Title: &title, Notes: &notes, DueDate: &due, Lines: &lines}.Apply(d)

	fields := make([]string, len(changes))
	for i, c := range changes {
		fields[i] = c.Field
	}
	assert.Equal(t, []string{"title", "due_date", "lines", "total"}, fields)
	assert.Equal(t, "2025-04-03", changes[1].New)
	assert.Equal(t, types.EUR(90000), out.Total)

	// The original is untouched.
	assert.Empty(t, d.Title)
	assert.Nil(t, d.DueDate)
	assert.Len(t, d.Lines, 2)
}

func TestPatchNoop(t *testing.T) {
	d := newQuote()
	client := d.ClientID
	same := append([]Line(nil), d.Lines...)
	for i := range same {
		same[i].ID = id.NewLineItemID()
	}

	_, changes := Patch{ClientID: &client, Lines: &same}.Apply(d)
	assert.Empty(t, changes)
}
