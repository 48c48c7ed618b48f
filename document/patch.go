package document

import (
	"encoding/json"
	"time"

	"github.com/xraph/folio/audit"
)

// Patch is a partial edit. Nil fields are left unchanged.
type Patch struct {
	ClientID     *string    `json:"client_id,omitempty"`
	Title        *string    `json:"title,omitempty"`
	IssueDate    *time.Time `json:"issue_date,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	ClearDueDate bool       `json:"clear_due_date,omitempty"`
	Currency     *string    `json:"currency,omitempty"`
	Lines        *[]Line    `json:"lines,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
}

// Apply returns a copy of d with the patch applied and the field-level
// changes it makes. d itself is not modified. Totals on the copy are
// recomputed when lines or currency change.
func (p Patch) Apply(d *Document) (*Document, []audit.Change) {
	out := d.Clone()
	var changes []audit.Change

	setString := func(field string, dst *string, v *string) {
		if v != nil && *v != *dst {
			changes = append(changes, audit.Change{Field: field, Old: *dst, New: *v})
			*dst = *v
		}
	}

	setString("client_id", &out.ClientID, p.ClientID)
	setString("title", &out.Title, p.Title)
	setString("notes", &out.Notes, p.Notes)

	if p.IssueDate != nil && !p.IssueDate.Equal(out.IssueDate) {
		changes = append(changes, audit.Change{Field: "issue_date", Old: formatDate(&out.IssueDate), New: formatDate(p.IssueDate)})
		out.IssueDate = p.IssueDate.UTC()
	}

	switch {
	case p.ClearDueDate && out.DueDate != nil:
		changes = append(changes, audit.Change{Field: "due_date", Old: formatDate(out.DueDate)})
		out.DueDate = nil
	case p.DueDate != nil && (out.DueDate == nil || !p.DueDate.Equal(*out.DueDate)):
		changes = append(changes, audit.Change{Field: "due_date", Old: formatDate(out.DueDate), New: formatDate(p.DueDate)})
		due := p.DueDate.UTC()
		out.DueDate = &due
	}

	recalc := false
	if p.Currency != nil && *p.Currency != out.Currency {
		changes = append(changes, audit.Change{Field: "currency", Old: out.Currency, New: *p.Currency})
		out.Currency = *p.Currency
		for i := range out.Lines {
			out.Lines[i].UnitPrice.Currency = ""
		}
		recalc = true
	}
	if p.Lines != nil {
		next := append([]Line(nil), (*p.Lines)...)
		if before, after := formatLines(out.Lines), formatLines(next); before != after {
			changes = append(changes, audit.Change{Field: "lines", Old: before, New: after})
			out.Lines = next
			recalc = true
		}
	}

	if recalc {
		oldTotal := out.Total.String()
		out.Normalize()
		out.Recalculate()
		if newTotal := out.Total.String(); newTotal != oldTotal {
			changes = append(changes, audit.Change{Field: "total", Old: oldTotal, New: newTotal})
		}
	}

	return out, changes
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

type lineView struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	VATRate     string `json:"vat_rate"`
}

// formatLines renders lines without IDs or computed amounts, so that
// resubmitting identical content is not reported as a change.
func formatLines(lines []Line) string {
	views := make([]lineView, len(lines))
	for i, l := range lines {
		views[i] = lineView{
			Description: l.Description,
			Quantity:    l.Quantity.String(),
			UnitPrice:   l.UnitPrice.Amount,
			VATRate:     l.VATRate.String(),
		}
	}
	data, err := json.Marshal(views)
	if err != nil {
		return ""
	}
	return string(data)
}
