package mongo

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/xraph/grove"

	"github.com/xraph/folio/audit"
	"github.com/xraph/folio/document"
	"github.com/xraph/folio/id"
	"github.com/xraph/folio/sequence"
	"github.com/xraph/folio/subscription"
	"github.com/xraph/folio/types"
	"github.com/xraph/folio/usage"
	"github.com/xraph/folio/user"
)

// ==================== User models ====================

// userModel embeds the numbering and usage counters on the user document,
// so every counter update is a single-document atomic operation.
type userModel struct {
	grove.BaseModel `grove:"table:folio_users"`

	ID           string                   `grove:"id,pk"        bson:"_id"`
	Email        string                   `grove:"email"        bson:"email"`
	Name         string                   `grove:"name"         bson:"name"`
	Subscription subscriptionModel        `grove:"subscription" bson:"subscription"`
	Usage        usageModel               `grove:"usage"        bson:"usage"`
	Sequences    map[string]sequenceModel `grove:"sequences"    bson:"sequences,omitempty"`
	CreatedAt    time.Time                `grove:"created_at"   bson:"created_at"`
	UpdatedAt    time.Time                `grove:"updated_at"   bson:"updated_at"`
}

type subscriptionModel struct {
	Plan                   string     `bson:"plan"`
	Status                 string     `bson:"status"`
	ProviderCustomerID     string     `bson:"provider_customer_id,omitempty"`
	ProviderSubscriptionID string     `bson:"provider_subscription_id,omitempty"`
	CurrentPeriodEnd       *time.Time `bson:"current_period_end,omitempty"`
	CanceledAt             *time.Time `bson:"canceled_at,omitempty"`
}

type usageModel struct {
	InvoicesThisMonth int64     `bson:"invoices_this_month"`
	QuotesThisMonth   int64     `bson:"quotes_this_month"`
	ExpensesThisMonth int64     `bson:"expenses_this_month"`
	ClientsCount      int64     `bson:"clients_count"`
	LastResetDate     time.Time `bson:"last_reset_date"`
}

type sequenceModel struct {
	Prefix     string    `bson:"prefix"`
	Year       int       `bson:"year"`
	NextNumber int       `bson:"next_number"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

func toSubscriptionModel(sub subscription.Subscription) subscriptionModel {
	return subscriptionModel{
		Plan:                   sub.Plan,
		Status:                 string(sub.Status),
		ProviderCustomerID:     sub.ProviderCustomerID,
		ProviderSubscriptionID: sub.ProviderSubscriptionID,
		CurrentPeriodEnd:       sub.CurrentPeriodEnd,
		CanceledAt:             sub.CanceledAt,
	}
}

func toUserModel(u *user.User) *userModel {
	m := &userModel{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		Subscription: toSubscriptionModel(u.Subscription),
		Usage: usageModel{
			InvoicesThisMonth: u.Usage.InvoicesThisMonth,
			QuotesThisMonth:   u.Usage.QuotesThisMonth,
			ExpensesThisMonth: u.Usage.ExpensesThisMonth,
			ClientsCount:      u.Usage.ClientsCount,
			LastResetDate:     u.Usage.LastResetDate,
		},
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	if len(u.Sequences) > 0 {
		m.Sequences = make(map[string]sequenceModel, len(u.Sequences))
		for t, c := range u.Sequences {
			m.Sequences[string(t)] = sequenceModel{
				Prefix:     c.Prefix,
				Year:       c.Year,
				NextNumber: c.NextNumber,
				UpdatedAt:  c.UpdatedAt,
			}
		}
	}
	return m
}

func fromUserModel(m *userModel) *user.User {
	u := &user.User{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:    m.ID,
		Email: m.Email,
		Name:  m.Name,
		Subscription: subscription.Subscription{
			Plan:                   m.Subscription.Plan,
			Status:                 subscription.Status(m.Subscription.Status),
			ProviderCustomerID:     m.Subscription.ProviderCustomerID,
			ProviderSubscriptionID: m.Subscription.ProviderSubscriptionID,
			CurrentPeriodEnd:       utc(m.Subscription.CurrentPeriodEnd),
			CanceledAt:             utc(m.Subscription.CanceledAt),
		},
		Usage: fromUsageModel(m.Usage),
	}
	if len(m.Sequences) > 0 {
		u.Sequences = make(map[sequence.DocumentType]sequence.Counter, len(m.Sequences))
		for t := range m.Sequences {
			dt := sequence.DocumentType(t)
			u.Sequences[dt] = fromSequenceModel(m.ID, dt, m.Sequences[t])
		}
	}
	return u
}

func fromUsageModel(m usageModel) usage.Counters {
	return usage.Counters{
		InvoicesThisMonth: m.InvoicesThisMonth,
		QuotesThisMonth:   m.QuotesThisMonth,
		ExpensesThisMonth: m.ExpensesThisMonth,
		ClientsCount:      m.ClientsCount,
		LastResetDate:     m.LastResetDate.UTC(),
	}
}

func fromSequenceModel(userID string, t sequence.DocumentType, m sequenceModel) sequence.Counter {
	return sequence.Counter{
		UserID:     userID,
		Type:       t,
		Prefix:     m.Prefix,
		Year:       m.Year,
		NextNumber: m.NextNumber,
		UpdatedAt:  m.UpdatedAt.UTC(),
	}
}

// ==================== Document models ====================

type documentModel struct {
	grove.BaseModel `grove:"table:folio_documents"`

	ID           string            `grove:"id,pk"         bson:"_id"`
	UserID       string            `grove:"user_id"       bson:"user_id"`
	DocumentType string            `grove:"document_type" bson:"document_type"`
	Number       string            `grove:"number"        bson:"number"`
	Status       string            `grove:"status"        bson:"status"`
	ClientID     string            `grove:"client_id"     bson:"client_id"`
	Title        string            `grove:"title"         bson:"title,omitempty"`
	IssueDate    time.Time         `grove:"issue_date"    bson:"issue_date"`
	DueDate      *time.Time        `grove:"due_date"      bson:"due_date,omitempty"`
	Currency     string            `grove:"currency"      bson:"currency"`
	Lines        []lineModel       `grove:"lines"         bson:"lines"`
	Subtotal     int64             `grove:"subtotal"      bson:"subtotal"`
	TaxTotal     int64             `grove:"tax_total"     bson:"tax_total"`
	Total        int64             `grove:"total"         bson:"total"`
	Notes        string            `grove:"notes"         bson:"notes,omitempty"`
	FinalizedAt  *time.Time        `grove:"finalized_at"  bson:"finalized_at,omitempty"`
	SentAt       *time.Time        `grove:"sent_at"       bson:"sent_at,omitempty"`
	ClosedAt     *time.Time        `grove:"closed_at"     bson:"closed_at,omitempty"`
	Metadata     map[string]string `grove:"metadata"      bson:"metadata,omitempty"`
	CreatedAt    time.Time         `grove:"created_at"    bson:"created_at"`
	UpdatedAt    time.Time         `grove:"updated_at"    bson:"updated_at"`
}

// lineModel keeps quantities and rates as decimal strings so no precision
// is lost to float conversion.
type lineModel struct {
	ID          string `bson:"id"`
	Description string `bson:"description"`
	Quantity    string `bson:"quantity"`
	UnitPrice   int64  `bson:"unit_price"`
	VATRate     string `bson:"vat_rate"`
	Amount      int64  `bson:"amount"`
}

func toDocumentModel(d *document.Document) *documentModel {
	lines := make([]lineModel, len(d.Lines))
	for i, l := range d.Lines {
		lines[i] = lineModel{
			ID:          l.ID.String(),
			Description: l.Description,
			Quantity:    l.Quantity.String(),
			UnitPrice:   l.UnitPrice.Amount,
			VATRate:     l.VATRate.String(),
			Amount:      l.Amount.Amount,
		}
	}
	return &documentModel{
		ID:           d.ID.String(),
		UserID:       d.UserID,
		DocumentType: string(d.Type),
		Number:       d.Number,
		Status:       string(d.Status),
		ClientID:     d.ClientID,
		Title:        d.Title,
		IssueDate:    d.IssueDate,
		DueDate:      d.DueDate,
		Currency:     d.Currency,
		Lines:        lines,
		Subtotal:     d.Subtotal.Amount,
		TaxTotal:     d.TaxTotal.Amount,
		Total:        d.Total.Amount,
		Notes:        d.Notes,
		FinalizedAt:  d.FinalizedAt,
		SentAt:       d.SentAt,
		ClosedAt:     d.ClosedAt,
		Metadata:     d.Metadata,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func fromDocumentModel(m *documentModel) (*document.Document, error) {
	docID, err := id.ParseDocumentID(m.ID)
	if err != nil {
		return nil, err
	}

	lines := make([]document.Line, len(m.Lines))
	for i, l := range m.Lines {
		lineID, err := id.ParseLineItemID(l.ID)
		if err != nil {
			return nil, err
		}
		qty, err := decimal.NewFromString(l.Quantity)
		if err != nil {
			return nil, err
		}
		rate, err := decimal.NewFromString(l.VATRate)
		if err != nil {
			return nil, err
		}
		lines[i] = document.Line{
			ID:          lineID,
			Description: l.Description,
			Quantity:    qty,
			UnitPrice:   types.Money{Amount: l.UnitPrice, Currency: m.Currency},
			VATRate:     rate,
			Amount:      types.Money{Amount: l.Amount, Currency: m.Currency},
		}
	}

	return &document.Document{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:          docID,
		UserID:      m.UserID,
		Type:        sequence.DocumentType(m.DocumentType),
		Number:      m.Number,
		Status:      document.Status(m.Status),
		ClientID:    m.ClientID,
		Title:       m.Title,
		IssueDate:   m.IssueDate.UTC(),
		DueDate:     utc(m.DueDate),
		Currency:    m.Currency,
		Lines:       lines,
		Subtotal:    types.Money{Amount: m.Subtotal, Currency: m.Currency},
		TaxTotal:    types.Money{Amount: m.TaxTotal, Currency: m.Currency},
		Total:       types.Money{Amount: m.Total, Currency: m.Currency},
		Notes:       m.Notes,
		FinalizedAt: utc(m.FinalizedAt),
		SentAt:      utc(m.SentAt),
		ClosedAt:    utc(m.ClosedAt),
		Metadata:    m.Metadata,
	}, nil
}

// ==================== Audit models ====================

type auditEntryModel struct {
	grove.BaseModel `grove:"table:folio_audit_entries"`

	ID           string            `grove:"id,pk"         bson:"_id"`
	DocumentID   string            `grove:"document_id"   bson:"document_id"`
	DocumentType string            `grove:"document_type" bson:"document_type,omitempty"`
	UserID       string            `grove:"user_id"       bson:"user_id"`
	Action       string            `grove:"action"        bson:"action"`
	Changes      []changeModel     `grove:"changes"       bson:"changes,omitempty"`
	PerformedBy  string            `grove:"performed_by"  bson:"performed_by"`
	PerformedAt  time.Time         `grove:"performed_at"  bson:"performed_at"`
	IPAddress    string            `grove:"ip_address"    bson:"ip_address,omitempty"`
	UserAgent    string            `grove:"user_agent"    bson:"user_agent,omitempty"`
	Metadata     map[string]string `grove:"metadata"      bson:"metadata,omitempty"`
}

type changeModel struct {
	Field string `bson:"field"`
	Old   string `bson:"old"`
	New   string `bson:"new"`
}

func toAuditEntryModel(e *audit.Entry) *auditEntryModel {
	var changes []changeModel
	for _, c := range e.Changes {
		changes = append(changes, changeModel(c))
	}
	return &auditEntryModel{
		ID:           e.ID.String(),
		DocumentID:   e.DocumentID.String(),
		DocumentType: string(e.DocumentType),
		UserID:       e.UserID,
		Action:       string(e.Action),
		Changes:      changes,
		PerformedBy:  e.PerformedBy,
		PerformedAt:  e.PerformedAt,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		Metadata:     e.Metadata,
	}
}

func fromAuditEntryModel(m *auditEntryModel) (*audit.Entry, error) {
	entryID, err := id.ParseAuditEntryID(m.ID)
	if err != nil {
		return nil, err
	}
	docID, err := id.ParseDocumentID(m.DocumentID)
	if err != nil {
		return nil, err
	}

	var changes []audit.Change
	for _, c := range m.Changes {
		changes = append(changes, audit.Change(c))
	}

	return &audit.Entry{
		ID:           entryID,
		DocumentID:   docID,
		DocumentType: sequence.DocumentType(m.DocumentType),
		UserID:       m.UserID,
		Action:       audit.Action(m.Action),
		Changes:      changes,
		PerformedBy:  m.PerformedBy,
		PerformedAt:  m.PerformedAt.UTC(),
		IPAddress:    m.IPAddress,
		UserAgent:    m.UserAgent,
		Metadata:     m.Metadata,
	}, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
