package postgres

import (
	"encoding/json"
	"time"

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

type userModel struct {
	grove.BaseModel `grove:"table:folio_users"`

	ID                     string     `grove:"id,pk"`
	Email                  string     `grove:"email"`
	Name                   string     `grove:"name"`
	Plan                   string     `grove:"plan"`
	SubscriptionStatus     string     `grove:"subscription_status"`
	ProviderCustomerID     string     `grove:"provider_customer_id"`
	ProviderSubscriptionID string     `grove:"provider_subscription_id"`
	CurrentPeriodEnd       *time.Time `grove:"current_period_end"`
	CanceledAt             *time.Time `grove:"canceled_at"`
	InvoicesThisMonth      int64      `grove:"invoices_this_month"`
	QuotesThisMonth        int64      `grove:"quotes_this_month"`
	ExpensesThisMonth      int64      `grove:"expenses_this_month"`
	ClientsCount           int64      `grove:"clients_count"`
	LastResetDate          time.Time  `grove:"last_reset_date"`
	CreatedAt              time.Time  `grove:"created_at"`
	UpdatedAt              time.Time  `grove:"updated_at"`
}

func toUserModel(u *user.User) *userModel {
	return &userModel{
		ID:                     u.ID,
		Email:                  u.Email,
		Name:                   u.Name,
		Plan:                   u.Subscription.Plan,
		SubscriptionStatus:     string(u.Subscription.Status),
		ProviderCustomerID:     u.Subscription.ProviderCustomerID,
		ProviderSubscriptionID: u.Subscription.ProviderSubscriptionID,
		CurrentPeriodEnd:       u.Subscription.CurrentPeriodEnd,
		CanceledAt:             u.Subscription.CanceledAt,
		InvoicesThisMonth:      u.Usage.InvoicesThisMonth,
		QuotesThisMonth:        u.Usage.QuotesThisMonth,
		ExpensesThisMonth:      u.Usage.ExpensesThisMonth,
		ClientsCount:           u.Usage.ClientsCount,
		LastResetDate:          u.Usage.LastResetDate,
		CreatedAt:              u.CreatedAt,
		UpdatedAt:              u.UpdatedAt,
	}
}

func fromUserModel(m *userModel) *user.User {
	return &user.User{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:    m.ID,
		Email: m.Email,
		Name:  m.Name,
		Subscription: subscription.Subscription{
			Plan:                   m.Plan,
			Status:                 subscription.Status(m.SubscriptionStatus),
			ProviderCustomerID:     m.ProviderCustomerID,
			ProviderSubscriptionID: m.ProviderSubscriptionID,
			CurrentPeriodEnd:       utc(m.CurrentPeriodEnd),
			CanceledAt:             utc(m.CanceledAt),
		},
		Usage: fromUsageColumns(m),
	}
}

func fromUsageColumns(m *userModel) usage.Counters {
	return usage.Counters{
		InvoicesThisMonth: m.InvoicesThisMonth,
		QuotesThisMonth:   m.QuotesThisMonth,
		ExpensesThisMonth: m.ExpensesThisMonth,
		ClientsCount:      m.ClientsCount,
		LastResetDate:     m.LastResetDate.UTC(),
	}
}

// ==================== Sequence models ====================

type sequenceModel struct {
	grove.BaseModel `grove:"table:folio_sequences"`

	UserID       string    `grove:"user_id,pk"`
	DocumentType string    `grove:"document_type,pk"`
	Prefix       string    `grove:"prefix"`
	Year         int       `grove:"year"`
	NextNumber   int       `grove:"next_number"`
	UpdatedAt    time.Time `grove:"updated_at"`
}

func fromSequenceModel(m *sequenceModel) sequence.Counter {
	return sequence.Counter{
		UserID:     m.UserID,
		Type:       sequence.DocumentType(m.DocumentType),
		Prefix:     m.Prefix,
		Year:       m.Year,
		NextNumber: m.NextNumber,
		UpdatedAt:  m.UpdatedAt.UTC(),
	}
}

// ==================== Document models ====================

type documentModel struct {
	grove.BaseModel `grove:"table:folio_documents"`

	ID           string            `grove:"id,pk"`
	UserID       string            `grove:"user_id"`
	DocumentType string            `grove:"document_type"`
	Number       string            `grove:"number"`
	Status       string            `grove:"status"`
	ClientID     string            `grove:"client_id"`
	Title        string            `grove:"title"`
	IssueDate    time.Time         `grove:"issue_date"`
	DueDate      *time.Time        `grove:"due_date"`
	Currency     string            `grove:"currency"`
	Lines        json.RawMessage   `grove:"lines,type:jsonb"`
	Subtotal     int64             `grove:"subtotal"`
	TaxTotal     int64             `grove:"tax_total"`
	Total        int64             `grove:"total"`
	Notes        string            `grove:"notes"`
	FinalizedAt  *time.Time        `grove:"finalized_at"`
	SentAt       *time.Time        `grove:"sent_at"`
	ClosedAt     *time.Time        `grove:"closed_at"`
	Metadata     map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt    time.Time         `grove:"created_at"`
	UpdatedAt    time.Time         `grove:"updated_at"`
}

func toDocumentModel(d *document.Document) (*documentModel, error) {
	lines, err := json.Marshal(d.Lines)
	if err != nil {
		return nil, err
	}
	metadata := d.Metadata
	if metadata == nil {
		metadata = map[string]string{}
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
		Metadata:     metadata,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}, nil
}

func fromDocumentModel(m *documentModel) (*document.Document, error) {
	docID, err := id.ParseDocumentID(m.ID)
	if err != nil {
		return nil, err
	}

	var lines []document.Line
	if len(m.Lines) > 0 {
		if err := json.Unmarshal(m.Lines, &lines); err != nil {
			return nil, err
		}
	}

	var metadata map[string]string
	if len(m.Metadata) > 0 {
		metadata = m.Metadata
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
		Metadata:    metadata,
	}, nil
}

// ==================== Audit models ====================

type auditEntryModel struct {
	grove.BaseModel `grove:"table:folio_audit_entries"`

	ID           string            `grove:"id,pk"`
	DocumentID   string            `grove:"document_id"`
	DocumentType string            `grove:"document_type"`
	UserID       string            `grove:"user_id"`
	Action       string            `grove:"action"`
	Changes      json.RawMessage   `grove:"changes,type:jsonb"`
	PerformedBy  string            `grove:"performed_by"`
	PerformedAt  time.Time         `grove:"performed_at"`
	IPAddress    string            `grove:"ip_address"`
	UserAgent    string            `grove:"user_agent"`
	Metadata     map[string]string `grove:"metadata,type:jsonb"`
}

func toAuditEntryModel(e *audit.Entry) (*auditEntryModel, error) {
	changes := e.Changes
	if changes == nil {
		changes = []audit.Change{}
	}
	raw, err := json.Marshal(changes)
	if err != nil {
		return nil, err
	}
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &auditEntryModel{
		ID:           e.ID.String(),
		DocumentID:   e.DocumentID.String(),
		DocumentType: string(e.DocumentType),
		UserID:       e.UserID,
		Action:       string(e.Action),
		Changes:      raw,
		PerformedBy:  e.PerformedBy,
		PerformedAt:  e.PerformedAt,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		Metadata:     metadata,
	}, nil
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
	if len(m.Changes) > 0 {
		if err := json.Unmarshal(m.Changes, &changes); err != nil {
			return nil, err
		}
	}
	if len(changes) == 0 {
		changes = nil
	}

	var metadata map[string]string
	if len(m.Metadata) > 0 {
		metadata = m.Metadata
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
		Metadata:     metadata,
	}, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
