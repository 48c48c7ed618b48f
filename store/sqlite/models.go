package sqlite

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

	ID                     string `grove:"id,pk"`
	Email                  string `grove:"email"`
	Name                   string `grove:"name"`
	Plan                   string `grove:"plan"`
	SubscriptionStatus     string `grove:"subscription_status"`
	ProviderCustomerID     string `grove:"provider_customer_id"`
	ProviderSubscriptionID string `grove:"provider_subscription_id"`
	CurrentPeriodEnd       *int64 `grove:"current_period_end"`
	CanceledAt             *int64 `grove:"canceled_at"`
	InvoicesThisMonth      int64  `grove:"invoices_this_month"`
	QuotesThisMonth        int64  `grove:"quotes_this_month"`
	ExpensesThisMonth      int64  `grove:"expenses_this_month"`
	ClientsCount           int64  `grove:"clients_count"`
	LastResetDate          int64  `grove:"last_reset_date"`
	CreatedAt              int64  `grove:"created_at"`
	UpdatedAt              int64  `grove:"updated_at"`
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
		CurrentPeriodEnd:       toUnixPtr(u.Subscription.CurrentPeriodEnd),
		CanceledAt:             toUnixPtr(u.Subscription.CanceledAt),
		InvoicesThisMonth:      u.Usage.InvoicesThisMonth,
		QuotesThisMonth:        u.Usage.QuotesThisMonth,
		ExpensesThisMonth:      u.Usage.ExpensesThisMonth,
		ClientsCount:           u.Usage.ClientsCount,
		LastResetDate:          u.Usage.LastResetDate.Unix(),
		CreatedAt:              u.CreatedAt.Unix(),
		UpdatedAt:              u.UpdatedAt.Unix(),
	}
}

func fromUserModel(m *userModel) *user.User {
	return &user.User{
		Entity: types.Entity{
			CreatedAt: fromUnix(m.CreatedAt),
			UpdatedAt: fromUnix(m.UpdatedAt),
		},
		ID:    m.ID,
		Email: m.Email,
		Name:  m.Name,
		Subscription: subscription.Subscription{
			Plan:                   m.Plan,
			Status:                 subscription.Status(m.SubscriptionStatus),
			ProviderCustomerID:     m.ProviderCustomerID,
			ProviderSubscriptionID: m.ProviderSubscriptionID,
			CurrentPeriodEnd:       fromUnixPtr(m.CurrentPeriodEnd),
			CanceledAt:             fromUnixPtr(m.CanceledAt),
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
		LastResetDate:     fromUnix(m.LastResetDate),
	}
}

// ==================== Sequence models ====================

type sequenceModel struct {
	grove.BaseModel `grove:"table:folio_sequences"`

	UserID       string `grove:"user_id,pk"`
	DocumentType string `grove:"document_type,pk"`
	Prefix       string `grove:"prefix"`
	Year         int    `grove:"year"`
	NextNumber   int    `grove:"next_number"`
	UpdatedAt    int64  `grove:"updated_at"`
}

func fromSequenceModel(m *sequenceModel) sequence.Counter {
	return sequence.Counter{
		UserID:     m.UserID,
		Type:       sequence.DocumentType(m.DocumentType),
		Prefix:     m.Prefix,
		Year:       m.Year,
		NextNumber: m.NextNumber,
		UpdatedAt:  fromUnix(m.UpdatedAt),
	}
}

// ==================== Document models ====================

type documentModel struct {
	grove.BaseModel `grove:"table:folio_documents"`

	ID           string `grove:"id,pk"`
	UserID       string `grove:"user_id"`
	DocumentType string `grove:"document_type"`
	Number       string `grove:"number"`
	Status       string `grove:"status"`
	ClientID     string `grove:"client_id"`
	Title        string `grove:"title"`
	IssueDate    int64  `grove:"issue_date"`
	DueDate      *int64 `grove:"due_date"`
	Currency     string `grove:"currency"`
	Lines        string `grove:"lines"`
	Subtotal     int64  `grove:"subtotal"`
	TaxTotal     int64  `grove:"tax_total"`
	Total        int64  `grove:"total"`
	Notes        string `grove:"notes"`
	FinalizedAt  *int64 `grove:"finalized_at"`
	SentAt       *int64 `grove:"sent_at"`
	ClosedAt     *int64 `grove:"closed_at"`
	Metadata     string `grove:"metadata"`
	CreatedAt    int64  `grove:"created_at"`
	UpdatedAt    int64  `grove:"updated_at"`
}

func toDocumentModel(d *document.Document) (*documentModel, error) {
	lines, err := json.Marshal(d.Lines)
	if err != nil {
		return nil, err
	}
	metadata, err := encodeMetadata(d.Metadata)
	if err != nil {
		return nil, err
	}
	return &documentModel{
		ID:           d.ID.String(),
		UserID:       d.UserID,
		DocumentType: string(d.Type),
		Number:       d.Number,
		Status:       string(d.Status),
		ClientID:     d.ClientID,
		Title:        d.Title,
		IssueDate:    d.IssueDate.Unix(),
		DueDate:      toUnixPtr(d.DueDate),
		Currency:     d.Currency,
		Lines:        string(lines),
		Subtotal:     d.Subtotal.Amount,
		TaxTotal:     d.TaxTotal.Amount,
		Total:        d.Total.Amount,
		Notes:        d.Notes,
		FinalizedAt:  toUnixPtr(d.FinalizedAt),
		SentAt:       toUnixPtr(d.SentAt),
		ClosedAt:     toUnixPtr(d.ClosedAt),
		Metadata:     metadata,
		CreatedAt:    d.CreatedAt.Unix(),
		UpdatedAt:    d.UpdatedAt.Unix(),
	}, nil
}

func fromDocumentModel(m *documentModel) (*document.Document, error) {
	docID, err := id.ParseDocumentID(m.ID)
	if err != nil {
		return nil, err
	}

	var lines []document.Line
	if m.Lines != "" {
		if err := json.Unmarshal([]byte(m.Lines), &lines); err != nil {
			return nil, err
		}
	}
	metadata, err := decodeMetadata(m.Metadata)
	if err != nil {
		return nil, err
	}

	return &document.Document{
		Entity: types.Entity{
			CreatedAt: fromUnix(m.CreatedAt),
			UpdatedAt: fromUnix(m.UpdatedAt),
		},
		ID:          docID,
		UserID:      m.UserID,
		Type:        sequence.DocumentType(m.DocumentType),
		Number:      m.Number,
		Status:      document.Status(m.Status),
		ClientID:    m.ClientID,
		Title:       m.Title,
		IssueDate:   fromUnix(m.IssueDate),
		DueDate:     fromUnixPtr(m.DueDate),
		Currency:    m.Currency,
		Lines:       lines,
		Subtotal:    types.Money{Amount: m.Subtotal, Currency: m.Currency},
		TaxTotal:    types.Money{Amount: m.TaxTotal, Currency: m.Currency},
		Total:       types.Money{Amount: m.Total, Currency: m.Currency},
		Notes:       m.Notes,
		FinalizedAt: fromUnixPtr(m.FinalizedAt),
		SentAt:      fromUnixPtr(m.SentAt),
		ClosedAt:    fromUnixPtr(m.ClosedAt),
		Metadata:    metadata,
	}, nil
}

// ==================== Audit models ====================

type auditEntryModel struct {
	grove.BaseModel `grove:"table:folio_audit_entries"`

	ID           string `grove:"id,pk"`
	DocumentID   string `grove:"document_id"`
	DocumentType string `grove:"document_type"`
	UserID       string `grove:"user_id"`
	Action       string `grove:"action"`
	Changes      string `grove:"changes"`
	PerformedBy  string `grove:"performed_by"`
	PerformedAt  int64  `grove:"performed_at"`
	IPAddress    string `grove:"ip_address"`
	UserAgent    string `grove:"user_agent"`
	Metadata     string `grove:"metadata"`
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
	metadata, err := encodeMetadata(e.Metadata)
	if err != nil {
		return nil, err
	}
	return &auditEntryModel{
		ID:           e.ID.String(),
		DocumentID:   e.DocumentID.String(),
		DocumentType: string(e.DocumentType),
		UserID:       e.UserID,
		Action:       string(e.Action),
		Changes:      string(raw),
		PerformedBy:  e.PerformedBy,
		PerformedAt:  e.PerformedAt.Unix(),
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
	if m.Changes != "" {
		if err := json.Unmarshal([]byte(m.Changes), &changes); err != nil {
			return nil, err
		}
	}
	if len(changes) == 0 {
		changes = nil
	}
	metadata, err := decodeMetadata(m.Metadata)
	if err != nil {
		return nil, err
	}

	return &audit.Entry{
		ID:           entryID,
		DocumentID:   docID,
		DocumentType: sequence.DocumentType(m.DocumentType),
		UserID:       m.UserID,
		Action:       audit.Action(m.Action),
		Changes:      changes,
		PerformedBy:  m.PerformedBy,
		PerformedAt:  fromUnix(m.PerformedAt),
		IPAddress:    m.IPAddress,
		UserAgent:    m.UserAgent,
		Metadata:     metadata,
	}, nil
}

// ==================== Encoding helpers ====================

func encodeMetadata(md map[string]string) (string, error) {
	if len(md) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeMetadata(raw string) (map[string]string, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var md map[string]string
	if err := json.Unmarshal([]byte(raw), &md); err != nil {
		return nil, err
	}
	return md, nil
}

func fromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func toUnixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.Unix()
	return &v
}

func fromUnixPtr(sec *int64) *time.Time {
	if sec == nil {
		return nil
	}
	t := fromUnix(*sec)
	return &t
}
