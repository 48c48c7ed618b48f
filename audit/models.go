// Package audit defines the append-only change log kept for financial
// documents.
package audit

import (
	"time"

	"github.com/xraph/folio/id"
	"github.com/xraph/folio/sequence"
)

// Action is the closed set of audited lifecycle events.
type Action string

const (
	ActionCreated             Action = "created"
	ActionUpdated             Action = "updated"
	ActionFinalized           Action = "finalized"
	ActionSent                Action = "sent"
	ActionDeleted             Action = "deleted"
	ActionModificationAttempt Action = "modification_attempt"
)

// Actions lists every action.
func Actions() []Action {
	return []Action{
		ActionCreated,
		ActionUpdated,
		ActionFinalized,
		ActionSent,
		ActionDeleted,
		ActionModificationAttempt,
	}
}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	for _, known := range Actions() {
		if a == known {
			return true
		}
	}
	return false
}

// Change is one field-level diff. Values are rendered to strings by the
// caller so entries read the same in every backend.
type Change struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// Actor describes who performed an action and from where. It is supplied
// by the request layer, which has already authenticated the user.
type Actor struct {
	PerformedBy string            `json:"performed_by"`
	IPAddress   string            `json:"ip_address,omitempty"`
	UserAgent   string            `json:"user_agent,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// System is the actor used by background jobs.
var System = Actor{PerformedBy: "system"}

// Entry is one immutable audit record.
type Entry struct {
	ID           id.AuditEntryID       `json:"id"`
	DocumentID   id.DocumentID         `json:"document_id"`
	DocumentType sequence.DocumentType `json:"document_type,omitempty"`
	UserID       string                `json:"user_id"`
	Action       Action                `json:"action"`
	Changes      []Change              `json:"changes,omitempty"`
	PerformedBy  string                `json:"performed_by"`
	PerformedAt  time.Time             `json:"performed_at"`
	IPAddress    string                `json:"ip_address,omitempty"`
	UserAgent    string                `json:"user_agent,omitempty"`
	Metadata     map[string]string     `json:"metadata,omitempty"`
}

// NewEntry builds an entry for a document action performed by actor. ID and
// PerformedAt are assigned when the entry is recorded.
func NewEntry(docID id.DocumentID, userID string, action Action, changes []Change, actor Actor) *Entry {
	return &Entry{
		DocumentID:  docID,
		UserID:      userID,
		Action:      action,
		Changes:     changes,
		PerformedBy: actor.PerformedBy,
		IPAddress:   actor.IPAddress,
		UserAgent:   actor.UserAgent,
		Metadata:    actor.Metadata,
	}
}
