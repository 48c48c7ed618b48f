// Package id defines the TypeID identifiers of Folio entities.
//
// An ID is "prefix_suffix" where the prefix names the entity type and the
// suffix is a UUIDv7, so IDs sort by creation time. Invoices and quotes
// share the DocumentID type and are told apart by prefix.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

const (
	PrefixUser       Prefix = "usr"
	PrefixInvoice    Prefix = "inv"
	PrefixQuote      Prefix = "quo"
	PrefixLineItem   Prefix = "li"
	PrefixAuditEntry Prefix = "aud"
)

// ID wraps a TypeID. The zero value is Nil and marshals to an empty string.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

type (
	// DocumentID identifies an invoice ("inv") or a quote ("quo").
	DocumentID = ID
	// LineItemID identifies a document line ("li").
	LineItemID = ID
	// AuditEntryID identifies an audit entry ("aud").
	AuditEntryID = ID
)

// New generates an ID with the given prefix. It panics on a prefix TypeID
// rejects, which only a programming error can produce.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

func NewUserID() ID       { return New(PrefixUser) }
func NewInvoiceID() ID    { return New(PrefixInvoice) }
func NewQuoteID() ID      { return New(PrefixQuote) }
func NewLineItemID() ID   { return New(PrefixLineItem) }
func NewAuditEntryID() ID { return New(PrefixAuditEntry) }

// Parse parses any well-formed TypeID string.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and requires one of the given prefixes.
func ParseWithPrefix(s string, allowed ...Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	for _, p := range allowed {
		if parsed.Prefix() == p {
			return parsed, nil
		}
	}
	return Nil, fmt.Errorf("id: %q has prefix %q, want one of %q", s, parsed.Prefix(), allowed)
}

func ParseInvoiceID(s string) (ID, error)    { return ParseWithPrefix(s, PrefixInvoice) }
func ParseQuoteID(s string) (ID, error)      { return ParseWithPrefix(s, PrefixQuote) }
func ParseLineItemID(s string) (ID, error)   { return ParseWithPrefix(s, PrefixLineItem) }
func ParseAuditEntryID(s string) (ID, error) { return ParseWithPrefix(s, PrefixAuditEntry) }

// ParseDocumentID accepts an invoice or a quote ID.
func ParseDocumentID(s string) (ID, error) {
	return ParseWithPrefix(s, PrefixInvoice, PrefixQuote)
}

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the entity prefix, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether i is the zero value.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields Nil.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer. Nil is stored as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
