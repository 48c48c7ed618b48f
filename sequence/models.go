// Package sequence defines the per-user, per-document-type numbering
// counters and the formatted document numbers they issue.
package sequence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DocumentType selects which counter a number is drawn from.
type DocumentType string

const (
	TypeInvoice DocumentType = "invoice"
	TypeQuote   DocumentType = "quote"
)

// MaxNumber is the largest value that fits the four-digit numeric part.
// Allocation past it is rejected rather than widened.
const MaxNumber = 9999

const maxPrefixLen = 12

var (
	ErrInvalidDocumentType = errors.New("folio: invalid document type")
	ErrInvalidPrefix       = errors.New("folio: invalid number prefix")
	ErrInvalidNumber       = errors.New("folio: invalid document number")
)

// Types lists every document type in a stable order.
func Types() []DocumentType { return []DocumentType{TypeInvoice, TypeQuote} }

// Valid reports whether t is a known document type.
func (t DocumentType) Valid() bool {
	return t == TypeInvoice || t == TypeQuote
}

// DefaultPrefix is the prefix a counter starts with until the user sets one.
func (t DocumentType) DefaultPrefix() string {
	switch t {
	case TypeInvoice:
		return "FACT"
	case TypeQuote:
		return "DEVIS"
	default:
		return ""
	}
}

func (t DocumentType) String() string { return string(t) }

// ParseDocumentType parses "invoice" or "quote".
func ParseDocumentType(s string) (DocumentType, error) {
	t := DocumentType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDocumentType, s)
	}
	return t, nil
}

// Counter is the stored numbering state for one (user, document type) pair.
// NextNumber is the value the next allocation in Year will issue.
type Counter struct {
	UserID     string       `json:"user_id"`
	Type       DocumentType `json:"document_type"`
	Prefix     string       `json:"prefix"`
	Year       int          `json:"year"`
	NextNumber int          `json:"next_number"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// NewCounter returns the state of a counter that has never issued a number.
func NewCounter(userID string, t DocumentType) Counter {
	return Counter{
		UserID:     userID,
		Type:       t,
		Prefix:     t.DefaultPrefix(),
		NextNumber: 1,
	}
}

// Next computes the number a counter issues in year and the counter state
// after issuing it. ok is false when the year is exhausted.
//
// The counter only moves forward: a later year restarts it at 1, while a
// year behind the stored one (a caller with a lagging clock) is served
// from the stored year.
func (c Counter) Next(year int) (Number, Counter, bool) {
	if c.Prefix == "" {
		c.Prefix = c.Type.DefaultPrefix()
	}
	switch {
	case c.Year < year:
		c.Year = year
		c.NextNumber = 1
	case c.NextNumber < 1:
		c.NextNumber = 1
	}
	if c.NextNumber > MaxNumber {
		return Number{}, c, false
	}
	n := Number{Type: c.Type, Prefix: c.Prefix, Year: c.Year, Value: c.NextNumber}
	c.NextNumber++
	return n, c, true
}

// Number is one issued document number.
type Number struct {
	Type   DocumentType `json:"document_type"`
	Prefix string       `json:"prefix"`
	Year   int          `json:"year"`
	Value  int          `json:"number"`
}

// String formats the number as PREFIX-YYYY-NNNN, e.g. DEVIS-2025-0001.
func (n Number) String() string {
	return fmt.Sprintf("%s-%d-%04d", n.Prefix, n.Year, n.Value)
}

// ParseNumber parses a formatted document number. The document type is not
// encoded in the string and is left empty.
func ParseNumber(s string) (Number, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 || len(parts[2]) != 4 {
		return Number{}, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	if err := ValidatePrefix(parts[0]); err != nil {
		return Number{}, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil || year < 1 {
		return Number{}, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	value, err := strconv.Atoi(parts[2])
	if err != nil || value < 1 {
		return Number{}, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	return Number{Prefix: parts[0], Year: year, Value: value}, nil
}

// ValidatePrefix checks a user-chosen prefix: 1 to 12 upper-case letters or
// digits. Dashes are reserved as the field separator.
func ValidatePrefix(p string) error {
	if p == "" || len(p) > maxPrefixLen {
		return fmt.Errorf("%w: %q", ErrInvalidPrefix, p)
	}
	for _, r := range p {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return fmt.Errorf("%w: %q", ErrInvalidPrefix, p)
		}
	}
	return nil
}
