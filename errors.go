package folio

import (
	"errors"
	"fmt"

	"github.com/xraph/folio/document"
	"github.com/xraph/folio/entitlement"
	"github.com/xraph/folio/id"
	"github.com/xraph/folio/plan"
	"github.com/xraph/folio/sequence"
	"github.com/xraph/folio/usage"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrAlreadyExists = errors.New("folio: already exists")
	ErrInvalidInput  = errors.New("folio: invalid input")

	// Lookup errors
	ErrUserNotFound     = errors.New("folio: user not found")
	ErrDocumentNotFound = errors.New("folio: document not found")

	// Numbering errors
	ErrSequenceExhausted   = errors.New("folio: document numbers exhausted for the year")
	ErrInvalidDocumentType = sequence.ErrInvalidDocumentType
	ErrInvalidPrefix       = sequence.ErrInvalidPrefix

	// Usage errors
	ErrQuotaExceeded = errors.New("folio: quota exceeded")
	ErrInvalidMetric = usage.ErrInvalidMetric
	ErrUnknownPlan   = plan.ErrUnknownPlan

	// Document errors
	ErrImmutableDocument = errors.New("folio: document is no longer editable")
	ErrInvalidTransition = document.ErrInvalidTransition
	ErrInvalidDocument   = document.ErrInvalidDocument

	// Store errors
	ErrConcurrentModification = errors.New("folio: concurrent modification, try again later")
	ErrStoreClosed            = errors.New("folio: store is closed")
)

// QuotaExceededError is returned when a plan limit blocks a creation.
// Upgrade is the cheapest tier that lifts the limit, empty when none does.
type QuotaExceededError struct {
	Metric  usage.Metric
	Plan    plan.Tier
	Current int64
	Limit   plan.Limit
	Upgrade plan.Tier
}

func newQuotaExceededError(r *entitlement.Result) *QuotaExceededError {
	e := &QuotaExceededError{
		Metric:  r.Metric,
		Plan:    r.Plan,
		Current: r.Current,
		Limit:   r.Limit,
	}
	if up, ok := plan.UpgradeFor(r.Plan, r.Metric); ok {
		e.Upgrade = up
	}
	return e
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s: %s", ErrQuotaExceeded,
		entitlement.DenialReason(e.Plan, e.Metric, e.Current, e.Limit))
}

func (e *QuotaExceededError) Unwrap() error { return ErrQuotaExceeded }

// ImmutableDocumentError is returned for any edit or delete of a document
// that has left draft.
type ImmutableDocumentError struct {
	DocumentID id.DocumentID
	Number     string
	Status     document.Status
}

func (e *ImmutableDocumentError) Error() string {
	return fmt.Sprintf("%s: %s is %s", ErrImmutableDocument, e.Number, e.Status)
}

func (e *ImmutableDocumentError) Unwrap() error { return ErrImmutableDocument }

// SequenceExhaustedError is returned when a counter has issued MaxNumber
// numbers in a year.
type SequenceExhaustedError struct {
	UserID string
	Type   sequence.DocumentType
	Year   int
}

func (e *SequenceExhaustedError) Error() string {
	return fmt.Sprintf("%s: %s %d for %s", ErrSequenceExhausted, e.Type, e.Year, e.UserID)
}

func (e *SequenceExhaustedError) Unwrap() error { return ErrSequenceExhausted }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrDocumentNotFound)
}

// IsQuotaError returns true if the error is related to plan limits.
func IsQuotaError(err error) bool {
	return errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrSequenceExhausted)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
