// Package plan holds the static subscription tier table. It performs no I/O:
// tiers and their entitlements are configuration, not per-user state.
package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xraph/folio/types"
	"github.com/xraph/folio/usage"
)

// Tier is a subscription plan tier.
type Tier string

const (
	TierFree     Tier = "free"
	TierPro      Tier = "pro"
	TierBusiness Tier = "business"
)

var ErrUnknownPlan = errors.New("folio: unknown plan")

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPro, TierBusiness:
		return true
	}
	return false
}

func (t Tier) String() string { return string(t) }

// Limit is a numeric cap or Unlimited.
type Limit int64

// Unlimited disables a cap.
const Unlimited = Limit(usage.Unlimited)

// IsUnlimited reports whether l disables the cap.
func (l Limit) IsUnlimited() bool { return l < 0 }

// Allows reports whether a counter at current may grow by one.
func (l Limit) Allows(current int64) bool {
	return l.IsUnlimited() || current < int64(l)
}

// Greater reports whether l is a strictly higher cap than other.
func (l Limit) Greater(other Limit) bool {
	switch {
	case other.IsUnlimited():
		return false
	case l.IsUnlimited():
		return true
	default:
		return l > other
	}
}

func (l Limit) String() string {
	if l.IsUnlimited() {
		return "unlimited"
	}
	return strconv.FormatInt(int64(l), 10)
}

// MarshalJSON encodes Unlimited as the string "unlimited".
func (l Limit) MarshalJSON() ([]byte, error) {
	if l.IsUnlimited() {
		return []byte(`"unlimited"`), nil
	}
	return []byte(strconv.FormatInt(int64(l), 10)), nil
}

// UnmarshalJSON accepts a number or "unlimited".
func (l *Limit) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if strings.EqualFold(s, "unlimited") {
			*l = Unlimited
			return nil
		}
		return fmt.Errorf("plan: invalid limit %q", s)
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("plan: invalid limit: %w", err)
	}
	*l = Limit(n)
	return nil
}

// OCRTier grades receipt text extraction.
type OCRTier string

const (
	OCRNone     OCRTier = "none"
	OCRBasic    OCRTier = "basic"
	OCRAdvanced OCRTier = "advanced"
)

// Features is the entitlement row for one tier.
type Features struct {
	Tier             Tier        `json:"tier"`
	Name             string      `json:"name"`
	InvoicesPerMonth Limit       `json:"invoices_per_month"`
	QuotesPerMonth   Limit       `json:"quotes_per_month"`
	ExpensesPerMonth Limit       `json:"expenses_per_month"`
	MaxClients       Limit       `json:"max_clients"`
	OCR              OCRTier     `json:"ocr"`
	ESignature       bool        `json:"e_signature"`
	CSVExport        bool        `json:"csv_export"`
	MonthlyPrice     types.Money `json:"monthly_price"`
}

// LimitFor returns the cap that applies to metric.
func (f Features) LimitFor(m usage.Metric) (Limit, error) {
	switch m {
	case usage.MetricInvoices:
		return f.InvoicesPerMonth, nil
	case usage.MetricQuotes:
		return f.QuotesPerMonth, nil
	case usage.MetricExpenses:
		return f.ExpensesPerMonth, nil
	case usage.MetricClients:
		return f.MaxClients, nil
	}
	return 0, fmt.Errorf("%w: %q", usage.ErrInvalidMetric, m)
}
