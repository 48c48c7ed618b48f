package plan

import (
	"fmt"
	"strings"

	"github.com/xraph/folio/types"
	"github.com/xraph/folio/usage"
)

var table = map[Tier]Features{
	TierFree: {
		Tier:             TierFree,
		Name:             "Free",
		InvoicesPerMonth: 5,
		QuotesPerMonth:   5,
		ExpensesPerMonth: 5,
		MaxClients:       10,
		OCR:              OCRNone,
		MonthlyPrice:     types.EUR(0),
	},
	TierPro: {
		Tier:             TierPro,
		Name:             "Pro",
		InvoicesPerMonth: Unlimited,
		QuotesPerMonth:   Unlimited,
		ExpensesPerMonth: 100,
		MaxClients:       Unlimited,
		OCR:              OCRBasic,
		CSVExport:        true,
		MonthlyPrice:     types.EUR(1490),
	},
	TierBusiness: {
		Tier:             TierBusiness,
		Name:             "Business",
		InvoicesPerMonth: Unlimited,
		QuotesPerMonth:   Unlimited,
		ExpensesPerMonth: Unlimited,
		MaxClients:       Unlimited,
		OCR:              OCRAdvanced,
		ESignature:       true,
		CSVExport:        true,
		MonthlyPrice:     types.EUR(2990),
	},
}

// Tiers lists the tiers from cheapest to most expensive.
func Tiers() []Tier { return []Tier{TierFree, TierPro, TierBusiness} }

// ParseTier parses a stored plan string. Unknown values return ErrUnknownPlan.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return TierFree, fmt.Errorf("%w: %q", ErrUnknownPlan, s)
	}
	return t, nil
}

// Resolve maps a stored plan string to a tier. An unrecognized value resolves
// to TierFree, the most restrictive tier: a corrupted or future plan string
// never grants more than the free quotas. Callers that need to know about the
// fallback use ParseTier.
func Resolve(s string) Tier {
	t, err := ParseTier(s)
	if err != nil {
		return TierFree
	}
	return t
}

// LimitsFor returns the entitlement row for t, or the free row when t is
// not a known tier.
func LimitsFor(t Tier) Features {
	if f, ok := table[t]; ok {
		return f
	}
	return table[TierFree]
}

// UpgradeFor returns the cheapest tier above t whose cap for metric is
// higher than t's. ok is false when no tier raises it.
func UpgradeFor(t Tier, metric usage.Metric) (Tier, bool) {
	current, err := LimitsFor(t).LimitFor(metric)
	if err != nil {
		return "", false
	}
	above := false
	for _, candidate := range Tiers() {
		if candidate == t {
			above = true
			continue
		}
		if !above {
			continue
		}
		limit, _ := LimitsFor(candidate).LimitFor(metric)
		if limit.Greater(current) {
			return candidate, true
		}
	}
	return "", false
}
