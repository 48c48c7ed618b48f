package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in the smallest currency unit. Stored amounts are
// integers; fractional quantities and VAT rates go through decimal and are
// rounded half away from zero back to the minor unit.
//
//   - EUR(4990) = 49.90 EUR
//   - Zero("chf") = 0.00 CHF
type Money struct {
	Amount   int64  `json:"amount"`   // Minor units (cents)
	Currency string `json:"currency"` // ISO 4217, lowercase
}

// DefaultCurrency is used when a document does not name one.
const DefaultCurrency = "eur"

// EUR creates a Money value in euro cents.
func EUR(cents int64) Money { return Money{Amount: cents, Currency: "eur"} }

// Zero returns a zero amount in currency.
func Zero(currency string) Money { return Money{Currency: normalize(currency)} }

// FromDecimal converts a major-unit decimal ("49.90") into Money.
func FromDecimal(d decimal.Decimal, currency string) Money {
	currency = normalize(currency)
	minor := d.Shift(int32(currencyDecimals(currency))).Round(0)
	return Money{Amount: minor.IntPart(), Currency: currency}
}

// Add adds two amounts. Panics if currencies differ.
func (m Money) Add(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}
}

// Subtract subtracts other. Panics if currencies differ.
func (m Money) Subtract(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}
}

// MulDecimal multiplies by a decimal factor and rounds to the minor unit.
func (m Money) MulDecimal(factor decimal.Decimal) Money {
	v := decimal.NewFromInt(m.Amount).Mul(factor).Round(0)
	return Money{Amount: v.IntPart(), Currency: m.Currency}
}

// Percent returns rate percent of m, e.g. Percent(20) for 20% VAT.
func (m Money) Percent(rate decimal.Decimal) Money {
	return m.MulDecimal(rate.Div(decimal.NewFromInt(100)))
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Equal reports whether amount and currency match.
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -int32(currencyDecimals(m.Currency)))
}

// String formats the amount as "49.90 EUR".
func (m Money) String() string {
	return m.Decimal().StringFixed(int32(currencyDecimals(m.Currency))) + " " + strings.ToUpper(m.Currency)
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.String(),
	})
}

// UnmarshalJSON accepts the form produced by MarshalJSON and ignores display.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Amount = raw.Amount
	m.Currency = normalize(raw.Currency)
	return nil
}

// Sum adds values in currency. All values must share it.
func Sum(currency string, values ...Money) Money {
	total := Zero(currency)
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

func (m Money) assertSameCurrency(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
	}
}

func normalize(currency string) string {
	if currency == "" {
		return DefaultCurrency
	}
	return strings.ToLower(currency)
}

// currencyDecimals returns the number of minor-unit digits for a currency.
func currencyDecimals(currency string) int {
	switch strings.ToLower(currency) {
	case "jpy", "krw", "xof", "xpf", "clp":
		return 0
	default:
		return 2
	}
}
