// Package usage defines the per-user usage counters checked against plan
// quotas, and the monthly period they are counted in.
package usage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Metric names a quota-tracked counter.
type Metric string

const (
	MetricInvoices Metric = "invoices"
	MetricQuotes   Metric = "quotes"
	MetricExpenses Metric = "expenses"
	MetricClients  Metric = "clients"
)

// Unlimited is the limit value that disables the quota guard.
const Unlimited int64 = -1

var ErrInvalidMetric = errors.New("folio: invalid usage metric")

// Metrics lists every metric in a stable order.
func Metrics() []Metric {
	return []Metric{MetricInvoices, MetricQuotes, MetricExpenses, MetricClients}
}

// PeriodMetrics lists the metrics that reset on period rollover.
func PeriodMetrics() []Metric {
	return []Metric{MetricInvoices, MetricQuotes, MetricExpenses}
}

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	switch m {
	case MetricInvoices, MetricQuotes, MetricExpenses, MetricClients:
		return true
	}
	return false
}

// PeriodScoped reports whether m counts per month. Clients are a live count.
func (m Metric) PeriodScoped() bool {
	return m.Valid() && m != MetricClients
}

// Field is the stored column or document field that holds m.
func (m Metric) Field() string {
	switch m {
	case MetricInvoices:
		return "invoices_this_month"
	case MetricQuotes:
		return "quotes_this_month"
	case MetricExpenses:
		return "expenses_this_month"
	case MetricClients:
		return "clients_count"
	}
	return ""
}

// Label is the human form used in quota messages.
func (m Metric) Label() string {
	if m.PeriodScoped() {
		return string(m) + " this month"
	}
	return string(m)
}

// ParseMetric parses a metric name.
func ParseMetric(s string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMetric, s)
	}
	return m, nil
}

// PeriodStart returns the first instant (UTC) of the month containing t.
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Counters is the usage sub-record embedded on every user.
type Counters struct {
	InvoicesThisMonth int64     `json:"invoices_this_month"`
	QuotesThisMonth   int64     `json:"quotes_this_month"`
	ExpensesThisMonth int64     `json:"expenses_this_month"`
	ClientsCount      int64     `json:"clients_count"`
	LastResetDate     time.Time `json:"last_reset_date"`
}

// NewCounters returns zeroed counters for a period starting at PeriodStart(now).
func NewCounters(now time.Time) Counters {
	return Counters{LastResetDate: PeriodStart(now)}
}

// Get returns the value of m.
func (c Counters) Get(m Metric) int64 {
	switch m {
	case MetricInvoices:
		return c.InvoicesThisMonth
	case MetricQuotes:
		return c.QuotesThisMonth
	case MetricExpenses:
		return c.ExpensesThisMonth
	case MetricClients:
		return c.ClientsCount
	}
	return 0
}

// Set assigns the value of m.
func (c *Counters) Set(m Metric, v int64) {
	switch m {
	case MetricInvoices:
		c.InvoicesThisMonth = v
	case MetricQuotes:
		c.QuotesThisMonth = v
	case MetricExpenses:
		c.ExpensesThisMonth = v
	case MetricClients:
		c.ClientsCount = v
	}
}

// Stale reports whether the counters belong to a period before periodStart.
// A LastResetDate after periodStart (clock skew between writers) is not
// stale, so rollover never moves the period backwards.
func (c Counters) Stale(periodStart time.Time) bool {
	return c.LastResetDate.Before(periodStart)
}

// RolledOver returns the counters as they read in the period starting at
// periodStart: period counters are zeroed when stale, ClientsCount is kept.
func (c Counters) RolledOver(periodStart time.Time) Counters {
	if !c.Stale(periodStart) {
		return c
	}
	c.InvoicesThisMonth = 0
	c.QuotesThisMonth = 0
	c.ExpensesThisMonth = 0
	c.LastResetDate = periodStart
	return c
}

// Reservation is the outcome of an atomic check-and-increment.
// Current is the counter value after the operation.
type Reservation struct {
	Allowed bool  `json:"allowed"`
	Current int64 `json:"current"`
}
