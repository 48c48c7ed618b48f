package usage

import (
	"errors"
	"testing"
	"time"
)

func TestPeriodStart(t *testing.T) {
	tests := []struct {
		in   time.Time
		want time.Time
	}{
		{time.Date(2025, 3, 17, 15, 4, 5, 0, time.UTC), time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		{time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		// 00:30 on the 1st in UTC+2 is still the previous month in UTC.
		{time.Date(2025, 4, 1, 0, 30, 0, 0, time.FixedZone("CEST", 2*3600)), time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := PeriodStart(tt.in); !got.Equal(tt.want) {
			t.Errorf("PeriodStart(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRolledOverKeepsClients(t *testing.T) {
	c := Counters{
		InvoicesThisMonth: 5,
		QuotesThisMonth:   3,
		ExpensesThisMonth: 2,
		ClientsCount:      9,
		LastResetDate:     time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	march := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	got := c.RolledOver(march)
	if got.InvoicesThisMonth != 0 || got.QuotesThisMonth != 0 || got.ExpensesThisMonth != 0 {
		t.Errorf("period counters not reset: %+v", got)
	}
	if got.ClientsCount != 9 {
		t.Errorf("clients count changed: %d", got.ClientsCount)
	}
	if !got.LastResetDate.Equal(march) {
		t.Errorf("last reset date: %v", got.LastResetDate)
	}

	// Same period: unchanged.
	if same := got.RolledOver(march); same != got {
		t.Errorf("rollover within the period changed counters: %+v", same)
	}

	// A later stored period is never moved backwards.
	if back := got.RolledOver(march.AddDate(0, -1, 0)); back != got {
		t.Errorf("rollover moved period backwards: %+v", back)
	}
}

func TestGetSet(t *testing.T) {
	var c Counters
	for i, m := range Metrics() {
		c.Set(m, int64(i+1))
	}
	for i, m := range Metrics() {
		if c.Get(m) != int64(i+1) {
			t.Errorf("%s: got %d", m, c.Get(m))
		}
	}
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric(" Invoices ")
	if err != nil || m != MetricInvoices {
		t.Fatalf("ParseMetric: %q %v", m, err)
	}
	if _, err := ParseMetric("seats"); !errors.Is(err, ErrInvalidMetric) {
		t.Errorf("expected ErrInvalidMetric, got %v", err)
	}
	if MetricClients.PeriodScoped() {
		t.Error("clients must not be period scoped")
	}
	if MetricQuotes.Label() != "quotes this month" || MetricClients.Label() != "clients" {
		t.Error("unexpected labels")
	}
}
