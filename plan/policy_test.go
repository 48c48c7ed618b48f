package plan

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/xraph/folio/usage"
)

func TestLimitsFor(t *testing.T) {
	tests := []struct {
		tier     Tier
		metric   usage.Metric
		want     Limit
		esign    bool
		csv      bool
		ocr      OCRTier
		priceEUR int64
	}{
		{TierFree, usage.MetricInvoices, 5, false, false, OCRNone, 0},
		{TierPro, usage.MetricInvoices, Unlimited, false, true, OCRBasic, 1490},
		{TierPro, usage.MetricExpenses, 100, false, true, OCRBasic, 1490},
		{TierBusiness, usage.MetricClients, Unlimited, true, true, OCRAdvanced, 2990},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier)+"/"+string(tt.metric), func(t *testing.T) {
			f := LimitsFor(tt.tier)
			got, err := f.LimitFor(tt.metric)
			if err != nil {
				t.Fatalf("LimitFor: %v", err)
			}
			if got != tt.want {
				t.Errorf("limit: got %v, want %v", got, tt.want)
			}
			if f.ESignature != tt.esign || f.CSVExport != tt.csv || f.OCR != tt.ocr {
				t.Errorf("flags: %+v", f)
			}
			if f.MonthlyPrice.Amount != tt.priceEUR {
				t.Errorf("price: %v", f.MonthlyPrice)
			}
		})
	}
}

func TestUnknownTierFallsBackToFree(t *testing.T) {
	if _, err := ParseTier("enterprise"); !errors.Is(err, ErrUnknownPlan) {
		t.Errorf("expected ErrUnknownPlan, got %v", err)
	}
	if got := Resolve("enterprise"); got != TierFree {
		t.Errorf("Resolve: got %q", got)
	}
	if got := Resolve(" PRO "); got != TierPro {
		t.Errorf("Resolve: got %q", got)
	}
	if got := LimitsFor("gold"); got.Tier != TierFree {
		t.Errorf("LimitsFor unknown: got %q", got.Tier)
	}
}

func TestLimitAllows(t *testing.T) {
	tests := []struct {
		limit   Limit
		current int64
		want    bool
	}{
		{5, 4, true},
		{5, 5, false},
		{5, 6, false},
		{0, 0, false},
		{Unlimited, 1 << 40, true},
	}
	for _, tt := range tests {
		if got := tt.limit.Allows(tt.current); got != tt.want {
			t.Errorf("Limit(%v).Allows(%d) = %v", tt.limit, tt.current, got)
		}
	}
}

func TestUpgradeFor(t *testing.T) {
	tests := []struct {
		tier   Tier
		metric usage.Metric
		want   Tier
		ok     bool
	}{
		{TierFree, usage.MetricInvoices, TierPro, true},
		{TierFree, usage.MetricExpenses, TierPro, true},
		{TierPro, usage.MetricExpenses, TierBusiness, true},
		{TierPro, usage.MetricInvoices, "", false},
		{TierBusiness, usage.MetricQuotes, "", false},
	}
	for _, tt := range tests {
		got, ok := UpgradeFor(tt.tier, tt.metric)
		if got != tt.want || ok != tt.ok {
			t.Errorf("UpgradeFor(%s, %s) = %q, %v", tt.tier, tt.metric, got, ok)
		}
	}
}

func TestLimitJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		A Limit `json:"a"`
		B Limit `json:"b"`
	}{5, Unlimited})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"a":5,"b":"unlimited"}` {
		t.Errorf("got %s", data)
	}

	var back struct {
		A Limit `json:"a"`
		B Limit `json:"b"`
	}
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.A != 5 || !back.B.IsUnlimited() {
		t.Errorf("round trip: %+v", back)
	}
}
