package subscription

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/folio/plan"
)

func TestEffectiveTier(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	later := now.Add(72 * time.Hour)
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name string
		sub  Subscription
		want plan.Tier
	}{
		{"free default", Free(), plan.TierFree},
		{"active pro", Subscription{Plan: "pro", Status: StatusActive}, plan.TierPro},
		{"trialing business", Subscription{Plan: "business", Status: StatusTrialing}, plan.TierBusiness},
		{"past due keeps plan", Subscription{Plan: "pro", Status: StatusPastDue}, plan.TierPro},
		{"canceled within period", Subscription{Plan: "pro", Status: StatusCanceled, CurrentPeriodEnd: &later}, plan.TierPro},
		{"canceled after period", Subscription{Plan: "pro", Status: StatusCanceled, CurrentPeriodEnd: &earlier}, plan.TierFree},
		{"canceled without period", Subscription{Plan: "pro", Status: StatusCanceled}, plan.TierFree},
		{"unpaid", Subscription{Plan: "business", Status: StatusUnpaid}, plan.TierFree},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.sub.EffectiveTier(now)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEffectiveTierUnknownPlan(t *testing.T) {
	got, err := Subscription{Plan: "platinum", Status: StatusActive}.EffectiveTier(time.Now())
	if !errors.Is(err, plan.ErrUnknownPlan) {
		t.Errorf("expected ErrUnknownPlan, got %v", err)
	}
	if got != plan.TierFree {
		t.Errorf("got %q, want free", got)
	}
}
