// Package subscription models the plan a user pays for, as last reported by
// the payment processor.
package subscription

import (
	"time"

	"github.com/xraph/folio/plan"
)

type Status string

const (
	StatusActive     Status = "active"
	StatusTrialing   Status = "trialing"
	StatusPastDue    Status = "past_due"
	StatusCanceled   Status = "canceled"
	StatusIncomplete Status = "incomplete"
	StatusUnpaid     Status = "unpaid"
)

// Subscription is embedded on the user record. Plan is kept as the raw
// string received from the processor so an unknown value can be detected
// and logged instead of silently coerced on write.
type Subscription struct {
	Plan                   string     `json:"plan"`
	Status                 Status     `json:"status"`
	ProviderCustomerID     string     `json:"provider_customer_id,omitempty"`
	ProviderSubscriptionID string     `json:"provider_subscription_id,omitempty"`
	CurrentPeriodEnd       *time.Time `json:"current_period_end,omitempty"`
	CanceledAt             *time.Time `json:"canceled_at,omitempty"`
}

// Free is the subscription every user starts with.
func Free() Subscription {
	return Subscription{Plan: string(plan.TierFree), Status: StatusActive}
}

// EffectiveTier is the tier whose quotas apply at now.
//
// Active, trialing and past-due subscriptions keep their plan (past-due is
// the processor's retry window). A canceled subscription keeps its plan
// until CurrentPeriodEnd, then drops to free. Any other status is free.
// An unrecognized plan string resolves to free and returns
// plan.ErrUnknownPlan alongside it.
func (s Subscription) EffectiveTier(now time.Time) (plan.Tier, error) {
	tier, err := plan.ParseTier(s.Plan)
	if err != nil {
		return plan.TierFree, err
	}
	switch s.Status {
	case StatusActive, StatusTrialing, StatusPastDue:
		return tier, nil
	case StatusCanceled:
		if s.CurrentPeriodEnd != nil && now.Before(*s.CurrentPeriodEnd) {
			return tier, nil
		}
	}
	return plan.TierFree, nil
}
