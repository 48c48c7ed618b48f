// Package entitlement describes the answer to "may this user create one more
// of metric right now".
package entitlement

import (
	"fmt"

	"github.com/xraph/folio/plan"
	"github.com/xraph/folio/usage"
)

// Result is returned by usage checks and reservations. Current is the
// counter value the decision was taken against (after the increment for a
// granted reservation).
type Result struct {
	Allowed bool         `json:"allowed"`
	Metric  usage.Metric `json:"metric"`
	Plan    plan.Tier    `json:"plan"`
	Current int64        `json:"current"`
	Limit   plan.Limit   `json:"limit"`
	Reason  string       `json:"reason,omitempty"`
}

// Evaluate decides whether a counter at current may grow under tier.
func Evaluate(tier plan.Tier, metric usage.Metric, current int64) (*Result, error) {
	limit, err := plan.LimitsFor(tier).LimitFor(metric)
	if err != nil {
		return nil, err
	}
	r := &Result{
		Allowed: limit.Allows(current),
		Metric:  metric,
		Plan:    tier,
		Current: current,
		Limit:   limit,
	}
	if !r.Allowed {
		r.Reason = DenialReason(tier, metric, current, limit)
	}
	return r, nil
}

// Unlimited reports whether the metric is uncapped on the plan.
func (r Result) Unlimited() bool { return r.Limit.IsUnlimited() }

// Remaining is how many more may be created, or -1 when unlimited.
func (r Result) Remaining() int64 {
	if r.Unlimited() {
		return -1
	}
	if rem := int64(r.Limit) - r.Current; rem > 0 {
		return rem
	}
	return 0
}

// DenialReason is the user-facing explanation for a denied check: which
// limit was hit and which plan lifts it.
func DenialReason(tier plan.Tier, metric usage.Metric, current int64, limit plan.Limit) string {
	msg := fmt.Sprintf("%d/%d %s on the %s plan", current, limit, metric.Label(), tier)
	if up, ok := plan.UpgradeFor(tier, metric); ok {
		upLimit, _ := plan.LimitsFor(up).LimitFor(metric)
		if upLimit.IsUnlimited() {
			return fmt.Sprintf("%s; upgrade to %s for unlimited %s", msg, up, metric)
		}
		return fmt.Sprintf("%s; upgrade to %s for up to %d %s", msg, up, upLimit, metric.Label())
	}
	return msg
}
