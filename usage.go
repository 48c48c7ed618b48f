package folio

import (
	"context"
	"fmt"

	"github.com/xraph/folio/entitlement"
	"github.com/xraph/folio/plan"
	"github.com/xraph/folio/sequence"
	"github.com/xraph/folio/usage"
)

// ──────────────────────────────────────────────────
// Usage and quotas
// ──────────────────────────────────────────────────

// CheckAndReserve atomically checks the user's counter for metric against
// their plan and, if it is below the limit, increments it. A denial is a
// result with Allowed false, not an error.
//
// Period counters from an earlier month are rolled over first. The client
// count has no period: reserving a client is a guarded increment of the
// live count.
func (f *Folio) CheckAndReserve(ctx context.Context, userID string, metric usage.Metric) (*entitlement.Result, error) {
	if !metric.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMetric, metric)
	}
	return f.reserve(ctx, userID, metric, 1)
}

// reserve claims n units of metric under the user's plan limit.
func (f *Folio) reserve(ctx context.Context, userID string, metric usage.Metric, n int64) (*entitlement.Result, error) {
	u, err := f.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	tier := f.effectiveTier(u)
	limit, err := plan.LimitsFor(tier).LimitFor(metric)
	if err != nil {
		return nil, err
	}

	periodStart := usage.PeriodStart(f.now())

	var res *usage.Reservation
	err = f.retry(ctx, "reserve_usage", func() error {
		var err error
		if metric.PeriodScoped() {
			res, err = f.store.ReserveUsage(ctx, userID, metric, int64(limit), periodStart)
		} else {
			res, err = f.store.AdjustClients(ctx, userID, n, int64(limit))
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &entitlement.Result{
		Allowed: res.Allowed,
		Metric:  metric,
		Plan:    tier,
		Current: res.Current,
		Limit:   limit,
	}

	if !result.Allowed {
		result.Reason = entitlement.DenialReason(tier, metric, res.Current, limit)
		f.plugins.EmitQuotaExceeded(ctx, userID, result)
		f.logger.Info("quota exceeded",
			"user_id", userID,
			"metric", metric,
			"plan", tier,
			"current", res.Current,
			"limit", limit,
		)
		return result, nil
	}

	f.plugins.EmitUsageReserved(ctx, userID, result)
	return result, nil
}

// Release gives back one unit of metric, typically after the document or
// client it was reserved for could not be created. The counter never goes
// below zero.
func (f *Folio) Release(ctx context.Context, userID string, metric usage.Metric) (int64, error) {
	if !metric.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMetric, metric)
	}

	periodStart := usage.PeriodStart(f.now())

	var current int64
	err := f.retry(ctx, "release_usage", func() error {
		if !metric.PeriodScoped() {
			res, err := f.store.AdjustClients(ctx, userID, -1, usage.Unlimited)
			if err != nil {
				return err
			}
			current = res.Current
			return nil
		}
		var err error
		current, err = f.store.ReleaseUsage(ctx, userID, metric, periodStart)
		return err
	})
	if err != nil {
		return 0, err
	}

	f.plugins.EmitUsageReleased(ctx, userID, metric, current)
	return current, nil
}

// IncrementClientCount adds delta (negative on client deletion) to the
// user's live client count, clamping at zero. A positive delta is checked
// against the plan's client limit in the same atomic write; when it would
// pass the limit nothing changes and a *QuotaExceededError is returned
// with the current count.
func (f *Folio) IncrementClientCount(ctx context.Context, userID string, delta int64) (int64, error) {
	if delta > 0 {
		r, err := f.reserve(ctx, userID, usage.MetricClients, delta)
		if err != nil {
			return 0, err
		}
		if !r.Allowed {
			return r.Current, newQuotaExceededError(r)
		}
		return r.Current, nil
	}

	var current int64
	err := f.retry(ctx, "adjust_clients", func() error {
		res, err := f.store.AdjustClients(ctx, userID, delta, usage.Unlimited)
		if err != nil {
			return err
		}
		current = res.Current
		return nil
	})
	return current, err
}

// CheckUsage reports whether the user could create one more of metric,
// without reserving anything.
func (f *Folio) CheckUsage(ctx context.Context, userID string, metric usage.Metric) (*entitlement.Result, error) {
	if !metric.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMetric, metric)
	}

	u, err := f.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	counters := u.Usage.RolledOver(usage.PeriodStart(f.now()))
	return entitlement.Evaluate(f.effectiveTier(u), metric, counters.Get(metric))
}

// GetUsage returns the user's counters as they read in the current period.
func (f *Folio) GetUsage(ctx context.Context, userID string) (*usage.Counters, error) {
	c, err := f.store.GetUsage(ctx, userID)
	if err != nil {
		return nil, err
	}
	rolled := c.RolledOver(usage.PeriodStart(f.now()))
	return &rolled, nil
}

// GetPlanFeatures returns the entitlement row for a stored plan string.
// Unknown strings get the free row.
func (f *Folio) GetPlanFeatures(tier string) plan.Features {
	t, err := plan.ParseTier(tier)
	if err != nil {
		f.logger.Warn("unknown plan, using free features", "plan", tier)
	}
	return plan.LimitsFor(t)
}

// metricFor is the quota a new document of type t counts against.
func metricFor(t sequence.DocumentType) usage.Metric {
	if t == sequence.TypeQuote {
		return usage.MetricQuotes
	}
	return usage.MetricInvoices
}
