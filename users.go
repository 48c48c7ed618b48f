package folio

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/xraph/folio/id"
	"github.com/xraph/folio/plan"
	"github.com/xraph/folio/sequence"
	"github.com/xraph/folio/subscription"
	"github.com/xraph/folio/types"
	"github.com/xraph/folio/usage"
	"github.com/xraph/folio/user"
)

// ──────────────────────────────────────────────────
// Users and subscriptions
// ──────────────────────────────────────────────────

// RegisterUser creates a user on the free plan with zeroed counters for the
// current period.
func (f *Folio) RegisterUser(ctx context.Context, email, name string) (*user.User, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: email %q", ErrInvalidInput, email)
	}

	now := f.now()
	u := &user.User{
		Entity:       types.NewEntity(now),
		ID:           id.NewUserID().String(),
		Email:        strings.ToLower(email),
		Name:         strings.TrimSpace(name),
		Subscription: subscription.Free(),
		Usage:        usage.NewCounters(now),
	}

	if err := f.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	f.logger.Info("user registered", "user_id", u.ID)
	return u, nil
}

// GetUser retrieves a user by ID.
func (f *Folio) GetUser(ctx context.Context, userID string) (*user.User, error) {
	return f.store.GetUser(ctx, userID)
}

// UpdateSubscription replaces the user's subscription with what the payment
// processor last reported. An unrecognized plan is stored as received and
// logged; quota checks treat it as free until it is corrected.
func (f *Folio) UpdateSubscription(ctx context.Context, userID string, sub subscription.Subscription) error {
	if sub.Status == "" {
		return fmt.Errorf("%w: subscription status is required", ErrInvalidInput)
	}
	if _, err := plan.ParseTier(sub.Plan); err != nil {
		f.logger.Warn("subscription references unknown plan",
			"user_id", userID,
			"plan", sub.Plan,
			"error", err,
		)
	}

	if err := f.store.UpdateSubscription(ctx, userID, sub, f.now()); err != nil {
		return err
	}

	f.logger.Info("subscription updated",
		"user_id", userID,
		"plan", sub.Plan,
		"status", sub.Status,
	)
	return nil
}

// SetNumberPrefix changes the prefix of the user's counter for t. Numbers
// already issued keep their prefix.
func (f *Folio) SetNumberPrefix(ctx context.Context, userID string, t sequence.DocumentType, prefix string) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDocumentType, t)
	}
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if err := sequence.ValidatePrefix(prefix); err != nil {
		return err
	}
	return f.store.SetPrefix(ctx, userID, t, prefix)
}

// GetCounter returns the numbering state of the user's counter for t.
func (f *Folio) GetCounter(ctx context.Context, userID string, t sequence.DocumentType) (*sequence.Counter, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDocumentType, t)
	}
	return f.store.GetCounter(ctx, userID, t)
}

// effectiveTier resolves the tier whose limits apply to u now.
func (f *Folio) effectiveTier(u *user.User) plan.Tier {
	tier, err := u.Subscription.EffectiveTier(f.now())
	if errors.Is(err, plan.ErrUnknownPlan) {
		f.logger.Warn("unknown plan on subscription, applying free limits",
			"user_id", u.ID,
			"plan", u.Subscription.Plan,
		)
	}
	return tier
}
