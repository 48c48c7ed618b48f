package user

import (
	"context"
	"time"

	"github.com/xraph/folio/subscription"
)

type Store interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, userID string) (*User, error)
	UpdateSubscription(ctx context.Context, userID string, sub subscription.Subscription, at time.Time) error
}
