package usage

import (
	"context"
	"time"
)

// Store mutates the usage counters embedded on user records. Each method is
// one atomic operation per user: the period rollover and the guarded
// increment may be separate statements, but the rollover is idempotent and
// the increment is a single conditional update.
type Store interface {
	// ReserveUsage rolls the counters over to periodStart if they are
	// stale, then increments metric if its value is below limit (or limit is
	// Unlimited). A denied reservation is not an error.
	ReserveUsage(ctx context.Context, userID string, metric Metric, limit int64, periodStart time.Time) (*Reservation, error)

	// ReleaseUsage rolls over like ReserveUsage, then decrements metric,
	// clamping at zero. It returns the value after the operation.
	ReleaseUsage(ctx context.Context, userID string, metric Metric, periodStart time.Time) (int64, error)

	// AdjustClients adds delta to the live client count, clamping at zero.
	// A positive delta is applied only while count+delta stays within limit
	// (or limit is Unlimited); otherwise nothing changes and the reservation
	// is denied with the current count. A negative delta is never denied.
	// Client counts have no period, so there is no rollover.
	AdjustClients(ctx context.Context, userID string, delta, limit int64) (*Reservation, error)

	// GetUsage returns the stored counters without applying rollover.
	GetUsage(ctx context.Context, userID string) (*Counters, error)
}
