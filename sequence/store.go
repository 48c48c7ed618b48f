package sequence

import "context"

// Store persists numbering counters. Every implementation of NextNumber must
// be a single atomic read-modify-write against the backing store, safe across
// processes; no counter state may be cached in memory between calls.
type Store interface {
	// NextNumber issues the next number for (userID, t) in year. A counter
	// whose stored year differs restarts at 1. The counter is created on
	// first use with the type's default prefix.
	NextNumber(ctx context.Context, userID string, t DocumentType, year int) (Number, error)

	// GetCounter returns the stored counter, or the never-used state when no
	// number has been issued yet.
	GetCounter(ctx context.Context, userID string, t DocumentType) (*Counter, error)

	// SetPrefix changes the prefix used by subsequent allocations.
	SetPrefix(ctx context.Context, userID string, t DocumentType, prefix string) error
}
