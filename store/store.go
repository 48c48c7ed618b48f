// Package store defines the unified storage interface every Folio backend
// implements.
package store

import (
	"context"

	"github.com/xraph/folio/audit"
	"github.com/xraph/folio/document"
	"github.com/xraph/folio/sequence"
	"github.com/xraph/folio/usage"
	"github.com/xraph/folio/user"
)

// Store is the unified storage interface for all Folio entities.
//
// Counter methods (sequence and usage) must each be a single atomic
// operation in the backing store so that concurrent requests from any number
// of processes never issue a duplicate number or exceed a limit.
type Store interface {
	user.Store
	sequence.Store
	usage.Store
	document.Store
	audit.Store

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
