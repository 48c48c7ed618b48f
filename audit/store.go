package audit

import (
	"context"
	"time"

	"github.com/xraph/folio/id"
)

// ListOpts filters audit queries. Since is inclusive, Until exclusive.
// Results are ordered by PerformedAt ascending.
type ListOpts struct {
	Action Action
	Since  time.Time
	Until  time.Time
	Limit  int
	Offset int
}

// Store appends and queries audit entries. Entries are never updated;
// PurgeAudit is the retention job's only deletion path.
type Store interface {
	AppendAudit(ctx context.Context, e *Entry) error
	ListDocumentAudit(ctx context.Context, docID id.DocumentID, opts ListOpts) ([]*Entry, error)
	ListUserAudit(ctx context.Context, userID string, opts ListOpts) ([]*Entry, error)
	PurgeAudit(ctx context.Context, before time.Time) (int64, error)
}
