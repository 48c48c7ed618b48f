package document

import (
	"context"
	"time"

	"github.com/xraph/folio/id"
	"github.com/xraph/folio/sequence"
)

// ListOpts filters ListDocuments. Results are newest first.
type ListOpts struct {
	Type   sequence.DocumentType
	Status Status
	Limit  int
	Offset int
}

type Store interface {
	CreateDocument(ctx context.Context, d *Document) error
	GetDocument(ctx context.Context, docID id.DocumentID) (*Document, error)
	ListDocuments(ctx context.Context, userID string, opts ListOpts) ([]*Document, error)

	// ListDueDocuments returns documents of type t in status whose due date
	// is before the given time, across all users, oldest due first.
	ListDueDocuments(ctx context.Context, t sequence.DocumentType, status Status, before time.Time, limit int) ([]*Document, error)

	// UpdateDocument replaces the stored document only if its stored status
	// is still expected. A mismatch returns ErrConcurrentModification.
	UpdateDocument(ctx context.Context, d *Document, expected Status) error

	// DeleteDocument removes the document only if its stored status is
	// still expected.
	DeleteDocument(ctx context.Context, docID id.DocumentID, expected Status) error
}
