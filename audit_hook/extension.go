// Package audithook writes document audit entries on a best-effort basis.
//
// Record never returns an error. A failed or panicking write is logged at
// Warn and reported to the failure handler, and the business operation that
// triggered it carries on: the audit log is not part of the document write
// and cannot roll it back.
package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/folio/audit"
	"github.com/xraph/folio/id"
)

// DefaultTimeout bounds a single audit write.
const DefaultTimeout = 5 * time.Second

// Recorder is the sink audit entries are written to. The engine's default
// recorder is the audit store.
type Recorder interface {
	Record(ctx context.Context, entry *audit.Entry) error
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, entry *audit.Entry) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, entry *audit.Entry) error {
	return f(ctx, entry)
}

// StoreRecorder adapts an audit.Store.
func StoreRecorder(s audit.Store) Recorder {
	return RecorderFunc(s.AppendAudit)
}

// Tee writes every entry to all recorders and joins their errors.
func Tee(recorders ...Recorder) Recorder {
	return RecorderFunc(func(ctx context.Context, entry *audit.Entry) error {
		var errs []error
		for _, r := range recorders {
			if err := r.Record(ctx, entry); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// FailureHandler observes entries that could not be written.
type FailureHandler func(ctx context.Context, entry *audit.Entry, err error)

// Trail stamps and writes audit entries.
type Trail struct {
	recorder  Recorder
	enabled   map[audit.Action]bool // nil = all enabled
	logger    *slog.Logger
	clock     clockwork.Clock
	timeout   time.Duration
	onFailure FailureHandler
}

// New creates a Trail that writes through the provided Recorder.
func New(r Recorder, opts ...Option) *Trail {
	t := &Trail{
		recorder: r,
		logger:   slog.Default(),
		clock:    clockwork.NewRealClock(),
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record assigns the entry ID and timestamp when missing and writes it.
// It reports whether the entry was written.
func (t *Trail) Record(ctx context.Context, entry *audit.Entry) (written bool) {
	if entry == nil {
		return false
	}
	if !entry.Action.Valid() {
		t.logger.Warn("audit_hook: dropping entry with unknown action",
			"action", entry.Action,
			"document_id", entry.DocumentID.String(),
		)
		return false
	}
	if t.enabled != nil && !t.enabled[entry.Action] {
		return false
	}

	if entry.ID.IsNil() {
		entry.ID = id.NewAuditEntryID()
	}
	if entry.PerformedAt.IsZero() {
		entry.PerformedAt = t.clock.Now().UTC()
	}

	err := t.write(ctx, entry)
	if err == nil {
		return true
	}

	t.logger.Warn("audit_hook: failed to record audit entry",
		"action", entry.Action,
		"document_id", entry.DocumentID.String(),
		"user_id", entry.UserID,
		"error", err,
	)
	if t.onFailure != nil {
		t.onFailure(ctx, entry, err)
	}
	return false
}

func (t *Trail) write(ctx context.Context, entry *audit.Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("audit recorder panic: %v", r)
		}
	}()

	// The write outlives a canceled request context: the business operation
	// has already happened and its record is still wanted.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
	defer cancel()

	return t.recorder.Record(wctx, entry)
}
