package audithook_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/folio/audit"
	audithook "github.com/xraph/folio/audit_hook"
	"github.com/xraph/folio/id"
)

type memRecorder struct {
	entries []*audit.Entry
	err     error
}

func (m *memRecorder) Record(_ context.Context, e *audit.Entry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func newEntry(action audit.Action) *audit.Entry {
	return audit.NewEntry(id.NewInvoiceID(), "usr_1", action, nil, audit.Actor{PerformedBy: "usr_1"})
}

func TestTrailStampsEntry(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC))
	rec := &memRecorder{}
	trail := audithook.New(rec, audithook.WithClock(clock))

	e := newEntry(audit.ActionCreated)
	require.True(t, trail.Record(context.Background(), e))

	require.Len(t, rec.entries, 1)
	assert.False(t, e.ID.IsNil())
	assert.Equal(t, id.PrefixAuditEntry, e.ID.Prefix())
	assert.Equal(t, clock.Now(), e.PerformedAt)
}

func TestTrailRecorderFailureIsSwallowed(t *testing.T) {
	rec := &memRecorder{err: errors.New("disk full")}

	var failed []*audit.Entry
	trail := audithook.New(rec, audithook.WithFailureHandler(func(_ context.Context, e *audit.Entry, err error) {
		assert.EqualError(t, err, "disk full")
		failed = append(failed, e)
	}))

	assert.False(t, trail.Record(context.Background(), newEntry(audit.ActionSent)))
	assert.Len(t, failed, 1)
}

func TestTrailRecorderPanicIsRecovered(t *testing.T) {
	var got error
	trail := audithook.New(
		audithook.RecorderFunc(func(context.Context, *audit.Entry) error { panic("boom") }),
		audithook.WithFailureHandler(func(_ context.Context, _ *audit.Entry, err error) { got = err }),
	)

	assert.NotPanics(t, func() {
		trail.Record(context.Background(), newEntry(audit.ActionUpdated))
	})
	require.Error(t, got)
	assert.Contains(t, got.Error(), "boom")
}

func TestTrailWritesAfterCancel(t *testing.T) {
	rec := &memRecorder{}
	trail := audithook.New(audithook.RecorderFunc(func(ctx context.Context, e *audit.Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return rec.Record(ctx, e)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.True(t, trail.Record(ctx, newEntry(audit.ActionFinalized)))
	assert.Len(t, rec.entries, 1)
}

func TestTrailActionFilters(t *testing.T) {
	tests := []struct {
		name   string
		opts   []audithook.Option
		action audit.Action
		want   bool
	}{
		{"default records all", nil, audit.ActionDeleted, true},
		{"enabled list", []audithook.Option{audithook.WithEnabledActions(audit.ActionCreated)}, audit.ActionSent, false},
		{"disabled list", []audithook.Option{audithook.WithDisabledActions(audit.ActionUpdated)}, audit.ActionUpdated, false},
		{"attempts cannot be disabled", []audithook.Option{audithook.WithDisabledActions(audit.ActionModificationAttempt)}, audit.ActionModificationAttempt, true},
		{"unknown action dropped", nil, audit.Action("voided"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &memRecorder{}
			trail := audithook.New(rec, tt.opts...)
			assert.Equal(t, tt.want, trail.Record(context.Background(), newEntry(tt.action)))
		})
	}
}

func TestTee(t *testing.T) {
	a := &memRecorder{}
	b := &memRecorder{err: errors.New("sink down")}
	c := &memRecorder{}

	err := audithook.Tee(a, b, c).Record(context.Background(), newEntry(audit.ActionCreated))
	require.Error(t, err)
	assert.Len(t, a.entries, 1)
	assert.Len(t, c.entries, 1)
}
