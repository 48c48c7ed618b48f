package folio_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/folio"
	"github.com/xraph/folio/audit"
	"github.com/xraph/folio/document"
	"github.com/xraph/folio/sequence"
)

type jobRecorder struct {
	runs map[string]int64
}

func (*jobRecorder) Name() string { return "job-recorder" }

func (p *jobRecorder) OnJobCompleted(_ context.Context, job string, affected int64, _ time.Duration, _ error) error {
	p.runs[job] += affected
	return nil
}

func TestExpireQuotes(t *testing.T) {
	jobs := &jobRecorder{runs: map[string]int64{}}
	h := newHarness(t, nil, folio.WithPlugin(jobs))
	ctx := context.Background()

	due := march2025.Add(7 * 24 * time.Hour)
	sent := &document.Document{
		UserID:  h.user,
		Type:    sequence.TypeQuote,
		DueDate: &due,
		Lines: []document.Line{{
			Description: "Roof repair",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   folio.EUR(120000),
		}},
	}
	require.NoError(t, h.folio.CreateDocument(ctx, sent, h.actor()))
	_, err := h.folio.FinalizeDocument(ctx, sent.ID, h.actor())
	require.NoError(t, err)
	_, err = h.folio.SendDocument(ctx, sent.ID, h.actor())
	require.NoError(t, err)

	draft := &document.Document{UserID: h.user, Type: sequence.TypeQuote, DueDate: &due}
	require.NoError(t, h.folio.CreateDocument(ctx, draft, h.actor()))

	n, err := h.folio.ExpireQuotes(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	h.clock.Advance(8 * 24 * time.Hour)

	n, err = h.folio.ExpireQuotes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(1), jobs.runs[folio.JobQuoteExpiry])

	got, err := h.folio.GetDocument(ctx, sent.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusExpired, got.Status)

	untouched, err := h.folio.GetDocument(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusDraft, untouched.Status)

	history, err := h.folio.DocumentHistory(ctx, sent.ID, audit.ListOpts{Since: h.clock.Now()})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "system", history[0].PerformedBy)
	assert.Equal(t, []audit.Change{{Field: "status", Old: "sent", New: "expired"}}, history[0].Changes)
}

func TestPurgeAuditEntries(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	old := h.newDocument(t, sequence.TypeInvoice)
	h.clock.Advance(40 * 24 * time.Hour)
	recent := h.newDocument(t, sequence.TypeInvoice)

	n, err := h.folio.PurgeAuditEntries(ctx, h.clock.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	gone, err := h.folio.DocumentHistory(ctx, old.ID, audit.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, gone)

	kept, err := h.folio.DocumentHistory(ctx, recent.ID, audit.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestStartStopWithJobs(t *testing.T) {
	cfg := folio.DefaultJobsConfig()
	h := newHarness(t, nil, folio.WithJobs(cfg))
	require.NoError(t, h.folio.Ping(context.Background()))

	bad := folio.New(h.store, folio.WithJobs(folio.JobsConfig{QuoteExpirySchedule: "every tuesday"}))
	assert.Error(t, bad.Start(context.Background()))
}
