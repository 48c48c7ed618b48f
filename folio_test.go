package folio_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/folio"
	"github.com/xraph/folio/audit"
	"github.com/xraph/folio/document"
	"github.com/xraph/folio/id"
	"github.com/xraph/folio/plan"
	"github.com/xraph/folio/sequence"
	"github.com/xraph/folio/store"
	"github.com/xraph/folio/store/memory"
	"github.com/xraph/folio/subscription"
	"github.com/xraph/folio/usage"
)

var march2025 = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

type harness struct {
	folio *folio.Folio
	clock *clockwork.FakeClock
	store store.Store
	user  string
}

func newHarness(t *testing.T, s store.Store, opts ...folio.Option) *harness {
	t.Helper()
	return newHarnessAt(t, march2025, s, opts...)
}

func newHarnessAt(t *testing.T, at time.Time, s store.Store, opts ...folio.Option) *harness {
	t.Helper()

	if s == nil {
		s = memory.New()
	}
	clock := clockwork.NewFakeClockAt(at)
	f := folio.New(s, append([]folio.Option{folio.WithClock(clock)}, opts...)...)

	ctx := context.Background()
	require.NoError(t, f.Start(ctx))
	t.Cleanup(func() { _ = f.Stop() })

	u, err := f.RegisterUser(ctx, "owner@example.com", "Owner")
	require.NoError(t, err)

	return &harness{folio: f, clock: clock, store: s, user: u.ID}
}

func (h *harness) actor() audit.Actor {
	return audit.Actor{PerformedBy: h.user, IPAddress: "203.0.113.7"}
}

func (h *harness) upgrade(t *testing.T, tier plan.Tier) {
	t.Helper()
	require.NoError(t, h.folio.UpdateSubscription(context.Background(), h.user, subscription.Subscription{
		Plan:   string(tier),
		Status: subscription.StatusActive,
	}))
}

func (h *harness) newDocument(t *testing.T, typ sequence.DocumentType) *document.Document {
	t.Helper()
	d := &document.Document{
		UserID:   h.user,
		Type:     typ,
		ClientID: "client_1",
		Lines: []document.Line{{
			Description: "Site visit",
			Quantity:    decimal.NewFromInt(2),
			UnitPrice:   folio.EUR(7500),
			VATRate:     decimal.NewFromInt(20),
		}},
	}
	require.NoError(t, h.folio.CreateDocument(context.Background(), d, h.actor()))
	return d
}

// ──────────────────────────────────────────────────
// Numbering
// ──────────────────────────────────────────────────

func TestAllocateNumberConcurrentIsUniqueAndGapless(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	const n = 100
	numbers := make([]string, n)
	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			num, err := h.folio.AllocateInvoiceNumber(ctx, h.user)
			numbers[i] = num
			return err
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[string]bool, n)
	for _, num := range numbers {
		assert.False(t, seen[num], "duplicate number %s", num)
		seen[num] = true
	}
	for i := 1; i <= n; i++ {
		assert.True(t, seen[fmt.Sprintf("FACT-2025-%04d", i)], "missing number %d", i)
	}
}

func TestAllocateNumberMonotonic(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	prev := 0
	for range 20 {
		n, err := h.folio.AllocateNumber(ctx, h.user, sequence.TypeQuote)
		require.NoError(t, err)
		assert.Greater(t, n.Value, prev)
		assert.Equal(t, "DEVIS", n.Prefix)
		prev = n.Value
	}
}

func TestAllocateNumberYearRollover(t *testing.T) {
	h := newHarnessAt(t, time.Date(2024, 11, 20, 8, 0, 0, 0, time.UTC), nil)
	ctx := context.Background()

	for range 6 {
		_, err := h.folio.AllocateQuoteNumber(ctx, h.user)
		require.NoError(t, err)
	}
	c, err := h.folio.GetCounter(ctx, h.user, sequence.TypeQuote)
	require.NoError(t, err)
	assert.Equal(t, 2024, c.Year)
	assert.Equal(t, 7, c.NextNumber)

	h.clock.Advance(60 * 24 * time.Hour) // January 2025
	num, err := h.folio.AllocateQuoteNumber(ctx, h.user)
	require.NoError(t, err)
	assert.Equal(t, "DEVIS-2025-0001", num)

	c, err = h.folio.GetCounter(ctx, h.user, sequence.TypeQuote)
	require.NoError(t, err)
	assert.Equal(t, 2025, c.Year)
	assert.Equal(t, 2, c.NextNumber)
}

func TestAllocateNumberLaggingClockAcrossNewYear(t *testing.T) {
	h := newHarnessAt(t, time.Date(2026, 1, 1, 0, 0, 5, 0, time.UTC), nil)
	ctx := context.Background()

	// A second process on the same store whose clock is ten seconds behind.
	lagging := folio.New(h.store, folio.WithClock(clockwork.NewFakeClockAt(time.Date(2025, 12, 31, 23, 59, 55, 0, time.UTC))))

	allocators := []*folio.Folio{h.folio, lagging, h.folio, lagging, h.folio}
	seen := make(map[string]bool, len(allocators))
	for i, f := range allocators {
		num, err := f.AllocateInvoiceNumber(ctx, h.user)
		require.NoError(t, err)
		assert.False(t, seen[num], "duplicate number %s", num)
		seen[num] = true
		assert.Equal(t, fmt.Sprintf("FACT-2026-%04d", i+1), num)
	}

	c, err := h.folio.GetCounter(ctx, h.user, sequence.TypeInvoice)
	require.NoError(t, err)
	assert.Equal(t, 2026, c.Year)
	assert.Equal(t, 6, c.NextNumber)
}

func TestAllocateNumberCountersAreIndependent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	other, err := h.folio.RegisterUser(ctx, "other@example.com", "Other")
	require.NoError(t, err)

	a, err := h.folio.AllocateInvoiceNumber(ctx, h.user)
	require.NoError(t, err)
	b, err := h.folio.AllocateQuoteNumber(ctx, h.user)
	require.NoError(t, err)
	c, err := h.folio.AllocateInvoiceNumber(ctx, other.ID)
	require.NoError(t, err)

	assert.Equal(t, "FACT-2025-0001", a)
	assert.Equal(t, "DEVIS-2025-0001", b)
	assert.Equal(t, "FACT-2025-0001", c)
}

func TestAllocateNumberErrors(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.folio.AllocateNumber(ctx, "usr_missing", sequence.TypeInvoice)
	assert.ErrorIs(t, err, folio.ErrUserNotFound)
	assert.True(t, folio.IsNotFound(err))

	_, err = h.folio.AllocateNumber(ctx, h.user, sequence.DocumentType("receipt"))
	assert.ErrorIs(t, err, folio.ErrInvalidDocumentType)
}

func TestSetNumberPrefix(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	first, err := h.folio.AllocateInvoiceNumber(ctx, h.user)
	require.NoError(t, err)
	require.NoError(t, h.folio.SetNumberPrefix(ctx, h.user, sequence.TypeInvoice, "inv"))
	second, err := h.folio.AllocateInvoiceNumber(ctx, h.user)
	require.NoError(t, err)

	assert.Equal(t, "FACT-2025-0001", first)
	assert.Equal(t, "INV-2025-0002", second)

	err = h.folio.SetNumberPrefix(ctx, h.user, sequence.TypeInvoice, "BAD-PREFIX")
	assert.ErrorIs(t, err, folio.ErrInvalidPrefix)
}

// ──────────────────────────────────────────────────
// Quotas
// ──────────────────────────────────────────────────

func TestCheckAndReserveFreePlan(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	for range 4 {
		h.newDocument(t, sequence.TypeInvoice)
	}

	res, err := h.folio.CheckAndReserve(ctx, h.user, usage.MetricInvoices)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(5), res.Current)

	res, err = h.folio.CheckAndReserve(ctx, h.user, usage.MetricInvoices)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(5), res.Current)
	assert.Equal(t, plan.Limit(5), res.Limit)
	assert.Equal(t, "5/5 invoices this month on the free plan; upgrade to pro for unlimited invoices", res.Reason)

	c, err := h.folio.GetUsage(ctx, h.user)
	require.NoError(t, err)
	assert.Equal(t, int64(5), c.InvoicesThisMonth)
}

func TestCheckAndReserveConcurrentNeverExceedsLimit(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	var allowed atomic.Int64
	var g errgroup.Group
	for range 100 {
		g.Go(func() error {
			res, err := h.folio.CheckAndReserve(ctx, h.user, usage.MetricQuotes)
			if err != nil {
				return err
			}
			if res.Allowed {
				allowed.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(5), allowed.Load())
	c, err := h.folio.GetUsage(ctx, h.user)
	require.NoError(t, err)
	assert.Equal(t, int64(5), c.QuotesThisMonth)
}

func TestCreateDocumentQuotaExceeded(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	for range 5 {
		h.newDocument(t, sequence.TypeQuote)
	}

	d := &document.Document{UserID: h.user, Type: sequence.TypeQuote}
	err := h.folio.CreateDocument(ctx, d, h.actor())
	require.ErrorIs(t, err, folio.ErrQuotaExceeded)
	assert.True(t, folio.IsQuotaError(err))

	var qe *folio.QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, usage.MetricQuotes, qe.Metric)
	assert.Equal(t, plan.TierFree, qe.Plan)
	assert.Equal(t, plan.TierPro, qe.Upgrade)
	assert.Contains(t, err.Error(), "5/5 quotes this month on the free plan")

	// A denied create consumes no number.
	c, err := h.folio.GetCounter(ctx, h.user, sequence.TypeQuote)
	require.NoError(t, err)
	assert.Equal(t, 6, c.NextNumber)

	h.upgrade(t, plan.TierPro)
	require.NoError(t, h.folio.CreateDocument(ctx, d, h.actor()))
	assert.Equal(t, "DEVIS-2025-0006", d.Number)
}

func TestPeriodRollover(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	for range 3 {
		h.newDocument(t, sequence.TypeInvoice)
	}
	_, err := h.folio.CheckAndReserve(ctx, h.user, usage.MetricExpenses)
	require.NoError(t, err)
	_, err = h.folio.IncrementClientCount(ctx, h.user, 4)
	require.NoError(t, err)

	h.clock.Advance(31 * 24 * time.Hour) // April

	res, err := h.folio.CheckAndReserve(ctx, h.user, usage.MetricQuotes)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	stored, err := h.store.GetUsage(ctx, h.user)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.InvoicesThisMonth)
	assert.Equal(t, int64(1), stored.QuotesThisMonth)
	assert.Equal(t, int64(0), stored.ExpensesThisMonth)
	assert.Equal(t, int64(4), stored.ClientsCount)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), stored.LastResetDate.UTC())
}

func TestCheckUsageDoesNotWrite(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.newDocument(t, sequence.TypeInvoice)
	h.clock.Advance(31 * 24 * time.Hour)

	res, err := h.folio.CheckUsage(ctx, h.user, usage.MetricInvoices)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(0), res.Current)
	assert.Equal(t, int64(5), res.Remaining())

	stored, err := h.store.GetUsage(ctx, h.user)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.InvoicesThisMonth)
}

func TestReleaseClampsAtZero(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.folio.CheckAndReserve(ctx, h.user, usage.MetricExpenses)
	require.NoError(t, err)

	for _, want := range []int64{0, 0} {
		got, err := h.folio.Release(ctx, h.user, usage.MetricExpenses)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	got, err := h.folio.Release(ctx, h.user, usage.MetricClients)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)

	_, err = h.folio.CheckAndReserve(ctx, h.user, usage.Metric("seats"))
	assert.ErrorIs(t, err, folio.ErrInvalidMetric)
	_, err = h.folio.Release(ctx, h.user, usage.Metric("seats"))
	assert.ErrorIs(t, err, folio.ErrInvalidMetric)
}

func TestIncrementClientCount(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	tests := []struct {
		delta int64
		want  int64
	}{
		{3, 3},
		{-1, 2},
		{-5, 0},
		{1, 1},
	}
	for _, tt := range tests {
		got, err := h.folio.IncrementClientCount(ctx, h.user, tt.delta)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "delta %d", tt.delta)
	}

	// Free allows 10 clients: 1 + 10 is refused and leaves the count alone.
	got, err := h.folio.IncrementClientCount(ctx, h.user, 10)
	var qe *folio.QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.ErrorIs(t, err, folio.ErrQuotaExceeded)
	assert.Equal(t, usage.MetricClients, qe.Metric)
	assert.Equal(t, int64(1), qe.Current)
	assert.Equal(t, plan.Limit(10), qe.Limit)
	assert.Equal(t, plan.TierPro, qe.Upgrade)
	assert.Equal(t, int64(1), got)

	got, err = h.folio.IncrementClientCount(ctx, h.user, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got)

	res, err := h.folio.CheckAndReserve(ctx, h.user, usage.MetricClients)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(10), res.Current)

	h.upgrade(t, plan.TierPro)
	got, err = h.folio.IncrementClientCount(ctx, h.user, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(110), got)
}

func TestClientLimitHoldsUnderConcurrency(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	var allowed atomic.Int64
	var g errgroup.Group
	for i := range 50 {
		g.Go(func() error {
			if i%2 == 0 {
				res, err := h.folio.CheckAndReserve(ctx, h.user, usage.MetricClients)
				if err != nil {
					return err
				}
				if res.Allowed {
					allowed.Add(1)
				}
				return nil
			}
			_, err := h.folio.IncrementClientCount(ctx, h.user, 1)
			switch {
			case err == nil:
				allowed.Add(1)
			case !errors.Is(err, folio.ErrQuotaExceeded):
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(10), allowed.Load())
	c, err := h.folio.GetUsage(ctx, h.user)
	require.NoError(t, err)
	assert.Equal(t, int64(10), c.ClientsCount)
}

func TestUnknownPlanGetsFreeLimits(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.NoError(t, h.folio.UpdateSubscription(ctx, h.user, subscription.Subscription{
		Plan:   "enterprise",
		Status: subscription.StatusActive,
	}))

	res, err := h.folio.CheckUsage(ctx, h.user, usage.MetricInvoices)
	require.NoError(t, err)
	assert.Equal(t, plan.TierFree, res.Plan)
	assert.Equal(t, plan.Limit(5), res.Limit)

	assert.Equal(t, plan.TierFree, h.folio.GetPlanFeatures("enterprise").Tier)
	assert.Equal(t, plan.OCRAdvanced, h.folio.GetPlanFeatures("business").OCR)
}

// ──────────────────────────────────────────────────
// Documents
// ──────────────────────────────────────────────────

func TestCreateDocument(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	d := h.newDocument(t, sequence.TypeInvoice)
	assert.Equal(t, id.PrefixInvoice, d.ID.Prefix())
	assert.Equal(t, "FACT-2025-0001", d.Number)
	assert.Equal(t, document.StatusDraft, d.Status)
	assert.Equal(t, int64(18000), d.Total.Amount)
	assert.Equal(t, march2025, d.CreatedAt)

	got, err := h.folio.GetDocument(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Number, got.Number)

	history, err := h.folio.DocumentHistory(ctx, d.ID, audit.ListOpts{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, audit.ActionCreated, history[0].Action)
	assert.Equal(t, sequence.TypeInvoice, history[0].DocumentType)
	assert.Equal(t, "203.0.113.7", history[0].IPAddress)
}

func TestCreateDocumentInvalidInputReservesNothing(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	d := &document.Document{
		UserID: h.user,
		Type:   sequence.TypeInvoice,
		Lines:  []document.Line{{Description: "", Quantity: decimal.NewFromInt(1)}},
	}
	err := h.folio.CreateDocument(ctx, d, h.actor())
	require.ErrorIs(t, err, folio.ErrInvalidDocument)

	c, err := h.folio.GetUsage(ctx, h.user)
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.InvoicesThisMonth)
}

func TestUpdateDraft(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	d := h.newDocument(t, sequence.TypeQuote)
	title := "Bathroom"
	updated, err := h.folio.UpdateDocument(ctx, d.ID, document.Patch{Title: &title}, h.actor())
	require.NoError(t, err)
	assert.Equal(t, "Bathroom", updated.Title)

	// Same patch again changes nothing and is not audited.
	_, err = h.folio.UpdateDocument(ctx, d.ID, document.Patch{Title: &title}, h.actor())
	require.NoError(t, err)

	history, err := h.folio.DocumentHistory(ctx, d.ID, audit.ListOpts{Action: audit.ActionUpdated})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, []audit.Change{{Field: "title", Old: "", New: "Bathroom"}}, history[0].Changes)
}

func TestModifyIssuedDocumentIsRefused(t *testing.T) {
	for _, status := range []document.Status{document.StatusSent, document.StatusAccepted} {
		t.Run(string(status), func(t *testing.T) {
			h := newHarness(t, nil)
			ctx := context.Background()

			q := h.newDocument(t, sequence.TypeQuote)
			_, err := h.folio.FinalizeDocument(ctx, q.ID, h.actor())
			require.NoError(t, err)
			_, err = h.folio.SendDocument(ctx, q.ID, h.actor())
			require.NoError(t, err)
			if status == document.StatusAccepted {
				_, err = h.folio.AcceptQuote(ctx, q.ID, h.actor())
				require.NoError(t, err)
			}
			before, err := h.folio.GetDocument(ctx, q.ID)
			require.NoError(t, err)

			notes := "discount 10%"
			_, err = h.folio.UpdateDocument(ctx, q.ID, document.Patch{Notes: &notes}, h.actor())
			require.ErrorIs(t, err, folio.ErrImmutableDocument)

			var ie *folio.ImmutableDocumentError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, status, ie.Status)
			assert.Equal(t, q.Number, ie.Number)

			after, err := h.folio.GetDocument(ctx, q.ID)
			require.NoError(t, err)
			assert.Equal(t, before, after)

			attempts, err := h.folio.DocumentHistory(ctx, q.ID, audit.ListOpts{Action: audit.ActionModificationAttempt})
			require.NoError(t, err)
			require.Len(t, attempts, 1)
			assert.Equal(t, []audit.Change{{Field: "notes", Old: "", New: notes}}, attempts[0].Changes)
		})
	}
}

func TestDeleteDocument(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	draft := h.newDocument(t, sequence.TypeInvoice)
	require.NoError(t, h.folio.DeleteDocument(ctx, draft.ID, h.actor()))
	_, err := h.folio.GetDocument(ctx, draft.ID)
	assert.ErrorIs(t, err, folio.ErrDocumentNotFound)

	// Deletion does not give the quota back.
	c, err := h.folio.GetUsage(ctx, h.user)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.InvoicesThisMonth)

	issued := h.newDocument(t, sequence.TypeInvoice)
	_, err = h.folio.FinalizeDocument(ctx, issued.ID, h.actor())
	require.NoError(t, err)
	err = h.folio.DeleteDocument(ctx, issued.ID, h.actor())
	assert.ErrorIs(t, err, folio.ErrImmutableDocument)

	log, err := h.folio.UserAuditLog(ctx, h.user, audit.ListOpts{})
	require.NoError(t, err)
	actions := make([]audit.Action, len(log))
	for i, e := range log {
		actions[i] = e.Action
	}
	assert.Equal(t, []audit.Action{
		audit.ActionCreated,
		audit.ActionDeleted,
		audit.ActionCreated,
		audit.ActionFinalized,
		audit.ActionModificationAttempt,
	}, actions)
}

func TestTransitions(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	inv := h.newDocument(t, sequence.TypeInvoice)

	_, err := h.folio.SendDocument(ctx, inv.ID, h.actor())
	assert.ErrorIs(t, err, folio.ErrInvalidTransition)

	_, err = h.folio.FinalizeDocument(ctx, inv.ID, h.actor())
	require.NoError(t, err)
	_, err = h.folio.SendDocument(ctx, inv.ID, h.actor())
	require.NoError(t, err)

	_, err = h.folio.AcceptQuote(ctx, inv.ID, h.actor())
	assert.ErrorIs(t, err, folio.ErrInvalidTransition)

	paid, err := h.folio.MarkInvoicePaid(ctx, inv.ID, h.actor())
	require.NoError(t, err)
	assert.Equal(t, document.StatusPaid, paid.Status)
	require.NotNil(t, paid.ClosedAt)

	history, err := h.folio.DocumentHistory(ctx, inv.ID, audit.ListOpts{})
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, audit.ActionUpdated, history[3].Action)
	assert.Equal(t, []audit.Change{{Field: "status", Old: "sent", New: "paid"}}, history[3].Changes)
}

// ──────────────────────────────────────────────────
// Failure handling
// ──────────────────────────────────────────────────

type failingAudit struct {
	*memory.Store
}

func (failingAudit) AppendAudit(context.Context, *audit.Entry) error {
	return errors.New("audit collection unavailable")
}

type auditFailures struct {
	count atomic.Int64
}

func (*auditFailures) Name() string { return "audit-failures" }

func (p *auditFailures) OnAuditFailed(context.Context, *audit.Entry, error) error {
	p.count.Add(1)
	return nil
}

func TestAuditFailureDoesNotAbortCreate(t *testing.T) {
	failures := &auditFailures{}
	h := newHarness(t, failingAudit{memory.New()}, folio.WithPlugin(failures))
	ctx := context.Background()

	d := h.newDocument(t, sequence.TypeInvoice)

	got, err := h.folio.GetDocument(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "FACT-2025-0001", got.Number)

	c, err := h.folio.GetUsage(ctx, h.user)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.InvoicesThisMonth)
	assert.Equal(t, int64(1), failures.count.Load())
}

type conflictingStore struct {
	*memory.Store
	conflicts atomic.Int64
}

func (s *conflictingStore) UpdateDocument(ctx context.Context, d *document.Document, expected document.Status) error {
	if s.conflicts.Add(-1) >= 0 {
		return fmt.Errorf("folio/test: update: %w", folio.ErrConcurrentModification)
	}
	return s.Store.UpdateDocument(ctx, d, expected)
}

func TestWriteConflictsAreRetried(t *testing.T) {
	s := &conflictingStore{Store: memory.New()}
	h := newHarness(t, s, folio.WithRetry(3))
	ctx := context.Background()

	d := h.newDocument(t, sequence.TypeInvoice)

	s.conflicts.Store(2)
	_, err := h.folio.FinalizeDocument(ctx, d.ID, h.actor())
	require.NoError(t, err)

	s.conflicts.Store(10)
	_, err = h.folio.SendDocument(ctx, d.ID, h.actor())
	require.ErrorIs(t, err, folio.ErrConcurrentModification)
	assert.True(t, folio.IsRetryable(err))
}

type failingCreate struct {
	*memory.Store
}

func (failingCreate) CreateDocument(context.Context, *document.Document) error {
	return errors.New("disk full")
}

func TestCreateFailureReleasesReservation(t *testing.T) {
	h := newHarness(t, failingCreate{memory.New()})
	ctx := context.Background()

	d := &document.Document{UserID: h.user, Type: sequence.TypeQuote}
	require.Error(t, h.folio.CreateDocument(ctx, d, h.actor()))

	c, err := h.folio.GetUsage(ctx, h.user)
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.QuotesThisMonth)

	// The number stays consumed.
	counter, err := h.folio.GetCounter(ctx, h.user, sequence.TypeQuote)
	require.NoError(t, err)
	assert.Equal(t, 2, counter.NextNumber)
}
