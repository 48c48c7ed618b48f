// Package storetest is the conformance suite every store.Store backend runs.
// It checks the storage contract directly, below the engine: atomic
// numbering, guarded usage counters, conditional document writes and the
// audit queries.
package storetest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

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
	"github.com/xraph/folio/subscription"
	"github.com/xraph/folio/types"
	"github.com/xraph/folio/usage"
	"github.com/xraph/folio/user"
)

// Suite configures a conformance run.
type Suite struct {
	// New returns an empty, migrated store. The suite closes it.
	New func(t *testing.T) store.Store

	// SeedCounter writes a counter state directly. When nil the exhaustion
	// test issues every number of the year instead.
	SeedCounter func(t *testing.T, s store.Store, c sequence.Counter)

	// Concurrency is the number of parallel callers in the race tests.
	// Defaults to 100.
	Concurrency int
}

// Base is the fixed instant the suite's data is stamped with. Backends
// that store seconds keep it exactly.
var Base = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

// Run executes the whole suite.
func Run(t *testing.T, suite Suite) {
	if suite.Concurrency == 0 {
		suite.Concurrency = 100
	}

	tests := []struct {
		name string
		fn   func(*testing.T, Suite)
	}{
		{"Users", testUsers},
		{"NextNumberSequential", testNextNumberSequential},
		{"NextNumberYearReset", testNextNumberYearReset},
		{"NextNumberEarlierYear", testNextNumberEarlierYear},
		{"NextNumberConcurrent", testNextNumberConcurrent},
		{"NextNumberExhausted", testNextNumberExhausted},
		{"SetPrefix", testSetPrefix},
		{"ReserveUsage", testReserveUsage},
		{"ReserveUsageConcurrent", testReserveUsageConcurrent},
		{"UsageRollover", testUsageRollover},
		{"ReleaseAndClients", testReleaseAndClients},
		{"ClientLimit", testClientLimit},
		{"Documents", testDocuments},
		{"DocumentConditionalWrites", testDocumentConditionalWrites},
		{"DueDocuments", testDueDocuments},
		{"Audit", testAudit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, suite)
		})
	}
}

func open(t *testing.T, suite Suite) store.Store {
	t.Helper()
	s := suite.New(t)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// NewUser creates a free user stamped at Base.
func NewUser(t *testing.T, s store.Store) *user.User {
	t.Helper()
	u := &user.User{
		Entity:       types.NewEntity(Base),
		ID:           id.NewUserID().String(),
		Email:        fmt.Sprintf("%s@example.com", id.NewUserID().String()),
		Name:         "Test",
		Subscription: subscription.Free(),
		Usage:        usage.NewCounters(Base),
	}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func testUsers(t *testing.T, suite Suite) {
	s := open(t, suite)
	ctx := context.Background()

	u := NewUser(t, s)
	assert.ErrorIs(t, s.CreateUser(ctx, u), folio.ErrAlreadyExists)

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)
	assert.Equal(t, string(plan.TierFree), got.Subscription.Plan)
	assert.True(t, got.Usage.LastResetDate.Equal(usage.PeriodStart(Base)))

	end := Base.Add(30 * 24 * time.Hour)
	sub := subscription.Subscription{
		Plan:                   string(plan.TierPro),
		Status:                 subscription.StatusActive,
		ProviderCustomerID:     "cus_123",
		ProviderSubscriptionID: "sub_456",
		CurrentPeriodEnd:       &end,
	}
	require.NoError(t, s.UpdateSubscription(ctx, u.ID, sub, Base.Add(time.Hour)))

	got, err = s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.Plan, got.Subscription.Plan)
	assert.Equal(t, sub.ProviderCustomerID, got.Subscription.ProviderCustomerID)
	require.NotNil(t, got.Subscription.CurrentPeriodEnd)
	assert.True(t, got.Subscription.CurrentPeriodEnd.Equal(end))

	_, err = s.GetUser(ctx, "usr_missing")
	assert.ErrorIs(t, err, folio.ErrUserNotFound)
	assert.ErrorIs(t, s.UpdateSubscription(ctx, "usr_missing", sub, Base), folio.ErrUserNotFound)
}

func testNextNumberSequential(t *testing.T, suite Suite) {
	s := open(t, suite)
	ctx := context.Background()
	u := NewUser(t, s)

	c, err := s.GetCounter(ctx, u.ID, sequence.TypeInvoice)
	require.NoError(t, err)
	assert.Equal(t, "FACT", c.Prefix)
	assert.Equal(t, 1, c.NextNumber)

	for want := 1; want <= 5; want++ {
		n, err := s.NextNumber(ctx, u.ID, sequence.TypeInvoice, 2025)
		require.NoError(t, err)
		assert.Equal(t, want, n.Value)
		assert.Equal(t, fmt.Sprintf("FACT-2025-%04d", want), n.String())
	}

	n, err := s.NextNumber(ctx, u.ID, sequence.TypeQuote, 2025)
	require.NoError(t, err)
	assert.Equal(t, "DEVIS-2025-0001", n.String())

	c, err = s.GetCounter(ctx, u.ID, sequence.TypeInvoice)
	require.NoError(t, err)
	assert.Equal(t, 2025, c.Year)
	assert.Equal(t, 6, c.NextNumber)

	_, err = s.NextNumber(ctx, "usr_missing", sequence.TypeInvoice, 2025)
	assert.ErrorIs(t, err, folio.ErrUserNotFound)
}

func testNextNumberYearReset(t *testing.T, suite Suite) {
	s := open(t, suite)
	ctx := context.Background()
	u := NewUser(t, s)

	for range 6 {
		_, err := s.NextNumber(ctx, u.ID, sequence.TypeQuote, 2024)
		require.NoError(t, err)
	}
	c, err := s.GetCounter(ctx, u.ID, sequence.TypeQuote)
	require.NoError(t, err)
	assert.Equal(t, 2024, c.Year)
	assert.Equal(t, 7, c.NextNumber)

	n, err := s.NextNumber(ctx, u.ID, sequence.TypeQuote, 2025)
	require.NoError(t, err)
	assert.Equal(t, "DEVIS-2025-0001", n.String())

	c, err = s.GetCounter(ctx, u.ID, sequence.TypeQuote)
	require.NoError(t, err)
	assert.Equal(t, 2025, c.Year)
	assert.Equal(t, 2, c.NextNumber)
}

// A caller whose clock still reads the previous year must neither rewind
// the counter nor get a number another caller already has.
func testNextNumberEarlierYear(t *testing.T, suite Suite) {
	s := open(t, suite)
	ctx := context.Background()
	u := NewUser(t, s)

	issued := make(map[string]struct{})
	for _, year := range []int{2026, 2025, 2026, 2025, 2024, 2026} {
		n, err := s.NextNumber(ctx, u.ID, sequence.TypeInvoice, year)
		require.NoError(t, err)
		assert.Equal(t, 2026, n.Year, "requested %d", year)
		_, dup := issued[n.String()]
		require.False(t, dup, "duplicate number %s", n)
		issued[n.String()] = struct{}{}
	}
	assert.Len(t, issued, 6)

	c, err := s.GetCounter(ctx, u.ID, sequence.TypeInvoice)
	require.NoError(t, err)
	assert.Equal(t, 2026, c.Year)
	assert.Equal(t, 7, c.NextNumber)

	n, err := s.NextNumber(ctx, u.ID, sequence.TypeInvoice, 2027)
	require.NoError(t, err)
	assert.Equal(t, "FACT-2027-0001", n.String())
}

func testNextNumberConcurrent(t *testing.T, suite Suite) {
	s := open(t, suite)
	ctx := context.Background()
	u := NewUser(t, s)

	n := suite.Concurrency
	values := make([]int, n)
	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			num, err := s.NextNumber(ctx, u.ID, sequence.TypeInvoice, 2025)
			values[i] = num.Value
			return err
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[int]bool, n)
	for _, v := range values {
		require.False(t, seen[v], "duplicate number %d", v)
		seen[v] = true
	}
	for v := 1; v <= n; v++ {
		assert.True(t, seen[v], "gap at %d", v)
	}
}

func testNextNumberExhausted(t *testing.T, suite Suite) {
	s := open(t, suite)
	ctx := context.Background()
	u := NewUser(t, s)

	if suite.SeedCounter != nil {
		suite.SeedCounter(t, s, sequence.Counter{
			UserID:     u.ID,
			Type:       sequence.TypeInvoice,
			Prefix:     "FACT",
			Year:       2025,
			NextNumber: sequence.MaxNumber,
		})
	} else {
		for range sequence.MaxNumber - 1 {
			_, err := s.NextNumber(ctx, u.ID, sequence.TypeInvoice, 2025)
			require.NoError(t, err)
		}
	}

	n, err := s.NextNumber(ctx, u.ID, sequence.TypeInvoice, 2025)
	require.NoError(t, err)
	assert.Equal(t, "FACT-2025-9999", n.String())

	for range 2 {
		_, err = s.NextNumber(ctx, u.ID, sequence.TypeInvoice, 2025)
		assert.ErrorIs(t, err, folio.ErrSequenceExhausted)
	}
	_, err = s.NextNumber(ctx, u.ID, sequence.TypeInvoice, 2024)
	assert.ErrorIs(t, err, folio.ErrSequenceExhausted)

	n, err = s.NextNumber(ctx, u.ID, sequence.TypeInvoice, 2026)
	require.NoError(t, err)
	assert.Equal(t, "FACT-2026-0001", n.String())
}

func testSetPrefix(t *testing.T, suite Suite) {
	s := open(t, suite)
	ctx := context.Background()
	u := NewUser(t, s)

	require.NoError(t, s.SetPrefix(ctx, u.ID, sequence.TypeQuote, "Q"))
	n, err := s.NextNumber(ctx, u.ID, sequence.TypeQuote, 2025)
	require.NoError(t, err)
	assert.Equal(t, "Q-2025-0001", n.String())

	require.NoError(t, s.SetPrefix(ctx, u.ID, sequence.TypeQuote, "QT"))
	n, err = s.NextNumber(ctx, u.ID, sequence.TypeQuote, 2025)
	require.NoError(t, err)
	assert.Equal(t, "QT-2025-0002", n.String())

	assert.ErrorIs(t, s.SetPrefix(ctx, "usr_missing", sequence.TypeQuote, "Q"), folio.ErrUserNotFound)
}

func testReserveUsage(t *testing.T, suite Suite) {
	s := open(t, suite)
	ctx := context.Background()
	u := NewUser(t, s)
	period := usage.PeriodStart(Base)

	for want := int64(1); want <= 5; want++ {
		r, err := s.ReserveUsage(ctx, u.ID, usage.MetricInvoices, 5, period)
		require.NoError(t, err)
		assert.True(t, r.Allowed)
		assert.Equal(t, want, r.Current)
	}

	r, err := s.ReserveUsage(ctx, u.ID, usage.MetricInvoices, 5, period)
	require.NoError(t, err)
	assert.False(t, r.Allowed)
	assert.Equal(t, int64(5), r.Current)

	for range 3 {
		r, err = s.ReserveUsage(ctx, u.ID, usage.MetricQuotes, usage.Unlimited, period)
		require.NoError(t, err)
		assert.True(t, r.Allowed)
	}
	assert.Equal(t, int64(3), r.Current)

	c, err := s.GetUsage(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), c.InvoicesThisMonth)
	assert.Equal(t, int64(3), c.QuotesThisMonth)

	_, err = s.ReserveUsage(ctx, "usr_missing", usage.MetricInvoices, 5, period)
	assert.ErrorIs(t, err, folio.ErrUserNotFound)
	_, err = s.ReserveUsage(ctx, u.ID, usage.Metric("seats"), 5, period)
	assert.ErrorIs(t, err, folio.ErrInvalidMetric)
}

func testReserveUsageConcurrent(t *testing.T, suite Suite) {
	s := open(t, suite)
	ctx := context.Background()
	u := NewUser(t, s)
	period := usage.PeriodStart(Base)

	var allowed atomic.Int64
	var g errgroup.Group
	for range suite.Concurrency {
		g.Go(func() error {
			r, err := s.ReserveUsage(ctx, u.ID, usage.MetricExpenses, 5, period)
			if err != nil {
				return err
			}
			if r.Allowed {
				allowed.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(5), allowed.Load())
	c, err := s.GetUsage(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), c.ExpensesThisMonth)
}

func testUsageRollover(t *testing.T, suite Suite) {
	s := open(t, suite)
	ctx := context.Background()
	u := NewUser(t, s)
	march := usage.PeriodStart(Base)
	april := march.AddDate(0, 1, 0)

	for _, m := range usage.PeriodMetrics() {
		_, err := s.ReserveUsage(ctx, u.ID, m, 5, march)
		require.NoError(t, err)
	}
	_, err := s.AdjustClients(ctx, u.ID, 7, usage.Unlimited)
	require.NoError(t, err)

	r, err := s.ReserveUsage(ctx, u.ID, usage.MetricInvoices, 5, april)
	require.NoError(t, err)
	assert.True(t, r.Allowed)
	assert.Equal(t, int64(1), r.Current)

	c, err := s.GetUsage(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.InvoicesThisMonth)
	assert.Equal(t, int64(0), c.QuotesThisMonth)
	assert.Equal(t, int64(0), c.ExpensesThisMonth)
	assert.Equal(t, int64(7), c.ClientsCount)
	assert.True(t, c.LastResetDate.Equal(april), "last reset %s", c.LastResetDate)

	// A writer with a lagging clock never moves the period back.
	r, err = s.ReserveUsage(ctx, u.ID, usage.MetricInvoices, 5, march)
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.Current)
	c, err = s.GetUsage(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, c.LastResetDate.Equal(april))
}

func testReleaseAndClients(t *testing.T, suite Suite) {
	s := open(t, suite)
	ctx := context.Background()
	u := NewUser(t, s)
	period := usage.PeriodStart(Base)

	_, err := s.ReserveUsage(ctx, u.ID, usage.MetricQuotes, 5, period)
	require.NoError(t, err)

	for _, want := range []int64{0, 0} {
		got, err := s.ReleaseUsage(ctx, u.ID, usage.MetricQuotes, period)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	steps := []struct {
		delta, want int64
	}{
		{2, 2},
		{-1, 1},
		{-3, 0},
	}
	for _, step := range steps {
		got, err := s.AdjustClients(ctx, u.ID, step.delta, usage.Unlimited)
		require.NoError(t, err)
		assert.True(t, got.Allowed)
		assert.Equal(t, step.want, got.Current)
	}

	_, err = s.AdjustClients(ctx, "usr_missing", 1, usage.Unlimited)
	assert.ErrorIs(t, err, folio.ErrUserNotFound)
	_, err = s.AdjustClients(ctx, "usr_missing", 1, 10)
	assert.ErrorIs(t, err, folio.ErrUserNotFound)
}

func testClientLimit(t *testing.T, suite Suite) {
	s := open(t, suite)
	ctx := context.Background()
	u := NewUser(t, s)

	steps := []struct {
		delta, limit int64
		allowed      bool
		want         int64
	}{
		{8, 10, true, 8},
		{3, 10, false, 8},
		{2, 10, true, 10},
		{1, 10, false, 10},
		{-4, 10, true, 6},
		{1, usage.Unlimited, true, 7},
		{-1, 0, true, 6},
	}
	for _, step := range steps {
		got, err := s.AdjustClients(ctx, u.ID, step.delta, step.limit)
		require.NoError(t, err)
		assert.Equal(t, step.allowed, got.Allowed, "delta %d limit %d", step.delta, step.limit)
		assert.Equal(t, step.want, got.Current, "delta %d limit %d", step.delta, step.limit)
	}

	// Racing single increments from 6 stop exactly at the limit.
	var allowed atomic.Int64
	var g errgroup.Group
	for range 20 {
		g.Go(func() error {
			r, err := s.AdjustClients(ctx, u.ID, 1, 10)
			if err != nil {
				return err
			}
			if r.Allowed {
				allowed.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(4), allowed.Load())
	c, err := s.GetUsage(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), c.ClientsCount)
}

// NewDocument builds a draft with one line for u.
func NewDocument(u *user.User, t sequence.DocumentType, number string, createdAt time.Time) *document.Document {
	d := &document.Document{
		Entity:    types.NewEntity(createdAt),
		ID:        document.NewID(t),
		UserID:    u.ID,
		Type:      t,
		Number:    number,
		Status:    document.StatusDraft,
		ClientID:  "client_1",
		IssueDate: createdAt.Truncate(24 * time.Hour),
		Lines: []document.Line{{
			Description: "Labour",
			Quantity:    decimal.RequireFromString("1.5"),
			UnitPrice:   types.EUR(4000),
			VATRate:     decimal.NewFromInt(20),
		}},
		Metadata: map[string]string{"source": "storetest"},
	}
	d.Normalize()
	d.Recalculate()
	return d
}

func testDocuments(t *testing.T, suite Suite) {
	s := open(t, suite)
	ctx := context.Background()
	u := NewUser(t, s)

	inv := NewDocument(u, sequence.TypeInvoice, "FACT-2025-0001", Base)
	require.NoError(t, s.CreateDocument(ctx, inv))

	got, err := s.GetDocument(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, got.ID)
	assert.Equal(t, inv.Number, got.Number)
	assert.Equal(t, document.StatusDraft, got.Status)
	assert.Equal(t, inv.Total, got.Total)
	assert.Equal(t, int64(7200), got.Total.Amount)
	require.Len(t, got.Lines, 1)
	assert.True(t, got.Lines[0].Quantity.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, inv.Lines[0].ID, got.Lines[0].ID)
	assert.Equal(t, "storetest", got.Metadata["source"])

	dup := NewDocument(u, sequence.TypeInvoice, "FACT-2025-0001", Base)
	assert.ErrorIs(t, s.CreateDocument(ctx, dup), folio.ErrAlreadyExists)

	// The same number on the other type, or for another user, is fine.
	q := NewDocument(u, sequence.TypeQuote, "FACT-2025-0001", Base.Add(time.Minute))
	require.NoError(t, s.CreateDocument(ctx, q))
	other := NewUser(t, s)
	require.NoError(t, s.CreateDocument(ctx, NewDocument(other, sequence.TypeInvoice, "FACT-2025-0001", Base)))

	inv2 := NewDocument(u, sequence.TypeInvoice, "FACT-2025-0002", Base.Add(2*time.Minute))
	require.NoError(t, s.CreateDocument(ctx, inv2))

	all, err := s.ListDocuments(ctx, u.ID, document.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, inv2.ID, all[0].ID)
	assert.Equal(t, inv.ID, all[2].ID)

	invoices, err := s.ListDocuments(ctx, u.ID, document.ListOpts{Type: sequence.TypeInvoice, Limit: 1})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, inv2.ID, invoices[0].ID)

	page, err := s.ListDocuments(ctx, u.ID, document.ListOpts{Type: sequence.TypeInvoice, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, inv.ID, page[0].ID)

	_, err = s.GetDocument(ctx, id.NewInvoiceID())
	assert.ErrorIs(t, err, folio.ErrDocumentNotFound)
}

func testDocumentConditionalWrites(t *testing.T, suite Suite) {
	s := open(t, suite)
	ctx := context.Background()
	u := NewUser(t, s)

	d := NewDocument(u, sequence.TypeQuote, "DEVIS-2025-0001", Base)
	require.NoError(t, s.CreateDocument(ctx, d))

	d.Title = "Kitchen"
	require.NoError(t, s.UpdateDocument(ctx, d, document.StatusDraft))

	_, err := d.Transition(document.StatusFinalized, Base.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.UpdateDocument(ctx, d, document.StatusDraft))

	got, err := s.GetDocument(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kitchen", got.Title)
	assert.Equal(t, document.StatusFinalized, got.Status)
	require.NotNil(t, got.FinalizedAt)
	assert.True(t, got.FinalizedAt.Equal(Base.Add(time.Hour)))

	// A writer that still believes the document is a draft loses.
	stale := got.Clone()
	stale.Status = document.StatusDraft
	stale.Notes = "late edit"
	assert.ErrorIs(t, s.UpdateDocument(ctx, stale, document.StatusDraft), folio.ErrConcurrentModification)
	assert.ErrorIs(t, s.DeleteDocument(ctx, d.ID, document.StatusDraft), folio.ErrConcurrentModification)

	got, err = s.GetDocument(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Notes)

	draft := NewDocument(u, sequence.TypeQuote, "DEVIS-2025-0002", Base)
	require.NoError(t, s.CreateDocument(ctx, draft))
	require.NoError(t, s.DeleteDocument(ctx, draft.ID, document.StatusDraft))
	_, err = s.GetDocument(ctx, draft.ID)
	assert.ErrorIs(t, err, folio.ErrDocumentNotFound)

	assert.ErrorIs(t, s.UpdateDocument(ctx, draft, document.StatusDraft), folio.ErrDocumentNotFound)
	assert.ErrorIs(t, s.DeleteDocument(ctx, draft.ID, document.StatusDraft), folio.ErrDocumentNotFound)
}

func testDueDocuments(t *testing.T, suite Suite) {
	s := open(t, suite)
	ctx := context.Background()
	u := NewUser(t, s)

	mk := func(number string, status document.Status, due time.Time) *document.Document {
		d := NewDocument(u, sequence.TypeQuote, number, Base)
		d.Status = status
		d.DueDate = &due
		require.NoError(t, s.CreateDocument(ctx, d))
		return d
	}
	late := mk("DEVIS-2025-0001", document.StatusSent, Base.Add(-48*time.Hour))
	later := mk("DEVIS-2025-0002", document.StatusSent, Base.Add(-24*time.Hour))
	mk("DEVIS-2025-0003", document.StatusSent, Base.Add(24*time.Hour))
	mk("DEVIS-2025-0004", document.StatusDraft, Base.Add(-24*time.Hour))

	due, err := s.ListDueDocuments(ctx, sequence.TypeQuote, document.StatusSent, Base, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, late.ID, due[0].ID)
	assert.Equal(t, later.ID, due[1].ID)

	due, err = s.ListDueDocuments(ctx, sequence.TypeQuote, document.StatusSent, Base, 1)
	require.NoError(t, err)
	assert.Len(t, due, 1)

	due, err = s.ListDueDocuments(ctx, sequence.TypeInvoice, document.StatusSent, Base, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func testAudit(t *testing.T, suite Suite) {
	s := open(t, suite)
	ctx := context.Background()
	u := NewUser(t, s)
	docA := id.NewInvoiceID()
	docB := id.NewQuoteID()

	entry := func(doc id.DocumentID, action audit.Action, at time.Time) *audit.Entry {
		e := audit.NewEntry(doc, u.ID, action, []audit.Change{{Field: "status", Old: "draft", New: "finalized"}},
			audit.Actor{PerformedBy: u.ID, IPAddress: "198.51.100.4", UserAgent: "storetest", Metadata: map[string]string{"k": "v"}})
		e.ID = id.NewAuditEntryID()
		e.DocumentType = sequence.TypeInvoice
		e.PerformedAt = at
		require.NoError(t, s.AppendAudit(ctx, e))
		return e
	}

	first := entry(docA, audit.ActionCreated, Base)
	entry(docA, audit.ActionFinalized, Base.Add(time.Hour))
	entry(docB, audit.ActionCreated, Base.Add(2*time.Hour))
	entry(docA, audit.ActionModificationAttempt, Base.Add(3*time.Hour))

	history, err := s.ListDocumentAudit(ctx, docA, audit.ListOpts{})
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, first.ID, history[0].ID)
	assert.Equal(t, audit.ActionModificationAttempt, history[2].Action)
	assert.Equal(t, first.Changes, history[0].Changes)
	assert.Equal(t, "198.51.100.4", history[0].IPAddress)
	assert.Equal(t, "storetest", history[0].UserAgent)
	assert.Equal(t, "v", history[0].Metadata["k"])
	assert.Equal(t, sequence.TypeInvoice, history[0].DocumentType)
	assert.True(t, history[0].PerformedAt.Equal(Base))

	created, err := s.ListUserAudit(ctx, u.ID, audit.ListOpts{Action: audit.ActionCreated})
	require.NoError(t, err)
	assert.Len(t, created, 2)

	window, err := s.ListUserAudit(ctx, u.ID, audit.ListOpts{Since: Base.Add(time.Hour), Until: Base.Add(3 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, audit.ActionFinalized, window[0].Action)

	paged, err := s.ListUserAudit(ctx, u.ID, audit.ListOpts{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 2)
	assert.Equal(t, audit.ActionFinalized, paged[0].Action)

	purged, err := s.PurgeAudit(ctx, Base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)

	rest, err := s.ListUserAudit(ctx, u.ID, audit.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, rest, 2)
}
