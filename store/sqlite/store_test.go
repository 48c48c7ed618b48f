package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/folio"
	"github.com/xraph/folio/audit"
	"github.com/xraph/folio/document"
	"github.com/xraph/folio/sequence"
	"github.com/xraph/folio/store"
	"github.com/xraph/folio/store/sqlite"
	"github.com/xraph/folio/store/storetest"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()

	drv := sqlitedriver.New()
	dsn := filepath.Join(t.TempDir(), "folio.db") + "?_pragma=busy_timeout(5000)"
	require.NoError(t, drv.Open(ctx, dsn, driver.WithPoolSize(1)))
	db, err := grove.Open(drv)
	require.NoError(t, err)

	s := sqlite.New(db)
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, storetest.Suite{
		New: func(t *testing.T) store.Store { return openStore(t) },
		SeedCounter: func(t *testing.T, s store.Store, c sequence.Counter) {
			db := s.(*sqlite.Store).DB()
			_, err := sqlitedriver.Unwrap(db).Exec(context.Background(), `
				INSERT INTO folio_sequences (user_id, document_type, prefix, year, next_number, updated_at)
				VALUES (?1, ?2, ?3, ?4, ?5, 0)
				ON CONFLICT (user_id, document_type) DO UPDATE SET
				    prefix = excluded.prefix, year = excluded.year, next_number = excluded.next_number
			`, c.UserID, string(c.Type), c.Prefix, c.Year, c.NextNumber)
			require.NoError(t, err)
		},
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openStore(t)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
}

func TestEngineOnSQLite(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	clock := clockwork.NewFakeClockAt(storetest.Base)
	f := folio.New(s, folio.WithClock(clock))
	require.NoError(t, f.Start(ctx))
	t.Cleanup(func() { _ = f.Stop() })

	u, err := f.RegisterUser(ctx, "owner@example.com", "Owner")
	require.NoError(t, err)

	q := &document.Document{
		UserID:   u.ID,
		Type:     sequence.TypeQuote,
		ClientID: "client_1",
		Lines: []document.Line{{
			Description: "Bathroom tiling",
			Quantity:    decimal.NewFromInt(3),
			UnitPrice:   folio.EUR(12000),
			VATRate:     decimal.NewFromInt(10),
		}},
	}
	actor := folio.Actor{PerformedBy: u.ID}
	require.NoError(t, f.CreateDocument(ctx, q, actor))
	assert.Equal(t, int64(39600), q.Total.Amount)
	clock.Advance(time.Minute)

	_, err = f.SendDocument(ctx, q.ID, actor)
	assert.ErrorIs(t, err, folio.ErrInvalidTransition)
	_, err = f.FinalizeDocument(ctx, q.ID, actor)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	assert.ErrorIs(t, f.DeleteDocument(ctx, q.ID, actor), folio.ErrImmutableDocument)

	history, err := f.DocumentHistory(ctx, q.ID, audit.ListOpts{})
	require.NoError(t, err)
	actions := make([]audit.Action, len(history))
	for i, e := range history {
		actions[i] = e.Action
	}
	assert.Equal(t, []audit.Action{
		audit.ActionCreated,
		audit.ActionFinalized,
		audit.ActionModificationAttempt,
	}, actions)

	usage, err := f.GetUsage(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), usage.QuotesThisMonth)
}
