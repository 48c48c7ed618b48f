//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"

	"github.com/xraph/folio/sequence"
	"github.com/xraph/folio/store"
	"github.com/xraph/folio/store/postgres"
	"github.com/xraph/folio/store/storetest"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("folio_test"),
		tcpostgres.WithUsername("folio"),
		tcpostgres.WithPassword("folio_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestStoreConformance(t *testing.T) {
	dsn := startPostgres(t)

	storetest.Run(t, storetest.Suite{
		New: func(t *testing.T) store.Store {
			ctx := context.Background()

			drv := pgdriver.New()
			require.NoError(t, drv.Open(ctx, dsn))
			db, err := grove.Open(drv)
			require.NoError(t, err)

			s := postgres.New(db)
			require.NoError(t, s.Migrate(ctx))
			_, err = pgdriver.Unwrap(db).Exec(ctx,
				`TRUNCATE folio_audit_entries, folio_documents, folio_sequences, folio_users`)
			require.NoError(t, err)
			return s
		},
		SeedCounter: func(t *testing.T, s store.Store, c sequence.Counter) {
			db := s.(*postgres.Store).DB()
			_, err := pgdriver.Unwrap(db).Exec(context.Background(), `
				INSERT INTO folio_sequences (user_id, document_type, prefix, year, next_number, updated_at)
				VALUES ($1, $2, $3, $4, $5, NOW())
				ON CONFLICT (user_id, document_type) DO UPDATE SET
				    prefix = EXCLUDED.prefix, year = EXCLUDED.year, next_number = EXCLUDED.next_number
			`, c.UserID, string(c.Type), c.Prefix, c.Year, c.NextNumber)
			require.NoError(t, err)
		},
	})
}
