package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/folio/sequence"
	"github.com/xraph/folio/store"
	"github.com/xraph/folio/store/storetest"
)

func setupStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	s := New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), opts...)
	require.NoError(t, s.Migrate(context.Background()))
	return s, mr
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, storetest.Suite{
		New: func(t *testing.T) store.Store {
			s, _ := setupStore(t)
			return s
		},
		SeedCounter: func(t *testing.T, st store.Store, c sequence.Counter) {
			s := st.(*Store)
			key := string(c.Type) + ":"
			err := s.client.HSet(context.Background(), s.seqKey(c.UserID),
				key+"prefix", c.Prefix,
				key+"year", c.Year,
				key+"next", c.NextNumber,
			).Err()
			require.NoError(t, err)
		},
	})
}

func TestKeyPrefix(t *testing.T) {
	s, mr := setupStore(t, WithKeyPrefix("tenant_a"))
	ctx := context.Background()

	u := storetest.NewUser(t, s)
	_, err := s.NextNumber(ctx, u.ID, sequence.TypeInvoice, 2025)
	require.NoError(t, err)

	assert.True(t, mr.Exists("tenant_a:user:"+u.ID))
	assert.True(t, mr.Exists("tenant_a:seq:"+u.ID))
	assert.False(t, mr.Exists(DefaultKeyPrefix+":user:"+u.ID))
	assert.Equal(t, "2", mr.HGet("tenant_a:seq:"+u.ID, "invoice:next"))
}

func TestRecreateAfterFlush(t *testing.T) {
	s, mr := setupStore(t)
	ctx := context.Background()

	u := storetest.NewUser(t, s)
	mr.FlushAll()
	require.NoError(t, s.CreateUser(ctx, u))

	n, err := s.NextNumber(ctx, u.ID, sequence.TypeQuote, 2025)
	require.NoError(t, err)
	assert.Equal(t, "DEVIS-2025-0001", n.String())
}

func TestPing(t *testing.T) {
	s, _ := setupStore(t)

	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
}
