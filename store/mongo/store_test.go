//go:build integration

package mongo_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/folio/sequence"
	"github.com/xraph/folio/store"
	"github.com/xraph/folio/store/mongo"
	"github.com/xraph/folio/store/storetest"
)

var dbSeq atomic.Int64

func startMongo(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor: wait.ForLog("Waiting for connections").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("mongo container unavailable: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("terminate mongo container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "27017")
	require.NoError(t, err)

	return "mongodb://" + host + ":" + port.Port()
}

func TestStoreConformance(t *testing.T) {
	uri := startMongo(t)

	storetest.Run(t, storetest.Suite{
		New: func(t *testing.T) store.Store {
			ctx := context.Background()

			drv := mongodriver.New()
			name := fmt.Sprintf("folio_test_%d", dbSeq.Add(1))
			require.NoError(t, drv.Open(ctx, uri, mongodriver.WithDatabase(name)))
			db, err := grove.Open(drv)
			require.NoError(t, err)

			s := mongo.New(db)
			require.NoError(t, s.Migrate(ctx))
			return s
		},
		SeedCounter: func(t *testing.T, s store.Store, c sequence.Counter) {
			db := s.(*mongo.Store).DB()
			_, err := mongodriver.Unwrap(db).Collection("folio_users").UpdateOne(context.Background(),
				bson.M{"_id": c.UserID},
				bson.M{"$set": bson.M{"sequences." + string(c.Type): bson.M{
					"prefix":      c.Prefix,
					"year":        c.Year,
					"next_number": c.NextNumber,
					"updated_at":  time.Now().UTC(),
				}}},
			)
			require.NoError(t, err)
		},
	})
}
