package config

import (
	"context"
	"fmt"

	goredis "github.com/go-redis/redis/v8"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/folio/store"
	"github.com/xraph/folio/store/memory"
	"github.com/xraph/folio/store/mongo"
	"github.com/xraph/folio/store/postgres"
	"github.com/xraph/folio/store/redis"
	"github.com/xraph/folio/store/sqlite"
)

// OpenStore connects the backend the configuration selects. The store is
// not migrated.
func OpenStore(ctx context.Context, c StoreConfig) (store.Store, error) {
	switch c.Driver {
	case "", "memory":
		return memory.New(), nil

	case "sqlite":
		drv := sqlitedriver.New()
		if err := drv.Open(ctx, c.DSN); err != nil {
			return nil, fmt.Errorf("folio/config: open sqlite: %w", err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			return nil, fmt.Errorf("folio/config: open sqlite: %w", err)
		}
		return sqlite.New(db), nil

	case "postgres":
		drv := pgdriver.New()
		if err := drv.Open(ctx, c.DSN); err != nil {
			return nil, fmt.Errorf("folio/config: open postgres: %w", err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			return nil, fmt.Errorf("folio/config: open postgres: %w", err)
		}
		return postgres.New(db), nil

	case "mongo":
		drv := mongodriver.New()
		if err := drv.Open(ctx, c.DSN, mongodriver.WithDatabase(c.Database)); err != nil {
			return nil, fmt.Errorf("folio/config: open mongo: %w", err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			return nil, fmt.Errorf("folio/config: open mongo: %w", err)
		}
		return mongo.New(db), nil

	case "redis":
		opts, err := goredis.ParseURL(c.DSN)
		if err != nil {
			return nil, fmt.Errorf("folio/config: invalid redis URL: %w", err)
		}
		client := goredis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("folio/config: connect redis: %w", err)
		}
		var storeOpts []redis.Option
		if c.KeyPrefix != "" {
			storeOpts = append(storeOpts, redis.WithKeyPrefix(c.KeyPrefix))
		}
		return redis.New(client, storeOpts...), nil
	}

	return nil, fmt.Errorf("folio/config: unknown store driver %q", c.Driver)
}
