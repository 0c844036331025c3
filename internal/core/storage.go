package core

import (
	"context"
	"fmt"

	"spacenet/internal/codec"
	"spacenet/internal/config"
	"spacenet/internal/infra/persistence/memory"
	"spacenet/internal/infra/persistence/postgres"
	"spacenet/internal/infra/persistence/redis"
	"spacenet/internal/infra/persistence/sqlite"
	"spacenet/pkg/domain"
)

// OpenPersistentStore selects a backend from the storage configuration.
//
//	memory:   volatile, for tests and dry runs
//	sqlite:   embedded file at SQLitePath
//	postgres: server at PostgresDSN
//	redis:    server at Redis.Addr, keys under Redis.Prefix
func OpenPersistentStore(ctx context.Context, cfg config.Storage, enc *codec.Encoder, engine *domain.RulesEngine) (domain.PersistentStore, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.NewStore(engine), nil
	case config.DriverSQLite, "":
		store, err := sqlite.NewStore(cfg.SQLitePath, enc, engine)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN, enc, engine)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverRedis:
		store, err := redis.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, enc, engine, redis.WithPrefix(cfg.Redis.Prefix))
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}
