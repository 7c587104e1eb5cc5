package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/storage/memory"
	"github.com/platinummonkey/gatekeeper/pkg/storage/redisstore"
	"github.com/platinummonkey/gatekeeper/pkg/storage/sqldb"
)

// Observers receive backend telemetry. Either field may be nil.
type Observers struct {
	Storage observability.StorageObserver
	Redis   redisstore.CommandObserver
}

// Backend is an opened store plus the raw handles used for health and pool metrics
type Backend struct {
	Store  *InstrumentedStore
	Driver string
	DB     *sql.DB       // set for SQL drivers
	Redis  *redis.Client // set for the redis driver
}

// Open validates cfg and connects the selected backend. With AutoMigrate the
// schema is brought up to date before Open returns.
func Open(ctx context.Context, cfg Config, logger *observability.Logger, observers Observers) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage config: %w", err)
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	backend := &Backend{Driver: cfg.Driver}
	var store rbac.Store

	switch cfg.Driver {
	case DriverMemory:
		store = memory.New()

	case DriverSQLite, DriverPostgres:
		s, err := sqldb.Open(sqldb.Config{
			Driver:      cfg.Driver,
			URL:         cfg.DatabaseURL,
			MaxConns:    cfg.MaxConns,
			MinConns:    cfg.MinConns,
			Timeout:     cfg.Timeout,
			MaxLifetime: cfg.ConnMaxLifetime,
			MaxIdleTime: cfg.ConnMaxIdleTime,
		}, logger)
		if err != nil {
			return nil, err
		}
		backend.DB = s.DB()
		store = s

	case DriverRedis:
		s, err := redisstore.Open(redisstore.Config{
			URL:        cfg.RedisURL,
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			MaxRetries: cfg.RedisMaxRetries,
			PoolSize:   cfg.RedisPoolSize,
			Prefix:     cfg.RedisPrefix,
		}, logger, observers.Redis)
		if err != nil {
			return nil, err
		}
		backend.Redis = s.Client()
		store = s
	}

	backend.Store = Instrument(store, cfg.Driver, observers.Storage)

	if cfg.AutoMigrate {
		if err := backend.Store.Migrate(ctx); err != nil {
			backend.Store.Close()
			return nil, fmt.Errorf("failed to migrate %s store: %w", cfg.Driver, err)
		}
	}

	logger.WithField("driver", cfg.Driver).Info("storage backend opened")
	return backend, nil
}

// Close releases the backend's connections
func (b *Backend) Close() error {
	return b.Store.Close()
}
