// Package storage selects and opens the persistence backend behind the RBAC
// services.
//
// # Backends
//
//   - memory: mutex-guarded maps, for tests and single-replica deployments
//   - sqlite3: database/sql with mattn/go-sqlite3, single connection
//   - postgres: database/sql with lib/pq and a pooled connection
//   - redis: go-redis with WATCH/MULTI transactions and reverse indexes
//
// Every backend satisfies rbac.Store and passes the storetest conformance suite.
//
// # Usage
//
//	cfg := storage.DefaultConfig()
//	cfg.Driver = storage.DriverPostgres
//	cfg.DatabaseURL = "postgres://gatekeeper@localhost/gatekeeper?sslmode=disable"
//
//	backend, err := storage.Open(ctx, cfg, logger, storage.Observers{Storage: metrics})
//	if err != nil {
//		return err
//	}
//	defer backend.Close()
//
//	manager := rbac.NewManager(backend.Store, rbac.WithLogger(logger))
//
// Open wraps the backend in an InstrumentedStore, which opens a span per call
// and reports latency and error type to the StorageObserver. Error types are
// not_found, duplicate_name, conflict, store_unavailable, canceled and other.
//
// # Configuration
//
// The SQL drivers use DatabaseURL with MaxConns, MinConns, ConnMaxLifetime and
// ConnMaxIdleTime. SQLite ignores the pool settings and enables foreign keys
// on the DSN. The redis driver uses RedisURL; RedisPassword, RedisDB (negative
// keeps the URL's database), RedisPoolSize and RedisMaxRetries override it, and
// RedisPrefix namespaces every key.
package storage
