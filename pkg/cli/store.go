package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/platinummonkey/gatekeeper/pkg/config"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/storage"
)

// storeFlags selects the backend. Unset flags fall back to the
// GATEKEEPER_* environment.
type storeFlags struct {
	driver      *string
	databaseURL *string
	redisURL    *string
}

func addStoreFlags(fs *flag.FlagSet) *storeFlags {
	return &storeFlags{
		driver:      fs.String("driver", "", "Storage driver (memory, sqlite3, postgres, redis)"),
		databaseURL: fs.String("database-url", "", "SQL database URL"),
		redisURL:    fs.String("redis-url", "", "Redis URL"),
	}
}

func (f *storeFlags) config() storage.Config {
	cfg := config.StorageConfigFromEnv()
	if *f.driver != "" {
		cfg.Driver = *f.driver
	}
	if *f.databaseURL != "" {
		cfg.DatabaseURL = *f.databaseURL
	}
	if *f.redisURL != "" {
		cfg.RedisURL = *f.redisURL
	}
	return cfg
}

// withManager opens the selected store, initializes a manager over it (which
// brings the schema up to date), runs fn and closes the store
func (a *App) withManager(ctx context.Context, flags *storeFlags, fn func(*rbac.Manager) error) error {
	cfg := flags.config()
	cfg.AutoMigrate = false

	backend, err := storage.Open(ctx, cfg, a.logger, storage.Observers{})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer backend.Close()

	manager := rbac.NewManager(backend.Store, rbac.WithLogger(a.logger))
	if err := manager.Initialize(ctx); err != nil {
		return err
	}
	return fn(manager)
}
