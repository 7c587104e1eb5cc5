package storage

import (
	"fmt"
	"time"
)

// Supported drivers
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config for storage backend
type Config struct {
	Driver string // "memory", "sqlite3", "postgres", "redis"

	// SQL config
	DatabaseURL     string
	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	Timeout         time.Duration
	AutoMigrate     bool

	// Redis config
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int
	RedisPrefix     string
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Driver:          DriverMemory,
		MaxConns:        20,
		MinConns:        2,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		Timeout:         10 * time.Second,
		AutoMigrate:     true,
		RedisURL:        "redis://localhost:6379/0",
		RedisDB:         -1,
		RedisMaxRetries: 3,
		RedisPoolSize:   10,
		RedisPrefix:     "rbac",
	}
}

// Validate checks that the selected driver has what it needs
func (c Config) Validate() error {
	switch c.Driver {
	case DriverMemory:
		return nil
	case DriverSQLite, DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for driver %s", c.Driver)
		}
		if c.MaxConns < 1 {
			return fmt.Errorf("max connections must be at least 1, got %d", c.MaxConns)
		}
		if c.MinConns > c.MaxConns {
			return fmt.Errorf("min connections (%d) exceeds max connections (%d)", c.MinConns, c.MaxConns)
		}
		return nil
	case DriverRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("redis URL is required for driver %s", c.Driver)
		}
		if c.RedisPrefix == "" {
			return fmt.Errorf("redis key prefix must not be empty")
		}
		return nil
	default:
		return fmt.Errorf("unknown storage driver %q", c.Driver)
	}
}
