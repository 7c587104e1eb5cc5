package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DriverMemory, cfg.Driver)
	assert.Equal(t, 20, cfg.MaxConns)
	assert.Equal(t, 2, cfg.MinConns)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.RedisMaxRetries)
	assert.Equal(t, 10, cfg.RedisPoolSize)
	assert.Equal(t, "rbac", cfg.RedisPrefix)
	assert.True(t, cfg.AutoMigrate)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "memory",
			mutate: func(c *Config) {},
		},
		{
			name: "sqlite with url",
			mutate: func(c *Config) {
				c.Driver = DriverSQLite
				c.DatabaseURL = "file::memory:?cache=shared"
			},
		},
		{
			name:    "postgres without url",
			mutate:  func(c *Config) { c.Driver = DriverPostgres },
			wantErr: "database URL is required",
		},
		{
			name: "postgres with zero pool",
			mutate: func(c *Config) {
				c.Driver = DriverPostgres
				c.DatabaseURL = "postgres://localhost/rbac"
				c.MaxConns = 0
			},
			wantErr: "max connections",
		},
		{
			name: "min above max",
			mutate: func(c *Config) {
				c.Driver = DriverPostgres
				c.DatabaseURL = "postgres://localhost/rbac"
				c.MinConns = 50
			},
			wantErr: "exceeds max connections",
		},
		{
			name: "redis without url",
			mutate: func(c *Config) {
				c.Driver = DriverRedis
				c.RedisURL = ""
			},
			wantErr: "redis URL is required",
		},
		{
			name: "redis without prefix",
			mutate: func(c *Config) {
				c.Driver = DriverRedis
				c.RedisPrefix = ""
			},
			wantErr: "prefix",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Driver = "mongo" },
			wantErr: "unknown storage driver",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
