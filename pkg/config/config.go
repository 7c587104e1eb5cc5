package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/storage"
	"github.com/platinummonkey/gatekeeper/pkg/webhooks"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Seed file configuration
	Seed SeedConfig

	// Audit configuration
	Audit AuditConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// AdminPermission guards every route except /v1/check. Empty disables.
	AdminPermission string
}

// SeedConfig points at a declarative permissions file
type SeedConfig struct {
	File        string
	Watch       bool
	ReloadDelay time.Duration
}

// AuditConfig holds audit log settings. With neither LogFile nor WebhookURL set auditing is disabled.
type AuditConfig struct {
	LogFile  string
	Rotate   bool
	MaxSize  int64
	MaxFiles int

	// Webhook forwarding
	WebhookURL         string
	WebhookSecret      string
	WebhookEvents      []string
	WebhookWorkers     int
	WebhookMaxAttempts int
}

// Webhook returns the forwarder configuration for the audit webhook
func (a AuditConfig) Webhook() webhooks.Config {
	events := make([]audit.EventType, 0, len(a.WebhookEvents))
	for _, e := range a.WebhookEvents {
		events = append(events, audit.EventType(e))
	}
	retry := webhooks.DefaultRetryConfig()
	retry.MaxAttempts = a.WebhookMaxAttempts
	return webhooks.Config{
		URL:     a.WebhookURL,
		Secret:  a.WebhookSecret,
		Events:  events,
		Workers: a.WebhookWorkers,
		Retry:   retry,
	}
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// OTel returns the OpenTelemetry provider settings
func (c ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.OTelEnabled,
		Endpoint:       c.OTelEndpoint,
		ServiceName:    c.OTelServiceName,
		ServiceVersion: c.OTelServiceVersion,
		Insecure:       c.OTelInsecure,
		SampleRatio:    c.OTelSampleRatio,
	}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Seed:          loadSeedConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("GATEKEEPER_HOST", "0.0.0.0"),
		Port:            getEnv("GATEKEEPER_PORT", "8080"),
		ReadTimeout:     getEnvDuration("GATEKEEPER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("GATEKEEPER_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("GATEKEEPER_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("GATEKEEPER_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("GATEKEEPER_HEALTH_PORT", "9090"),
		AdminPermission: getEnv("GATEKEEPER_ADMIN_PERMISSION", ""),
	}
}

// StorageConfigFromEnv reads only the storage settings, without validation.
// Tools that never serve HTTP use it and let storage.Open validate after
// applying their own overrides.
func StorageConfigFromEnv() storage.Config {
	return loadStorageConfig()
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if driver := getEnv("GATEKEEPER_STORAGE_DRIVER", ""); driver != "" {
		cfg.Driver = strings.ToLower(driver)
	}

	// SQL config
	if dbURL := getEnv("GATEKEEPER_DATABASE_URL", ""); dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if maxConns := getEnvInt("GATEKEEPER_DB_MAX_CONNS", 0); maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns := getEnvInt("GATEKEEPER_DB_MIN_CONNS", -1); minConns >= 0 {
		cfg.MinConns = minConns
	}
	if lifetime := getEnvDuration("GATEKEEPER_DB_CONN_MAX_LIFETIME", 0); lifetime > 0 {
		cfg.ConnMaxLifetime = lifetime
	}
	if timeout := getEnvDuration("GATEKEEPER_DB_TIMEOUT", 0); timeout > 0 {
		cfg.Timeout = timeout
	}
	cfg.AutoMigrate = getEnvBool("GATEKEEPER_AUTO_MIGRATE", cfg.AutoMigrate)

	// Redis config
	if redisURL := getEnv("GATEKEEPER_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("GATEKEEPER_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("GATEKEEPER_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("GATEKEEPER_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("GATEKEEPER_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}
	if prefix := getEnv("GATEKEEPER_REDIS_PREFIX", ""); prefix != "" {
		cfg.RedisPrefix = prefix
	}

	return cfg
}

func loadSeedConfig() SeedConfig {
	return SeedConfig{
		File:        getEnv("GATEKEEPER_SEED_FILE", ""),
		Watch:       getEnvBool("GATEKEEPER_SEED_WATCH", false),
		ReloadDelay: getEnvDuration("GATEKEEPER_SEED_RELOAD_DELAY", 500*time.Millisecond),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		LogFile:  getEnv("GATEKEEPER_AUDIT_LOG_FILE", ""),
		Rotate:   getEnvBool("GATEKEEPER_AUDIT_ROTATE", true),
		MaxSize:  getEnvInt64("GATEKEEPER_AUDIT_MAX_SIZE", 100*1024*1024),
		MaxFiles: getEnvInt("GATEKEEPER_AUDIT_MAX_FILES", 10),

		WebhookURL:         getEnv("GATEKEEPER_AUDIT_WEBHOOK_URL", ""),
		WebhookSecret:      getEnv("GATEKEEPER_AUDIT_WEBHOOK_SECRET", ""),
		WebhookEvents:      getEnvList("GATEKEEPER_AUDIT_WEBHOOK_EVENTS"),
		WebhookWorkers:     getEnvInt("GATEKEEPER_AUDIT_WEBHOOK_WORKERS", 2),
		WebhookMaxAttempts: getEnvInt("GATEKEEPER_AUDIT_WEBHOOK_MAX_ATTEMPTS", 5),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("GATEKEEPER_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("GATEKEEPER_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("GATEKEEPER_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("GATEKEEPER_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("GATEKEEPER_OTEL_SERVICE_NAME", "gatekeeper"),
		OTelServiceVersion: getEnv("GATEKEEPER_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("GATEKEEPER_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("GATEKEEPER_OTEL_SAMPLE_RATIO", 1.0),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if c.Seed.Watch && c.Seed.File == "" {
		return fmt.Errorf("seed watch requires a seed file")
	}

	if c.Audit.LogFile != "" && c.Audit.Rotate && (c.Audit.MaxSize <= 0 || c.Audit.MaxFiles <= 0) {
		return fmt.Errorf("audit rotation requires positive max size and max files")
	}
	if c.Audit.WebhookURL != "" {
		if c.Audit.WebhookWorkers <= 0 {
			return fmt.Errorf("audit webhook workers must be positive")
		}
		if c.Audit.WebhookMaxAttempts <= 0 {
			return fmt.Errorf("audit webhook max attempts must be positive")
		}
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1, got %v", c.Observability.OTelSampleRatio)
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
// getEnvList splits a comma separated variable, dropping blanks
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
