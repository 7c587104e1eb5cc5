// Package config loads gatekeeper configuration from environment variables.
//
// # Configuration Structure
//
// Server settings:
//
//	GATEKEEPER_HOST="0.0.0.0"
//	GATEKEEPER_PORT="8080"
//	GATEKEEPER_HEALTH_PORT="9090"
//	GATEKEEPER_READ_TIMEOUT="15s"
//	GATEKEEPER_WRITE_TIMEOUT="15s"
//	GATEKEEPER_ADMIN_PERMISSION="rbac.admin"  # empty leaves admin routes open
//
// Storage settings:
//
//	GATEKEEPER_STORAGE_DRIVER="postgres"  # memory, sqlite3, postgres, redis
//	GATEKEEPER_DATABASE_URL="postgres://localhost/gatekeeper?sslmode=disable"
//	GATEKEEPER_DB_MAX_CONNS="20"
//	GATEKEEPER_AUTO_MIGRATE="true"
//	GATEKEEPER_REDIS_URL="redis://localhost:6379/0"
//	GATEKEEPER_REDIS_PREFIX="rbac"
//
// Seed settings:
//
//	GATEKEEPER_SEED_FILE="/etc/gatekeeper/rbac.yaml"
//	GATEKEEPER_SEED_WATCH="true"
//
// Audit settings:
//
//	GATEKEEPER_AUDIT_LOG_FILE="/var/log/gatekeeper/audit.log"
//	GATEKEEPER_AUDIT_MAX_FILES="10"
//	GATEKEEPER_AUDIT_WEBHOOK_URL="https://siem.example.com/hooks/gatekeeper"
//	GATEKEEPER_AUDIT_WEBHOOK_SECRET="..."
//	GATEKEEPER_AUDIT_WEBHOOK_EVENTS="grant.role_assign,authz.access_denied"
//
// Observability settings:
//
//	GATEKEEPER_LOG_LEVEL="info"  # debug, info, warn, error
//	GATEKEEPER_METRICS_ENABLED="true"
//	GATEKEEPER_OTEL_ENABLED="true"
//	GATEKEEPER_OTEL_ENDPOINT="otel-collector:4317"
//	GATEKEEPER_OTEL_SAMPLE_RATIO="0.1"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("Storage: %s\n", cfg.Storage.Driver)
package config
