// Package observability provides structured logging, Prometheus and
// OpenTelemetry metrics, tracing setup, health checks and graceful shutdown.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("role_name", "editor").Info("role created")
//
// Request-scoped loggers travel in the context:
//
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx).Warn("slow check")
//
// # Metrics
//
// Metrics implements the checker and storage observers used by pkg/rbac and
// pkg/storage:
//
//	metrics := observability.NewMetrics(registry)
//	manager := rbac.NewManager(store, rbac.WithCheckObserver(metrics))
//
// OTelMetrics exposes the same observations over OTLP; CheckObservers and
// StorageObservers fan out to both.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient).WithStore(store)
//	observability.RegisterHealthRoutes(healthMux, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "gatekeeper",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability
