package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/gatekeeper/pkg/api"
	"github.com/platinummonkey/gatekeeper/pkg/async"
	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/config"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/seed"
	"github.com/platinummonkey/gatekeeper/pkg/storage"
	"github.com/platinummonkey/gatekeeper/pkg/webhooks"
)

const statsInterval = 30 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelProviders, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return err
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var (
		metrics        *observability.Metrics
		checkObservers observability.CheckObservers
		storeObservers observability.StorageObservers
		observers      storage.Observers
	)
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
		checkObservers = append(checkObservers, metrics)
		storeObservers = append(storeObservers, metrics)
		observers.Redis = metrics
	}
	if cfg.Observability.OTelEnabled {
		otelMetrics, err := observability.NewOTelMetrics()
		if err != nil {
			return err
		}
		checkObservers = append(checkObservers, otelMetrics)
		storeObservers = append(storeObservers, otelMetrics)
	}
	if len(storeObservers) > 0 {
		observers.Storage = storeObservers
	}

	// Storage
	backend, err := storage.Open(ctx, cfg.Storage, logger, observers)
	if err != nil {
		return err
	}

	manager := rbac.NewManager(backend.Store,
		rbac.WithLogger(logger),
		rbac.WithCheckObserver(checkObservers),
	)
	if err := manager.Initialize(ctx); err != nil {
		backend.Close()
		return err
	}

	// Seed
	var watcher *seed.Watcher
	if cfg.Seed.File != "" {
		applier := seed.NewApplier(manager, logger)
		if _, err := applier.ApplyFile(ctx, cfg.Seed.File); err != nil {
			backend.Close()
			return err
		}
		if cfg.Seed.Watch {
			watcher, err = seed.NewWatcher(applier, cfg.Seed.File, cfg.Seed.ReloadDelay)
			if err != nil {
				backend.Close()
				return err
			}
			watcher.Start(ctx)
		}
	}

	// Audit
	var auditLoggers []audit.Logger
	if cfg.Audit.LogFile != "" {
		fileLogger, err := audit.NewFileLogger(audit.FileLoggerConfig{
			Path:     cfg.Audit.LogFile,
			Rotate:   cfg.Audit.Rotate,
			MaxSize:  cfg.Audit.MaxSize,
			MaxFiles: cfg.Audit.MaxFiles,
		})
		if err != nil {
			backend.Close()
			return err
		}
		auditLoggers = append(auditLoggers, fileLogger)
	}
	if cfg.Audit.WebhookURL != "" {
		forwarder, err := webhooks.NewForwarder(ctx, cfg.Audit.Webhook(), logger)
		if err != nil {
			backend.Close()
			return err
		}
		auditLoggers = append(auditLoggers, forwarder)
	}
	var auditLogger audit.Logger = audit.NoopLogger{}
	if len(auditLoggers) > 0 {
		auditLogger = audit.NewMultiLogger(auditLoggers...)
	}

	// API server
	server := api.NewServer(manager,
		api.WithLogger(logger),
		api.WithAuditLogger(auditLogger),
		api.WithAdminPermission(cfg.Server.AdminPermission),
	)
	if metrics != nil {
		server.Router().Use(observability.HTTPMetricsMiddleware(metrics))
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      otelhttp.NewHandler(server.Handler(), "gatekeeper"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics server
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux,
		observability.NewHealthChecker(backend.DB, backend.Redis).WithStore(backend.Store))
	if metrics != nil {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:        net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:     healthMux,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return backend.Close()
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return auditLogger.Close()
	})
	if watcher != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			return watcher.Close()
		})
	}

	if metrics != nil {
		go reportStats(ctx, manager, backend, metrics)
	}

	serverErrs := make(chan error, 2)
	for _, srv := range []*http.Server{apiServer, healthServer} {
		go func() {
			logger.WithField("addr", srv.Addr).Info("Starting HTTP server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErrs <- err
			}
		}()
	}

	waitCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case err := <-serverErrs:
			logger.WithError(err).Error("HTTP server failed")
			stop()
		case <-waitCtx.Done():
		}
	}()

	return shutdown.WaitForShutdown(waitCtx)
}

// reportStats refreshes the inventory and connection pool gauges until ctx ends
func reportStats(ctx context.Context, manager *rbac.Manager, backend *storage.Backend, metrics *observability.Metrics) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	refresh := func() {
		async.SafeGo(ctx, statsInterval/2, "refresh-rbac-stats", func(ctx context.Context) error {
			stats, err := manager.GetStats(ctx)
			if err != nil {
				return err
			}
			metrics.SetInventory(stats.TotalPermissions, stats.TotalRoles)
			if backend.DB != nil {
				metrics.RecordDBStats(backend.DB.Stats())
			}
			return nil
		})
	}

	refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
